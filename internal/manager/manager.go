// Package manager owns the socket transport to the switch's manager
// interface: connect, login, the read loop feeding the decoder, and
// outbound actions.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/sweeney/callwatch/internal/ami"
	"github.com/sweeney/callwatch/internal/notify"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Listening
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Listening:
		return "listening"
	case Failed:
		return "failed"
	}
	return "unknown"
}

const (
	dialTimeout = 10 * time.Second
	readBufSize = 4096
)

// Options configures a Client.
type Options struct {
	Addr     string
	Username string
	Secret   string
	// Handler receives every decoded event, in arrival order, from the
	// read loop goroutine.
	Handler func(ami.Event)
	// Bus receives connection notifications. Optional.
	Bus *notify.Bus
	// Dial overrides the transport dialer. Defaults to TCP.
	Dial func(addr string, timeout time.Duration) (net.Conn, error)
}

// Client is the manager-interface connection. Connect starts a read
// loop; the client never reconnects on its own — that is the owner's
// decision after a failure.
type Client struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    net.Conn
	done    chan struct{}
	closing bool
}

// NewClient creates a disconnected Client.
func NewClient(opts Options) *Client {
	if opts.Dial == nil {
		opts.Dial = func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		}
	}
	return &Client{opts: opts}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the switch, sends the login action (the protocol is
// fire-and-forget on login) and starts the read loop. It does not retry.
// Cancelling ctx closes the connection and ends the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connecting, Authenticated, Listening:
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.state = Connecting
	c.closing = false
	c.mu.Unlock()

	conn, err := c.opts.Dial(c.opts.Addr, dialTimeout)
	if err != nil {
		c.failConnect(fmt.Sprintf("connection to %s failed: %v", c.opts.Addr, err))
		return fmt.Errorf("dial %s: %w", c.opts.Addr, err)
	}

	login := fmt.Sprintf("Action: Login\r\nUsername: %s\r\nSecret: %s\r\nEvents: on\r\n\r\n",
		c.opts.Username, c.opts.Secret)
	if _, err := conn.Write([]byte(login)); err != nil {
		conn.Close()
		c.failConnect(fmt.Sprintf("login to %s failed: %v", c.opts.Addr, err))
		return fmt.Errorf("sending login: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.state = Authenticated
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go c.readLoop(conn, done)
	return nil
}

func (c *Client) failConnect(msg string) {
	c.mu.Lock()
	c.state = Failed
	c.mu.Unlock()
	c.notifyConn(msg)
}

// readLoop feeds blocking reads to the decoder and dispatches each
// completed event in order. A read error or peer close ends the loop and
// moves the client to Failed, or Disconnected on a deliberate shutdown.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	c.mu.Lock()
	c.state = Listening
	c.mu.Unlock()
	log.Printf("connected to %s, listening for events", c.opts.Addr)
	c.notifyConn(fmt.Sprintf("connected to %s", c.opts.Addr))

	dec := &ami.Decoder{}
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 && c.opts.Handler != nil {
			for _, evt := range dec.Feed(buf[:n]) {
				c.opts.Handler(evt)
			}
		}
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if closing {
				c.state = Disconnected
			} else {
				c.state = Failed
			}
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			if closing {
				c.notifyConn("disconnected")
			} else {
				log.Printf("connection to %s lost: %v", c.opts.Addr, err)
				c.notifyConn(fmt.Sprintf("connection lost: %v", err))
			}
			return
		}
	}
}

// Disconnect closes the connection, unblocking any in-flight read, and
// waits for the read loop to stop. Safe to call at any time.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	if conn == nil {
		c.state = Disconnected
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.mu.Unlock()

	conn.Close()
	if done != nil {
		<-done
	}
}

// Wait blocks until the current session's read loop exits. Returns
// immediately when no session is active.
func (c *Client) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Originate asks the switch to place a call from extension to
// destination. Success means the transport accepted the action, not
// that the call connected.
func (c *Client) Originate(extension, destination string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || (state != Authenticated && state != Listening) {
		return errors.New("not connected")
	}
	cmd := fmt.Sprintf("Action: Originate\r\nChannel: SIP/%s\r\nExten: %s\r\nContext: from-internal\r\nPriority: 1\r\n\r\n",
		extension, destination)
	if _, err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("sending originate: %w", err)
	}
	return nil
}

func (c *Client) notifyConn(msg string) {
	if c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(notify.Notification{
		Kind:      notify.Connection,
		Message:   msg,
		Timestamp: time.Now(),
	})
}
