// Package httppoll is the fallback transport: when the manager socket is
// not configured, call state is polled from the switch's HTTP API.
package httppoll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CallStatus is one entry of the GET /api/calls snapshot.
type CallStatus struct {
	CallID    string    `json:"call_id"`
	Extension string    `json:"extension"`
	CallerID  string    `json:"caller_id"`
	Status    string    `json:"status"` // ringing | up | down
	Direction string    `json:"direction"`
	StartTime time.Time `json:"start_time"`
}

// Client talks to the switch's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the API rooted at base.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Probe checks that the API is reachable.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/call_status", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", c.base, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probing %s: status %d", c.base, resp.StatusCode)
	}
	return nil
}

// Fetch retrieves the current call snapshot.
func (c *Client) Fetch(ctx context.Context) ([]CallStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/calls", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calls: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching calls: status %d", resp.StatusCode)
	}
	var calls []CallStatus
	if err := json.NewDecoder(resp.Body).Decode(&calls); err != nil {
		return nil, fmt.Errorf("decoding call snapshot: %w", err)
	}
	return calls, nil
}

// Originate asks the switch to place a call. Success means the request
// was accepted, not that the call connected.
func (c *Client) Originate(ctx context.Context, extension, destination string) error {
	body, err := json.Marshal(map[string]string{
		"extension":   extension,
		"destination": destination,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/calls/originate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending originate: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("originate rejected: status %d", resp.StatusCode)
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
