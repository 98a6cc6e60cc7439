package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/callwatch/internal/config"
	"github.com/sweeney/callwatch/internal/engine"
	"github.com/sweeney/callwatch/internal/httppoll"
	"github.com/sweeney/callwatch/internal/manager"
	"github.com/sweeney/callwatch/internal/notify"
	"github.com/sweeney/callwatch/internal/status"
	"github.com/sweeney/callwatch/internal/store"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 60 * time.Second
	busBuffer         = 64
)

func main() {
	configPath := flag.String("config", "/etc/callwatch/callwatch.yaml", "Path to config file")
	originate := flag.String("originate", "", "Place a call once connected, as ext:destination")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	bus := notify.NewBus(busBuffer)
	defer bus.Close()

	if cfg.MQTT.Broker != "" {
		pub, err := notify.NewMQTTPublisher(notify.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err != nil {
			log.Fatalf("connecting to MQTT: %v", err)
		}
		defer pub.Close()
		log.Printf("connected to MQTT broker %s", cfg.MQTT.Broker)
		go notify.Forward(ctx, bus.Subscribe(), pub, cfg.MQTT.TopicPrefix)
	}

	opts := []engine.Option{engine.WithInboundContext(cfg.PBX.InboundContext)}
	if cfg.StatusFile.Enabled {
		sp := status.NewPublisher(cfg.StatusFile.Path, cfg.StatusFile.Timeout())
		defer sp.Close()
		opts = append(opts, engine.WithStatusWriter(sp))
	}
	eng := engine.New(st, bus, opts...)

	if cfg.PBX.UseHTTP() {
		runHTTP(ctx, cfg, eng, *originate)
	} else {
		runSocket(ctx, cfg, eng, bus, *originate)
	}

	log.Println("shutdown complete")
}

// runSocket supervises the manager-interface session: the client never
// reconnects on its own, so on failure we wait with doubling backoff and
// connect again until shutdown.
func runSocket(ctx context.Context, cfg *config.Config, eng *engine.Engine, bus *notify.Bus, originate string) {
	client := manager.NewClient(manager.Options{
		Addr:     cfg.PBX.Addr(),
		Username: cfg.PBX.Username,
		Secret:   cfg.PBX.Secret,
		Handler:  eng.Process,
		Bus:      bus,
	})
	defer client.Disconnect()

	originated := false
	delay := reconnectDelay
	for {
		log.Printf("connecting to PBX at %s", cfg.PBX.Addr())
		if err := client.Connect(ctx); err != nil {
			log.Printf("PBX connect: %v, retrying in %s", err, delay)
		} else {
			delay = reconnectDelay
			if originate != "" && !originated {
				originated = true
				if err := dialOut(originate, client.Originate); err != nil {
					log.Printf("originate: %v", err)
				}
			}
			client.Wait()
			if ctx.Err() != nil {
				return
			}
			log.Printf("PBX session ended, reconnecting in %s", delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if delay < maxReconnectDelay {
			delay *= 2
		}
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, eng *engine.Engine, originate string) {
	client := httppoll.NewClient(cfg.PBX.HTTPURL)
	if err := client.Probe(ctx); err != nil {
		log.Printf("PBX HTTP probe: %v", err)
	}
	if originate != "" {
		if err := dialOut(originate, func(ext, dest string) error {
			return client.Originate(ctx, ext, dest)
		}); err != nil {
			log.Printf("originate: %v", err)
		}
	}
	log.Printf("polling %s every %s", cfg.PBX.HTTPURL, cfg.Poll.Interval())
	httppoll.NewPoller(client, eng, cfg.Poll.Interval(), cfg.Poll.Backoff()).Run(ctx)
}

// dialOut parses "ext:destination" and sends it through the active
// transport's originate.
func dialOut(spec string, send func(ext, dest string) error) error {
	ext, dest, ok := strings.Cut(spec, ":")
	if !ok || ext == "" || dest == "" {
		return fmt.Errorf("invalid originate spec %q, want ext:destination", spec)
	}
	log.Printf("originating call from %s to %s", ext, dest)
	return send(ext, dest)
}
