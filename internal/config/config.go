package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PBX        PBXConfig        `yaml:"pbx"`
	Poll       PollConfig       `yaml:"poll"`
	StatusFile StatusFileConfig `yaml:"status_file"`
	Store      StoreConfig      `yaml:"store"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

type PBXConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Secret    string `yaml:"secret"`
	Transport string `yaml:"transport"` // "ami" or "http"
	HTTPURL   string `yaml:"http_url"`
	// InboundContext marks externally originated calls; a NewExten whose
	// Context contains it is classified incoming.
	InboundContext string `yaml:"inbound_context"`
}

type PollConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BackoffSeconds  int `yaml:"backoff_seconds"`
}

type StatusFileConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig is optional: an empty broker disables the forwarder.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

func (c *PBXConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// UseHTTP reports whether the HTTP polling transport is active: either
// selected explicitly or forced because no socket host is configured.
func (c *PBXConfig) UseHTTP() bool {
	return c.Transport == "http" || c.Host == ""
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c PollConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

func (c StatusFileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		PBX: PBXConfig{
			Host:           "127.0.0.1",
			Port:           5038,
			Transport:      "ami",
			InboundContext: "from-pstn",
		},
		Poll: PollConfig{
			IntervalSeconds: 5,
			BackoffSeconds:  30,
		},
		StatusFile: StatusFileConfig{
			TimeoutSeconds: 30,
		},
		Store: StoreConfig{
			Path: "callwatch.db",
		},
		MQTT: MQTTConfig{
			ClientID:    "callwatch",
			TopicPrefix: "callwatch",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PBX.Transport != "ami" && c.PBX.Transport != "http" {
		return fmt.Errorf("pbx.transport must be ami or http, got %q", c.PBX.Transport)
	}
	if c.PBX.UseHTTP() {
		if c.PBX.HTTPURL == "" {
			return fmt.Errorf("pbx.http_url is required for the http transport")
		}
	} else {
		if c.PBX.Port < 1 || c.PBX.Port > 65535 {
			return fmt.Errorf("pbx.port must be between 1 and 65535, got %d", c.PBX.Port)
		}
		if c.PBX.Username == "" {
			return fmt.Errorf("pbx.username is required")
		}
		if c.PBX.Secret == "" {
			return fmt.Errorf("pbx.secret is required")
		}
	}
	if c.Poll.IntervalSeconds < 1 {
		return fmt.Errorf("poll.interval_seconds must be at least 1, got %d", c.Poll.IntervalSeconds)
	}
	if c.Poll.BackoffSeconds < c.Poll.IntervalSeconds {
		return fmt.Errorf("poll.backoff_seconds must be at least poll.interval_seconds")
	}
	if c.StatusFile.Enabled {
		if c.StatusFile.Path == "" {
			return fmt.Errorf("status_file.path is required when status_file.enabled")
		}
		if c.StatusFile.TimeoutSeconds < 1 {
			return fmt.Errorf("status_file.timeout_seconds must be at least 1, got %d", c.StatusFile.TimeoutSeconds)
		}
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id is required")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix is required")
		}
	}
	return nil
}
