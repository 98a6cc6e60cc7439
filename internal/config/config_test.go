package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
pbx:
  host: 192.168.1.200
  port: 5038
  username: admin
  secret: s3cret
status_file:
  enabled: true
  path: /run/callwatch/status.json
  timeout_seconds: 45
store:
  path: /var/lib/callwatch/calls.db
mqtt:
  broker: tcp://localhost:1883
  topic_prefix: pbx
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PBX.Addr() != "192.168.1.200:5038" {
		t.Errorf("expected addr=192.168.1.200:5038, got %s", cfg.PBX.Addr())
	}
	if cfg.PBX.UseHTTP() {
		t.Error("expected socket transport")
	}
	if cfg.StatusFile.Timeout() != 45*time.Second {
		t.Errorf("expected 45s status timeout, got %s", cfg.StatusFile.Timeout())
	}
	if cfg.MQTT.TopicPrefix != "pbx" {
		t.Errorf("expected topic_prefix=pbx, got %s", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
pbx:
  username: admin
  secret: s3cret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PBX.Host != "127.0.0.1" {
		t.Errorf("expected default host=127.0.0.1, got %s", cfg.PBX.Host)
	}
	if cfg.PBX.Port != 5038 {
		t.Errorf("expected default port=5038, got %d", cfg.PBX.Port)
	}
	if cfg.PBX.InboundContext != "from-pstn" {
		t.Errorf("expected default inbound_context=from-pstn, got %s", cfg.PBX.InboundContext)
	}
	if cfg.Poll.Interval() != 5*time.Second {
		t.Errorf("expected default poll interval 5s, got %s", cfg.Poll.Interval())
	}
	if cfg.Poll.Backoff() != 30*time.Second {
		t.Errorf("expected default poll backoff 30s, got %s", cfg.Poll.Backoff())
	}
	if cfg.Store.Path != "callwatch.db" {
		t.Errorf("expected default store path, got %s", cfg.Store.Path)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("expected MQTT disabled by default, got %s", cfg.MQTT.Broker)
	}
}

func TestHTTPTransportSelection(t *testing.T) {
	// Explicit selection.
	path := writeConfig(t, `
pbx:
  transport: http
  http_url: http://10.0.0.1:8088
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.PBX.UseHTTP() {
		t.Error("expected http transport when selected")
	}

	// Forced when no socket host is configured.
	path = writeConfig(t, `
pbx:
  host: ""
  http_url: http://10.0.0.1:8088
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.PBX.UseHTTP() {
		t.Error("expected http transport when no host configured")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{"empty username", `
pbx:
  secret: s3cret
`, "pbx.username is required"},
		{"empty secret", `
pbx:
  username: admin
`, "pbx.secret is required"},
		{"port zero", `
pbx:
  port: 0
  username: admin
  secret: s3cret
`, "pbx.port must be between 1 and 65535, got 0"},
		{"bad transport", `
pbx:
  transport: carrier-pigeon
  username: admin
  secret: s3cret
`, `pbx.transport must be ami or http, got "carrier-pigeon"`},
		{"http without url", `
pbx:
  transport: http
`, "pbx.http_url is required for the http transport"},
		{"status file without path", `
pbx:
  username: admin
  secret: s3cret
status_file:
  enabled: true
`, "status_file.path is required when status_file.enabled"},
		{"status file zero timeout", `
pbx:
  username: admin
  secret: s3cret
status_file:
  enabled: true
  path: /tmp/status.json
  timeout_seconds: 0
`, "status_file.timeout_seconds must be at least 1, got 0"},
		{"poll interval zero", `
pbx:
  username: admin
  secret: s3cret
poll:
  interval_seconds: 0
`, "poll.interval_seconds must be at least 1, got 0"},
		{"backoff below interval", `
pbx:
  username: admin
  secret: s3cret
poll:
  interval_seconds: 10
  backoff_seconds: 5
`, "poll.backoff_seconds must be at least poll.interval_seconds"},
		{"empty store path", `
pbx:
  username: admin
  secret: s3cret
store:
  path: ""
`, "store.path is required"},
		{"mqtt without client id", `
pbx:
  username: admin
  secret: s3cret
mqtt:
  broker: tcp://localhost:1883
  client_id: ""
`, "mqtt.client_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
