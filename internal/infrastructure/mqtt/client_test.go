package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "librarium-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestSessionLostMarksOffline(t *testing.T) {
	var buf strings.Builder
	client := &Client{log: slog.New(slog.NewTextHandler(&buf, nil))}
	client.online.Store(true)

	client.sessionLost(errors.New("EOF"))

	if client.online.Load() {
		t.Error("online still set after session loss")
	}
	if !strings.Contains(buf.String(), "broker session lost") {
		t.Errorf("log = %q, want session loss warning", buf.String())
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{}
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("{}"), 1, ErrInvalidTopic},
		{"invalid qos", "librarium/catalog/x", []byte("{}"), 3, ErrInvalidQoS},
		{"oversized payload", "librarium/catalog/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "librarium/catalog/x", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishEventUnencodable(t *testing.T) {
	client := &Client{cfg: testConfig()}

	err := client.PublishEvent("librarium/catalog/x", map[string]any{"bad": make(chan int)})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishEvent() error = %v, want ErrPublishFailed", err)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	if got := topics.CatalogEvent("book_created"); got != "librarium/catalog/book_created" {
		t.Errorf("CatalogEvent() = %q", got)
	}
	if got := topics.SystemStatus(); got != "librarium/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "pw"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "librarium-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "core" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}
}

func TestStatusPayloads(t *testing.T) {
	for _, tc := range []struct {
		payload string
		status  string
		reason  string
	}{
		{buildOnlinePayload("core-1"), "online", ""},
		{buildOfflinePayload("core-1"), "offline", "graceful_shutdown"},
	} {
		var p statusPayload
		if err := json.Unmarshal([]byte(tc.payload), &p); err != nil {
			t.Fatalf("payload %q is not JSON: %v", tc.payload, err)
		}
		if p.Status != tc.status || p.Reason != tc.reason || p.ClientID != "core-1" {
			t.Errorf("payload = %+v, want status=%s reason=%q", p, tc.status, tc.reason)
		}
		if !strings.HasSuffix(p.Timestamp, "Z") {
			t.Errorf("timestamp %q not UTC", p.Timestamp)
		}
	}
}
