package otel

import (
	"context"
	"os"
	"testing"
)

func TestInit_NoEndpoint(t *testing.T) {
	// Ensure no endpoint is set
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if Enabled() {
		t.Fatal("Enabled() should be false with no endpoint")
	}

	shutdown, err := Init(context.Background(), "test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init() with no endpoint should not error, got: %v", err)
	}

	// Shutdown should be safe to call
	shutdown(context.Background())
}

func TestInit_NoEndpoint_ReturnsNoopShutdown(t *testing.T) {
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	shutdown, _ := Init(context.Background(), "test-service", "v0.0.1")

	// Calling shutdown multiple times should be safe
	shutdown(context.Background())
	shutdown(context.Background())
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantPort  string
		wantEvent string
		wantBody  string
	}{
		{
			name:      "gossip recv",
			line:      "15:04:05.123 [8000] [1724500000123] GOSSIP recv  msg_id=4fa2c81b  data=hi  ttl=7",
			wantPort:  "8000",
			wantEvent: "gossip",
			wantBody:  "GOSSIP recv  msg_id=4fa2c81b  data=hi  ttl=7",
		},
		{
			name:      "peer added",
			line:      "09:00:00.007 [9001] [1724500000007] peer added   127.0.0.1:9000 (4fa2c81b)",
			wantPort:  "9001",
			wantEvent: "peer",
			wantBody:  "peer added   127.0.0.1:9000 (4fa2c81b)",
		},
		{
			name:      "sent debug line",
			line:      "23:59:59.999 [8000] [1724500000999] SENT PING -> 127.0.0.1:8001",
			wantPort:  "8000",
			wantEvent: "sent",
			wantBody:  "SENT PING -> 127.0.0.1:8001",
		},
		{
			name:      "stats on shutdown",
			line:      "12:00:00.000 [8000] [1724500000000] STATS sent=42 peers=3 seen=17",
			wantPort:  "8000",
			wantEvent: "stats",
			wantBody:  "STATS sent=42 peers=3 seen=17",
		},
		{
			name:      "foreign line",
			line:      "plain log message",
			wantPort:  "",
			wantEvent: "general",
			wantBody:  "plain log message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, event, body := parseLine(tt.line)
			if port != tt.wantPort {
				t.Errorf("parseLine(%q) port = %q, want %q", tt.line, port, tt.wantPort)
			}
			if event != tt.wantEvent {
				t.Errorf("parseLine(%q) event = %q, want %q", tt.line, event, tt.wantEvent)
			}
			if body != tt.wantBody {
				t.Errorf("parseLine(%q) body = %q, want %q", tt.line, body, tt.wantBody)
			}
		})
	}
}

func TestBuildResource(t *testing.T) {
	res, err := buildResource(context.Background(), "gossipnet", "v1.0.0")
	if err != nil {
		t.Fatalf("buildResource() error = %v", err)
	}
	if res == nil {
		t.Fatal("buildResource() returned nil resource")
	}

	// Verify the resource has the expected attributes
	attrs := res.Attributes()
	found := make(map[string]bool)
	for _, attr := range attrs {
		found[string(attr.Key)] = true
	}

	for _, key := range []string{"service.name", "service.version", "host.name"} {
		if !found[key] {
			t.Errorf("buildResource() missing attribute %q", key)
		}
	}
}
