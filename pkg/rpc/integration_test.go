package rpc

import (
	"path/filepath"
	"testing"
	"time"
)

func TestClientServerIntegration(t *testing.T) {
	// Create a temporary socket path in a unique per-test directory
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "gossipnet-test.sock")

	mockStatus := &StatusData{
		ID:     "4fa2c81b9e127d55ab90664bd013cd7f",
		Addr:   "127.0.0.1:9000",
		Mode:   "hybrid",
		Uptime: 5 * time.Minute,
		Sent:   123,
		Peers:  2,
		Seen:   40,
		Stored: 12,
		PowK:   3,
	}
	mockPeers := []*PeerData{
		{NodeID: "aa11", Addr: "127.0.0.1:9001", LastSeen: time.Now()},
		{NodeID: "", Addr: "127.0.0.1:9002", LastSeen: time.Now()},
	}

	var published struct {
		data  string
		topic string
	}

	server, err := NewServer(ServerConfig{
		SocketPath: socketPath,
		Version:    "test-v1.0",
		GetStatus:  func() (*StatusData, error) { return mockStatus, nil },
		GetPeers:   func() ([]*PeerData, error) { return mockPeers, nil },
		Publish: func(data, topic string) (string, error) {
			published.data, published.topic = data, topic
			return "deadbeefdeadbeefdeadbeefdeadbeef", nil
		},
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client, err := NewClient(socketPath)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	// node.ping
	result, err := client.Call("node.ping", nil)
	if err != nil {
		t.Fatalf("node.ping failed: %v", err)
	}
	ping, ok := result.(map[string]interface{})
	if !ok || ping["pong"] != true {
		t.Fatalf("unexpected node.ping result: %v", result)
	}

	// node.status
	result, err = client.Call("node.status", nil)
	if err != nil {
		t.Fatalf("node.status failed: %v", err)
	}
	status := result.(map[string]interface{})
	if status["addr"] != "127.0.0.1:9000" {
		t.Errorf("status addr = %v, want 127.0.0.1:9000", status["addr"])
	}
	if status["uptime_s"].(float64) != 300 {
		t.Errorf("status uptime_s = %v, want 300", status["uptime_s"])
	}
	if status["version"] != "test-v1.0" {
		t.Errorf("status version = %v, want test-v1.0", status["version"])
	}

	// peers.list
	result, err = client.Call("peers.list", nil)
	if err != nil {
		t.Fatalf("peers.list failed: %v", err)
	}
	peers := result.(map[string]interface{})["peers"].([]interface{})
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	first := peers[0].(map[string]interface{})
	if first["addr"] != "127.0.0.1:9001" {
		t.Errorf("first peer addr = %v, want 127.0.0.1:9001", first["addr"])
	}

	// gossip.publish
	result, err = client.Call("gossip.publish", map[string]interface{}{
		"data":  "hello overlay",
		"topic": "alerts",
	})
	if err != nil {
		t.Fatalf("gossip.publish failed: %v", err)
	}
	pub := result.(map[string]interface{})
	if pub["msg_id"] == "" {
		t.Error("expected a message id")
	}
	if published.data != "hello overlay" || published.topic != "alerts" {
		t.Errorf("publish callback got (%q, %q)", published.data, published.topic)
	}

	// Unknown method surfaces as a client-side error
	if _, err := client.Call("no.such.method", nil); err == nil {
		t.Error("expected error for unknown method")
	}
}
