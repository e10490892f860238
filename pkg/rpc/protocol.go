package rpc

// JSON-RPC 2.0 protocol structures

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	ID      interface{}            `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC 2.0 error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// PeerInfo represents one peer table row in RPC responses
type PeerInfo struct {
	Addr     string `json:"addr"`
	NodeID   string `json:"node_id"`
	LastSeen string `json:"last_seen"` // ISO 8601 format
}

// PeersListResult represents the result of peers.list
type PeersListResult struct {
	Peers []*PeerInfo `json:"peers"`
}

// NodeStatusResult represents the result of node.status
type NodeStatusResult struct {
	ID      string  `json:"id"`
	Addr    string  `json:"addr"`
	Mode    string  `json:"mode"`
	UptimeS float64 `json:"uptime_s"`
	Sent    int     `json:"sent"`
	Peers   int     `json:"peers"`
	Seen    int     `json:"seen"`
	Stored  int     `json:"stored"`
	PowK    int     `json:"pow_k"`
	Version string  `json:"version"`
}

// NodePingResult represents the result of node.ping
type NodePingResult struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version"`
}

// PublishResult represents the result of gossip.publish
type PublishResult struct {
	MsgID string `json:"msg_id"`
}
