package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"
)

// PeerData represents peer information for RPC
type PeerData struct {
	NodeID   string
	Addr     string
	LastSeen time.Time
}

// StatusData represents node status for RPC
type StatusData struct {
	ID     string
	Addr   string
	Mode   string
	Uptime time.Duration
	Sent   int
	Peers  int
	Seen   int
	Stored int
	PowK   int
}

// ServerConfig configures the RPC server with callback functions.
// The callbacks run on the node's actor loop and may fail once the
// node is shutting down.
type ServerConfig struct {
	SocketPath string
	Version    string
	GetStatus  func() (*StatusData, error)
	GetPeers   func() ([]*PeerData, error)
	Publish    func(data, topic string) (string, error)
}

// Server implements an RPC server using Unix domain sockets
type Server struct {
	socketPath  string
	listener    net.Listener
	version     string
	ctx         context.Context
	cancel      context.CancelFunc
	getStatusFn func() (*StatusData, error)
	getPeersFn  func() ([]*PeerData, error)
	publishFn   func(data, topic string) (string, error)
}

// NewServer creates a new RPC server
func NewServer(config ServerConfig) (*Server, error) {
	// Remove existing socket if it exists
	if _, err := os.Stat(config.SocketPath); err == nil {
		if err := os.Remove(config.SocketPath); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	// Ensure directory exists
	dir := filepath.Dir(config.SocketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		socketPath:  config.SocketPath,
		version:     config.Version,
		ctx:         ctx,
		cancel:      cancel,
		getStatusFn: config.GetStatus,
		getPeersFn:  config.GetPeers,
		publishFn:   config.Publish,
	}, nil
}

// Start starts the RPC server
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions to 0600 (owner only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		s.listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("RPC server listening on %s", s.socketPath)

	go s.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Printf("RPC accept error: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := &Response{
				JSONRPC: "2.0",
				Error: &Error{
					Code:    ErrCodeParseError,
					Message: fmt.Sprintf("failed to parse request: %v", err),
				},
				ID: nil,
			}
			s.writeResponse(writer, resp)
			continue
		}

		resp := s.handleRequest(&req)
		s.writeResponse(writer, resp)
	}

	if err := scanner.Err(); err != nil {
		log.Printf("RPC connection error: %v", err)
	}
}

// writeResponse writes a response to the connection
func (s *Server) writeResponse(w *bufio.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Failed to encode response: %v", err)
		return
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("Failed to write response: %v", err)
		return
	}

	if err := w.Flush(); err != nil {
		log.Printf("Failed to flush response: %v", err)
	}
}

// handleRequest handles a single RPC request
func (s *Server) handleRequest(req *Request) *Response {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "2.0" {
		resp.Error = &Error{
			Code:    ErrCodeInvalidRequest,
			Message: "invalid jsonrpc version, must be 2.0",
		}
		return resp
	}

	switch req.Method {
	case "node.status":
		result, err := s.handleNodeStatus(req.Params)
		if err != nil {
			resp.Error = err
		} else {
			resp.Result = result
		}

	case "node.ping":
		result, err := s.handleNodePing(req.Params)
		if err != nil {
			resp.Error = err
		} else {
			resp.Result = result
		}

	case "peers.list":
		result, err := s.handlePeersList(req.Params)
		if err != nil {
			resp.Error = err
		} else {
			resp.Result = result
		}

	case "gossip.publish":
		result, err := s.handlePublish(req.Params)
		if err != nil {
			resp.Error = err
		} else {
			resp.Result = result
		}

	default:
		resp.Error = &Error{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}

	return resp
}

// handleNodeStatus implements node.status
func (s *Server) handleNodeStatus(params map[string]interface{}) (*NodeStatusResult, *Error) {
	status, err := s.getStatusFn()
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: err.Error()}
	}

	return &NodeStatusResult{
		ID:      status.ID,
		Addr:    status.Addr,
		Mode:    status.Mode,
		UptimeS: status.Uptime.Seconds(),
		Sent:    status.Sent,
		Peers:   status.Peers,
		Seen:    status.Seen,
		Stored:  status.Stored,
		PowK:    status.PowK,
		Version: s.version,
	}, nil
}

// handleNodePing implements node.ping
func (s *Server) handleNodePing(params map[string]interface{}) (*NodePingResult, *Error) {
	return &NodePingResult{
		Pong:    true,
		Version: s.version,
	}, nil
}

// handlePeersList implements peers.list
func (s *Server) handlePeersList(params map[string]interface{}) (*PeersListResult, *Error) {
	peers, err := s.getPeersFn()
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: err.Error()}
	}

	result := &PeersListResult{
		Peers: make([]*PeerInfo, 0, len(peers)),
	}

	for _, peer := range peers {
		result.Peers = append(result.Peers, &PeerInfo{
			Addr:     peer.Addr,
			NodeID:   peer.NodeID,
			LastSeen: peer.LastSeen.Format(time.RFC3339),
		})
	}

	return result, nil
}

// handlePublish implements gossip.publish
func (s *Server) handlePublish(params map[string]interface{}) (*PublishResult, *Error) {
	data, ok := params["data"].(string)
	if !ok || data == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidParams,
			Message: "missing or invalid 'data' parameter",
		}
	}
	topic, _ := params["topic"].(string)

	msgID, err := s.publishFn(data, topic)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: err.Error()}
	}

	return &PublishResult{MsgID: msgID}, nil
}

// Stop stops the RPC server
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	// Remove socket file
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}

	log.Printf("RPC server stopped")
	return nil
}
