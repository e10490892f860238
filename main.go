package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/gossipnet/pkg/discovery"
	"github.com/atvirokodosprendimai/gossipnet/pkg/gossip"
	"github.com/atvirokodosprendimai/gossipnet/pkg/netid"
	"github.com/atvirokodosprendimai/gossipnet/pkg/otel"
	"github.com/atvirokodosprendimai/gossipnet/pkg/rpc"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Check for version flags first (--version or -v)
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Println("gossipnet " + version)
			return
		}
	}

	// Check for subcommands first
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println("gossipnet " + version)
			return
		case "run":
			runCmd(os.Args[2:])
			return
		case "status":
			statusCmd()
			return
		case "peers":
			peersCmd()
			return
		case "publish":
			publishCmd()
			return
		}
	}

	// Bare invocation runs the node, flags straight on the binary
	runCmd(os.Args[1:])
}

// parseRunFlags builds the node configuration: defaults, then the
// optional TOML config file, then explicit flags on top.
func parseRunFlags(args []string) (gossip.Config, error) {
	cfg := gossip.DefaultConfig()

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	port := fs.Int("port", cfg.Port, "UDP port to bind on 127.0.0.1")
	bootstrap := fs.String("bootstrap", "", "host:port of an existing node to contact on start")
	fanout := fs.Int("fanout", cfg.Fanout, "Peers to forward each gossip message to")
	ttl := fs.Int("ttl", cfg.TTL, "Hop budget for new gossip messages")
	peerLimit := fs.Int("peer-limit", cfg.PeerLimit, "Maximum peer table size")
	pingInterval := fs.Float64("ping-interval", cfg.PingInterval.Seconds(), "Seconds between liveness rounds")
	peerTimeout := fs.Float64("peer-timeout", cfg.PeerTimeout.Seconds(), "Seconds of silence before a peer is dropped")
	seed := fs.Int64("seed", cfg.Seed, "PRNG seed for peer sampling")
	mode := fs.String("mode", string(cfg.Mode), "Dissemination mode: push or hybrid")
	pullInterval := fs.Float64("pull-interval", cfg.PullInterval.Seconds(), "Seconds between IHAVE rounds (hybrid mode)")
	ihaveMaxIDs := fs.Int("ihave-max-ids", cfg.IHaveMaxIDs, "Message ids advertised per IHAVE")
	powK := fs.Int("pow-k", cfg.PowK, "PoW difficulty required for admission (0 disables)")
	configFile := fs.String("config", "", "Path to a TOML config file")
	network := fs.String("network", cfg.Network, "Network name for the discovery backends")
	dht := fs.Bool("dht", false, "Discover peers via the BitTorrent mainline DHT")
	registry := fs.String("registry", "", "Redis address of the rendezvous registry")
	rpcSocket := fs.String("rpc-socket", "", "Unix socket for local RPC (\"none\" disables)")
	logDir := fs.String("log-dir", cfg.LogDir, "Directory for the per-node log file")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return cfg, err
		}
	}

	// Flags set explicitly on the command line win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "bootstrap":
			cfg.Bootstrap = *bootstrap
		case "fanout":
			cfg.Fanout = *fanout
		case "ttl":
			cfg.TTL = *ttl
		case "peer-limit":
			cfg.PeerLimit = *peerLimit
		case "ping-interval":
			cfg.PingInterval = gossip.Seconds(*pingInterval)
		case "peer-timeout":
			cfg.PeerTimeout = gossip.Seconds(*peerTimeout)
		case "seed":
			cfg.Seed = *seed
		case "mode":
			cfg.Mode = gossip.Mode(*mode)
		case "pull-interval":
			cfg.PullInterval = gossip.Seconds(*pullInterval)
		case "ihave-max-ids":
			cfg.IHaveMaxIDs = *ihaveMaxIDs
		case "pow-k":
			cfg.PowK = *powK
		case "network":
			cfg.Network = *network
		case "dht":
			cfg.DHT = *dht
		case "registry":
			cfg.Registry = *registry
		case "rpc-socket":
			cfg.RPCSocket = *rpcSocket
		case "log-dir":
			cfg.LogDir = *logDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runCmd(args []string) {
	cfg, err := parseRunFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := gossip.NewLogger(cfg.Port, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := context.Background()
	otelShutdown, err := otel.Init(ctx, "gossipnet", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer otelShutdown(ctx)
	if otel.Enabled() {
		logger.SetMirror(otel.NewLogBridge())
	}

	node := gossip.NewNode(cfg, logger)

	// Local RPC for the status/peers/publish subcommands
	if socketPath := cfg.RPCSocketPath(); socketPath != "" {
		rpcServer, err := rpc.NewServer(rpc.ServerConfig{
			SocketPath: socketPath,
			Version:    version,
			GetStatus: func() (*rpc.StatusData, error) {
				s, err := node.Status()
				if err != nil {
					return nil, err
				}
				return &rpc.StatusData{
					ID:     s.ID,
					Addr:   s.Addr,
					Mode:   string(s.Mode),
					Uptime: s.Uptime,
					Sent:   s.Sent,
					Peers:  s.Peers,
					Seen:   s.Seen,
					Stored: s.Stored,
					PowK:   s.PowK,
				}, nil
			},
			GetPeers: func() ([]*rpc.PeerData, error) {
				peers, err := node.Peers()
				if err != nil {
					return nil, err
				}
				result := make([]*rpc.PeerData, len(peers))
				for i, p := range peers {
					result[i] = &rpc.PeerData{
						NodeID:   p.NodeID,
						Addr:     p.Addr,
						LastSeen: p.LastSeen,
					}
				}
				return result, nil
			},
			Publish: node.Publish,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create RPC server: %v\n", err)
		} else if err := rpcServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start RPC server: %v\n", err)
		} else {
			defer rpcServer.Stop()
		}
	}

	// Optional discovery backends feed candidate addresses to the node
	if cfg.DHT {
		infohash, err := netid.Infohash(cfg.Network)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to derive DHT infohash: %v\n", err)
			os.Exit(1)
		}
		d := discovery.NewDHT(infohash, cfg.Port, node.AddCandidate, logger.Infof)
		if err := d.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: DHT discovery unavailable: %v\n", err)
		} else {
			defer d.Stop()
		}
	}
	if cfg.Registry != "" {
		ns, err := netid.RegistryNamespace(cfg.Network)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to derive registry namespace: %v\n", err)
			os.Exit(1)
		}
		reg, err := discovery.NewRegistry(cfg.Registry, ns, node.ID(), node.Addr(), node.AddCandidate, logger.Infof)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: registry unavailable: %v\n", err)
		} else {
			reg.Start()
			defer reg.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		node.Stop()
	}()

	if err := node.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Node error: %v\n", err)
		os.Exit(1)
	}
}

// rpcClient connects to a running node's unix socket. The --port flag
// selects which node when more than one runs on the machine.
func rpcClient(socketPath string, port int) *rpc.Client {
	if socketPath == "" {
		socketPath = os.Getenv("GOSSIPNET_SOCKET")
	}
	if socketPath == "" {
		cfg := gossip.DefaultConfig()
		cfg.Port = port
		socketPath = cfg.RPCSocketPath()
	}

	client, err := rpc.NewClient(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to node: %v\n", err)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Is a gossipnet node running?")
		fmt.Fprintf(os.Stderr, "  Start with: gossipnet run --port %d\n", port)
		fmt.Fprintf(os.Stderr, "  Socket path: %s\n", socketPath)
		os.Exit(1)
	}
	return client
}

func statusCmd() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	port := fs.Int("port", gossip.DefaultConfig().Port, "Port of the node to query")
	socketPath := fs.String("rpc-socket", "", "Unix socket of the node (overrides --port)")
	fs.Parse(os.Args[2:])

	client := rpcClient(*socketPath, *port)
	defer client.Close()

	result, err := client.Call("node.status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "RPC error: %v\n", err)
		os.Exit(1)
	}
	status, ok := result.(map[string]interface{})
	if !ok {
		fmt.Fprintln(os.Stderr, "Invalid response format")
		os.Exit(1)
	}

	id, _ := status["id"].(string)
	addr, _ := status["addr"].(string)
	mode, _ := status["mode"].(string)
	uptime, _ := status["uptime_s"].(float64)
	sent, _ := status["sent"].(float64)
	peers, _ := status["peers"].(float64)
	seen, _ := status["seen"].(float64)
	stored, _ := status["stored"].(float64)
	powK, _ := status["pow_k"].(float64)

	fmt.Printf("Node Status\n")
	fmt.Printf("===========\n")
	fmt.Printf("ID:      %s\n", id)
	fmt.Printf("Address: %s\n", addr)
	fmt.Printf("Mode:    %s\n", mode)
	fmt.Printf("Uptime:  %s\n", formatDuration(time.Duration(uptime*float64(time.Second))))
	fmt.Printf("Sent:    %.0f messages\n", sent)
	fmt.Printf("Peers:   %.0f\n", peers)
	fmt.Printf("Seen:    %.0f ids (%.0f stored)\n", seen, stored)
	if powK > 0 {
		fmt.Printf("PoW:     k=%.0f\n", powK)
	}
}

func peersCmd() {
	fs := flag.NewFlagSet("peers", flag.ExitOnError)
	port := fs.Int("port", gossip.DefaultConfig().Port, "Port of the node to query")
	socketPath := fs.String("rpc-socket", "", "Unix socket of the node (overrides --port)")
	fs.Parse(os.Args[2:])

	client := rpcClient(*socketPath, *port)
	defer client.Close()

	result, err := client.Call("peers.list", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "RPC error: %v\n", err)
		os.Exit(1)
	}
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		fmt.Fprintln(os.Stderr, "Invalid response format")
		os.Exit(1)
	}
	peersData, ok := resultMap["peers"].([]interface{})
	if !ok {
		fmt.Fprintln(os.Stderr, "Invalid peers data")
		os.Exit(1)
	}

	if len(peersData) == 0 {
		fmt.Println("No peers")
		return
	}

	fmt.Printf("%-22s %-34s %s\n", "ADDRESS", "NODE ID", "LAST SEEN")
	fmt.Println(strings.Repeat("-", 70))
	for _, peerData := range peersData {
		peer, ok := peerData.(map[string]interface{})
		if !ok {
			continue
		}
		addr, _ := peer["addr"].(string)
		nodeID, _ := peer["node_id"].(string)
		if nodeID == "" {
			nodeID = "?"
		}
		lastSeen, _ := peer["last_seen"].(string)

		lastSeenStr := "unknown"
		if t, err := time.Parse(time.RFC3339, lastSeen); err == nil {
			lastSeenStr = formatDuration(time.Since(t)) + " ago"
		}
		fmt.Printf("%-22s %-34s %s\n", addr, nodeID, lastSeenStr)
	}
}

func publishCmd() {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	port := fs.Int("port", gossip.DefaultConfig().Port, "Port of the node to publish through")
	socketPath := fs.String("rpc-socket", "", "Unix socket of the node (overrides --port)")
	topic := fs.String("topic", "", "Topic to publish under (default news)")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gossipnet publish [--port N] <data>")
		os.Exit(1)
	}
	data := strings.Join(fs.Args(), " ")

	client := rpcClient(*socketPath, *port)
	defer client.Close()

	params := map[string]interface{}{"data": data}
	if *topic != "" {
		params["topic"] = *topic
	}
	result, err := client.Call("gossip.publish", params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "RPC error: %v\n", err)
		os.Exit(1)
	}
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		fmt.Fprintln(os.Stderr, "Invalid response format")
		os.Exit(1)
	}
	msgID, _ := resultMap["msg_id"].(string)
	fmt.Printf("Published msg_id=%s\n", msgID)
}

// formatDuration renders a duration in the largest sensible unit.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
