package gossip

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Mode selects the dissemination strategy.
type Mode string

const (
	// ModePush forwards gossip on arrival only.
	ModePush Mode = "push"
	// ModeHybrid adds periodic IHAVE/IWANT anti-entropy on top of push.
	ModeHybrid Mode = "hybrid"
)

// Config carries every node setting. The CLI expresses intervals as
// float seconds; the flag layer converts them with Seconds.
type Config struct {
	Port         int
	Bootstrap    string // "ip:port" of the contact node, empty for none
	Fanout       int
	TTL          int
	PeerLimit    int
	PingInterval time.Duration
	PeerTimeout  time.Duration
	Seed         int64
	Mode         Mode
	PullInterval time.Duration
	IHaveMaxIDs  int
	PowK         int

	Network   string // shared namespace for the discovery backends
	DHT       bool   // announce and look up peers on the BitTorrent mainline DHT
	Registry  string // redis address of the rendezvous registry, empty disables
	RPCSocket string // unix socket path for local RPC, "none" disables
	LogDir    string
}

func DefaultConfig() Config {
	return Config{
		Port:         8000,
		Fanout:       3,
		TTL:          8,
		PeerLimit:    20,
		PingInterval: 2 * time.Second,
		PeerTimeout:  6 * time.Second,
		Seed:         42,
		Mode:         ModePush,
		PullInterval: 2 * time.Second,
		IHaveMaxIDs:  32,
		Network:      "gossipnet",
		LogDir:       "logs",
	}
}

// SelfAddr is the address the node binds and advertises.
func (c Config) SelfAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// RPCSocketPath resolves the unix socket path for local RPC. Empty
// means disabled.
func (c Config) RPCSocketPath() string {
	switch c.RPCSocket {
	case "none":
		return ""
	case "":
		return filepath.Join(os.TempDir(), fmt.Sprintf("gossipnet-%d.sock", c.Port))
	}
	return c.RPCSocket
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Fanout < 1 {
		return fmt.Errorf("fanout must be at least 1, got %d", c.Fanout)
	}
	if c.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1, got %d", c.TTL)
	}
	if c.PeerLimit < 1 {
		return fmt.Errorf("peer-limit must be at least 1, got %d", c.PeerLimit)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping-interval must be positive, got %s", c.PingInterval)
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("peer-timeout must be positive, got %s", c.PeerTimeout)
	}
	if c.Mode != ModePush && c.Mode != ModeHybrid {
		return fmt.Errorf("mode must be push or hybrid, got %q", c.Mode)
	}
	if c.Mode == ModeHybrid && c.PullInterval <= 0 {
		return fmt.Errorf("pull-interval must be positive, got %s", c.PullInterval)
	}
	if c.IHaveMaxIDs < 1 {
		return fmt.Errorf("ihave-max-ids must be at least 1, got %d", c.IHaveMaxIDs)
	}
	if c.PowK < 0 {
		return fmt.Errorf("pow-k must not be negative, got %d", c.PowK)
	}
	return nil
}

// Seconds converts a float seconds value, as used on the command line,
// to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// fileConfig mirrors Config for the optional TOML file. Pointer fields
// distinguish absent keys from zero values.
type fileConfig struct {
	Port         *int     `toml:"port"`
	Bootstrap    *string  `toml:"bootstrap"`
	Fanout       *int     `toml:"fanout"`
	TTL          *int     `toml:"ttl"`
	PeerLimit    *int     `toml:"peer_limit"`
	PingInterval *float64 `toml:"ping_interval"`
	PeerTimeout  *float64 `toml:"peer_timeout"`
	Seed         *int64   `toml:"seed"`
	Mode         *string  `toml:"mode"`
	PullInterval *float64 `toml:"pull_interval"`
	IHaveMaxIDs  *int     `toml:"ihave_max_ids"`
	PowK         *int     `toml:"pow_k"`
	Network      *string  `toml:"network"`
	DHT          *bool    `toml:"dht"`
	Registry     *string  `toml:"registry"`
	RPCSocket    *string  `toml:"rpc_socket"`
	LogDir       *string  `toml:"log_dir"`
}

// LoadFile overlays settings from a TOML file onto c. Only keys
// present in the file are applied; command line flags set explicitly
// still win because the flag layer re-applies them afterwards.
func (c *Config) LoadFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.Bootstrap != nil {
		c.Bootstrap = *fc.Bootstrap
	}
	if fc.Fanout != nil {
		c.Fanout = *fc.Fanout
	}
	if fc.TTL != nil {
		c.TTL = *fc.TTL
	}
	if fc.PeerLimit != nil {
		c.PeerLimit = *fc.PeerLimit
	}
	if fc.PingInterval != nil {
		c.PingInterval = Seconds(*fc.PingInterval)
	}
	if fc.PeerTimeout != nil {
		c.PeerTimeout = Seconds(*fc.PeerTimeout)
	}
	if fc.Seed != nil {
		c.Seed = *fc.Seed
	}
	if fc.Mode != nil {
		c.Mode = Mode(*fc.Mode)
	}
	if fc.PullInterval != nil {
		c.PullInterval = Seconds(*fc.PullInterval)
	}
	if fc.IHaveMaxIDs != nil {
		c.IHaveMaxIDs = *fc.IHaveMaxIDs
	}
	if fc.PowK != nil {
		c.PowK = *fc.PowK
	}
	if fc.Network != nil {
		c.Network = *fc.Network
	}
	if fc.DHT != nil {
		c.DHT = *fc.DHT
	}
	if fc.Registry != nil {
		c.Registry = *fc.Registry
	}
	if fc.RPCSocket != nil {
		c.RPCSocket = *fc.RPCSocket
	}
	if fc.LogDir != nil {
		c.LogDir = *fc.LogDir
	}
	return nil
}
