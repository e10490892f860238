// Package discovery provides optional bootstrap backends. Each backend
// finds addresses of other nodes on the same network name and hands
// them to the gossip node, which does the protocol introduction
// itself.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/anacrolix/dht/v2"
)

const (
	dhtAnnounceInterval = 15 * time.Minute
	dhtQueryInterval    = 30 * time.Second
	dhtLookupTimeout    = 30 * time.Second
)

// Well-known BitTorrent DHT bootstrap nodes
var DHTBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"dht.libtorrent.org:25401",
}

// DHT rendezvous over the BitTorrent mainline DHT: the node announces
// its gossip port under the network infohash and collects the
// addresses other nodes announced there. The DHT server runs on its
// own OS-assigned UDP port, separate from the gossip socket.
type DHT struct {
	infohash [20]byte
	port     int // gossip port published in announces
	onPeer   func(addr string)
	logf     func(format string, args ...any)

	server *dht.Server
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDHT(infohash [20]byte, gossipPort int, onPeer func(string), logf func(string, ...any)) *DHT {
	ctx, cancel := context.WithCancel(context.Background())
	return &DHT{
		infohash: infohash,
		port:     gossipPort,
		onPeer:   onPeer,
		logf:     logf,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the DHT socket, joins the public DHT, and begins the
// announce and query loops.
func (d *DHT) Start() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("failed to bind DHT port: %w", err)
	}

	cfg := dht.NewDefaultServerConfig()
	cfg.Conn = conn
	cfg.NoSecurity = false

	var bootstrapAddrs []dht.Addr
	for _, node := range DHTBootstrapNodes {
		addr, err := net.ResolveUDPAddr("udp", node)
		if err != nil {
			d.logf("DHT bootstrap node %s unresolvable: %v", node, err)
			continue
		}
		bootstrapAddrs = append(bootstrapAddrs, dht.NewAddr(addr))
	}
	if len(bootstrapAddrs) == 0 {
		conn.Close()
		return fmt.Errorf("no DHT bootstrap nodes resolved")
	}
	cfg.StartingNodes = func() ([]dht.Addr, error) {
		return bootstrapAddrs, nil
	}

	server, err := dht.NewServer(cfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create DHT server: %w", err)
	}
	d.server = server
	d.logf("DHT listening  port=%d", conn.LocalAddr().(*net.UDPAddr).Port)

	// A get_peers lookup against our own infohash forces contact with
	// the bootstrap nodes and fills the routing table.
	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, dhtLookupTimeout)
		defer cancel()
		a, err := d.server.Announce(d.infohash, 0, false)
		if err != nil {
			d.logf("DHT bootstrap lookup failed: %v", err)
			return
		}
		defer a.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-a.Peers:
				if !ok {
					return
				}
			}
		}
	}()

	go d.waitBootstrap()
	go d.announceLoop()
	go d.queryLoop()
	return nil
}

// Stop shuts the server down; the DHT socket closes with it.
func (d *DHT) Stop() {
	d.cancel()
	if d.server != nil {
		d.server.Close()
	}
}

func (d *DHT) waitBootstrap() {
	for i := 0; i < 10; i++ {
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(time.Second):
		}
		if n := d.server.NumNodes(); n > 0 {
			d.logf("DHT bootstrap complete  nodes=%d", n)
			return
		}
	}
	d.logf("DHT bootstrap slow  nodes=%d", d.server.NumNodes())
}

func (d *DHT) announceLoop() {
	d.announce()
	ticker := time.NewTicker(dhtAnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.announce()
		}
	}
}

// announce publishes our gossip port under the network infohash.
func (d *DHT) announce() {
	ctx, cancel := context.WithTimeout(d.ctx, dhtLookupTimeout)
	defer cancel()

	d.logf("DHT announce  network=%x  port=%d", d.infohash[:8], d.port)
	announce, err := d.server.Announce(d.infohash, d.port, false)
	if err != nil {
		d.logf("DHT announce failed: %v", err)
		return
	}
	defer announce.Close()

	var responses int
	for {
		select {
		case <-ctx.Done():
			d.logf("DHT announced to %d nodes", responses)
			return
		case _, ok := <-announce.Peers:
			if !ok {
				d.logf("DHT announced to %d nodes", responses)
				return
			}
			responses++
		}
	}
}

func (d *DHT) queryLoop() {
	d.query()
	ticker := time.NewTicker(dhtQueryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.query()
		}
	}
}

// query runs a get_peers lookup (announce with port 0) and feeds every
// address found to the node.
func (d *DHT) query() {
	ctx, cancel := context.WithTimeout(d.ctx, dhtLookupTimeout)
	defer cancel()

	peers, err := d.server.Announce(d.infohash, 0, false)
	if err != nil {
		d.logf("DHT query failed: %v", err)
		return
	}
	defer peers.Close()

	var found int
	for {
		select {
		case <-ctx.Done():
			d.logf("DHT query complete  found=%d", found)
			return
		case values, ok := <-peers.Peers:
			if !ok {
				d.logf("DHT query complete  found=%d", found)
				return
			}
			for _, addr := range values.Peers {
				found++
				d.onPeer(addr.String())
			}
		}
	}
}
