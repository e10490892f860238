package gossip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// contactWindow suppresses repeat contact attempts to a discovered
// address.
const contactWindow = 60 * time.Second

// datagram is one inbound UDP packet.
type datagram struct {
	data []byte
	from net.Addr
}

// Status is the introspection snapshot served over local RPC.
type Status struct {
	ID     string
	Addr   string
	Mode   Mode
	Uptime time.Duration
	Sent   int
	Peers  int
	Seen   int
	Stored int
	PowK   int
}

// Node is the gossip actor. One run loop goroutine owns every piece of
// mutable state: the peer table, the seen store, pending pings, the
// seeded PRNG, and the send path. Reader goroutines feed the loop over
// channels and never touch state themselves, so handling is strictly
// serialised per arrival and sampling is reproducible for a fixed
// seed.
type Node struct {
	cfg  Config
	log  *Logger
	id   string
	addr string

	conn  net.PacketConn
	stdin io.Reader
	rng   *rand.Rand

	peers     *PeerTable
	seen      *SeenStore
	pending   map[string]time.Time // ping_id -> send time
	contacted map[string]time.Time // discovery contact dedup
	pingSeq   int
	pow       *PoWToken
	statsSent int
	started   time.Time

	datagrams  chan datagram
	lines      chan string
	candidates chan string
	queries    chan func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNode(cfg Config, log *Logger) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	self := cfg.SelfAddr()
	return &Node{
		cfg:        cfg,
		log:        log,
		id:         NewMsgID(),
		addr:       self,
		stdin:      os.Stdin,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		peers:      NewPeerTable(self, cfg.PeerLimit),
		seen:       NewSeenStore(seenSetMax),
		pending:    make(map[string]time.Time),
		contacted:  make(map[string]time.Time),
		datagrams:  make(chan datagram, 128),
		lines:      make(chan string, 16),
		candidates: make(chan string, 64),
		queries:    make(chan func(), 16),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the node's identity, fixed for the process lifetime.
func (n *Node) ID() string { return n.id }

// Addr returns the bound "ip:port".
func (n *Node) Addr() string { return n.addr }

// Run binds the UDP socket and drives the node until Stop. The bind
// error is the only error surfaced to the caller; everything after
// startup is handled and logged in place.
func (n *Node) Run() error {
	udpAddr, err := net.ResolveUDPAddr("udp", n.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", n.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp %s: %w", n.addr, err)
	}
	n.conn = conn
	n.started = time.Now()
	n.log.Infof("node started  id=%s  addr=%s", n.id, n.addr)

	if n.cfg.PowK > 0 {
		n.log.Infof("computing PoW  k=%d ...", n.cfg.PowK)
		n.pow = ComputePoW(n.id, n.cfg.PowK)
		metricPowMs.Record(n.ctx, n.pow.ElapsedMs)
		n.log.Infof("PoW found  nonce=%d  digest=%s  elapsed=%.1fms",
			n.pow.Nonce, n.pow.DigestHex[:16], n.pow.ElapsedMs)
	}

	if n.cfg.Bootstrap != "" {
		n.bootstrap()
	}

	if n.cfg.Mode == ModeHybrid {
		n.log.Infof("hybrid mode enabled  pull_interval=%s  ihave_max_ids=%d",
			n.cfg.PullInterval, n.cfg.IHaveMaxIDs)
	}

	n.wg.Add(1)
	go n.readLoop()

	// The stdin reader is not tracked by the WaitGroup: a blocked
	// os.Stdin read cannot be interrupted, and the goroutine dies with
	// the process.
	if f, ok := n.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(os.Stderr, "type a line and press enter to gossip it")
	}
	go n.inputLoop(n.stdin)

	n.loop()

	n.log.Infof("STATS sent=%d peers=%d seen=%d", n.statsSent, n.peers.Len(), n.seen.Len())
	n.log.Infof("node stopped")
	n.conn.Close()
	n.wg.Wait()
	return nil
}

// Stop asks the run loop to finish. Safe to call more than once and
// from any goroutine.
func (n *Node) Stop() { n.cancel() }

// loop is the actor body. Every state mutation and every send happens
// here.
func (n *Node) loop() {
	pingTicker := time.NewTicker(n.cfg.PingInterval)
	defer pingTicker.Stop()

	var pullC <-chan time.Time
	if n.cfg.Mode == ModeHybrid {
		pullTicker := time.NewTicker(n.cfg.PullInterval)
		defer pullTicker.Stop()
		pullC = pullTicker.C
	}

	for {
		select {
		case <-n.ctx.Done():
			return
		case d := <-n.datagrams:
			n.handleDatagram(d)
		case line := <-n.lines:
			n.broadcastGossip(line, "news")
		case <-pingTicker.C:
			n.pingTick(time.Now())
		case <-pullC:
			n.pullTick()
		case addr := <-n.candidates:
			n.contactCandidate(addr)
		case f := <-n.queries:
			f()
		}
	}
}

// readLoop feeds inbound datagrams to the actor. The short deadline
// keeps the loop responsive to shutdown without closing the socket
// under an in-flight read.
func (n *Node) readLoop() {
	defer n.wg.Done()
	buf := make([]byte, 65535)
	for {
		n.conn.SetReadDeadline(time.Now().Add(time.Second))
		nr, from, err := n.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				select {
				case <-n.ctx.Done():
					return
				default:
					continue
				}
			}
			if errors.Is(err, net.ErrClosed) || n.ctx.Err() != nil {
				return
			}
			n.log.Warnf("udp read: %s", err)
			continue
		}
		data := make([]byte, nr)
		copy(data, buf[:nr])
		select {
		case n.datagrams <- datagram{data: data, from: from}:
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) handleDatagram(d datagram) {
	env, err := Decode(d.data)
	if err != nil {
		metricBadPackets.Add(n.ctx, 1)
		n.log.Warnf("bad packet from %s", d.from)
		return
	}
	metricReceived.Add(n.ctx, 1)
	n.dispatch(env)
}

func (n *Node) dispatch(env *Envelope) {
	switch env.Kind {
	case KindHello:
		p, _ := env.Payload.(HelloPayload)
		n.handleHello(env, p)
	case KindGetPeers:
		p, _ := env.Payload.(GetPeersPayload)
		n.handleGetPeers(env, p)
	case KindPeersList:
		p, _ := env.Payload.(PeersListPayload)
		n.handlePeersList(env, p)
	case KindGossip:
		p, _ := env.Payload.(GossipPayload)
		n.handleGossip(env, p)
	case KindPing:
		p, _ := env.Payload.(PingPayload)
		n.handlePing(env, p)
	case KindPong:
		p, _ := env.Payload.(PongPayload)
		n.handlePong(env, p)
	case KindIHave:
		p, _ := env.Payload.(IHavePayload)
		n.handleIHave(env, p)
	case KindIWant:
		p, _ := env.Payload.(IWantPayload)
		n.handleIWant(env, p)
	}
}

func (n *Node) handleHello(env *Envelope, p HelloPayload) {
	n.log.Infof("HELLO from %s (%s)", env.SenderAddr, shortID(env.SenderID))

	if n.cfg.PowK > 0 {
		if !ValidatePoW(env.SenderID, p.Pow, n.cfg.PowK) {
			n.log.Warnf("HELLO rejected: invalid PoW from %s", env.SenderAddr)
			return
		}
	}

	n.touchPeer(env.SenderID, env.SenderAddr)

	// Reply with our peer list so the newcomer can discover the network.
	n.sendPeersList(env.SenderAddr, 20)
}

func (n *Node) handleGetPeers(env *Envelope, p GetPeersPayload) {
	n.log.Infof("GET_PEERS from %s (max=%d)", env.SenderAddr, p.MaxPeers)

	// Only serve senders that are already admitted when PoW is on.
	if n.cfg.PowK > 0 && !n.peers.Has(env.SenderAddr) {
		n.log.Warnf("GET_PEERS ignored: %s not authenticated (no HELLO with PoW)",
			env.SenderAddr)
		return
	}

	n.touchPeer(env.SenderID, env.SenderAddr)
	n.sendPeersList(env.SenderAddr, p.MaxPeers)
}

func (n *Node) handlePeersList(env *Envelope, p PeersListPayload) {
	n.log.Infof("PEERS_LIST from %s  (%d peers)", env.SenderAddr, len(p.Peers))
	n.touchPeer(env.SenderID, env.SenderAddr)
	for _, pe := range p.Peers {
		if pe.Addr != "" && pe.Addr != n.addr {
			n.touchPeer(pe.NodeID, pe.Addr)
		}
	}
}

func (n *Node) handleGossip(env *Envelope, p GossipPayload) {
	if n.seen.Contains(env.MsgID) {
		metricDuplicates.Add(n.ctx, 1)
		return // duplicate
	}

	n.seen.Mark(env.MsgID, env)

	n.log.Infof("GOSSIP recv  msg_id=%s  data=%s  ttl=%d",
		shortID(env.MsgID), preview(p.Data), env.TTL)

	n.touchPeer(env.SenderID, env.SenderAddr)

	newTTL := env.TTL - 1
	if newTTL <= 0 {
		return
	}
	n.forwardGossip(env, p, newTTL)
}

// forwardGossip relays one accepted GOSSIP to fanout peers, never back
// to the peer it came from. The message id and origin fields survive
// unchanged; only sender and ttl are rewritten.
func (n *Node) forwardGossip(env *Envelope, p GossipPayload, newTTL int) {
	originID := p.OriginID
	if originID == "" {
		originID = n.id
	}
	for _, addr := range n.peers.Sample(n.rng, n.cfg.Fanout, env.SenderAddr) {
		fwd := NewGossip(n.id, n.addr, p.Topic, p.Data, originID,
			newTTL, p.OriginTimestampMs, env.MsgID)
		n.sendTo(fwd, addr)
		n.log.Infof("GOSSIP fwd   msg_id=%s -> %s  ttl=%d",
			shortID(env.MsgID), addr, newTTL)
	}
}

func (n *Node) handlePing(env *Envelope, p PingPayload) {
	n.touchPeer(env.SenderID, env.SenderAddr)
	n.sendTo(NewPong(n.id, n.addr, p.PingID, p.Seq), env.SenderAddr)
}

func (n *Node) handlePong(env *Envelope, p PongPayload) {
	if at, ok := n.pending[p.PingID]; ok {
		delete(n.pending, p.PingID)
		rtt := float64(time.Since(at)) / float64(time.Millisecond)
		n.log.Debugf("PONG from %s  rtt=%.1fms", env.SenderAddr, rtt)
	}
	n.touchPeer(env.SenderID, env.SenderAddr)
}

func (n *Node) handleIHave(env *Envelope, p IHavePayload) {
	n.touchPeer(env.SenderID, env.SenderAddr)
	var missing []string
	for _, id := range p.IDs {
		if !n.seen.Contains(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		n.sendTo(NewIWant(n.id, n.addr, missing), env.SenderAddr)
	}
}

func (n *Node) handleIWant(env *Envelope, p IWantPayload) {
	n.touchPeer(env.SenderID, env.SenderAddr)
	for _, id := range p.IDs {
		stored, ok := n.seen.Get(id)
		if !ok {
			continue
		}
		sp, _ := stored.Payload.(GossipPayload)
		// Direct delivery: ttl 1 stops the receiver from re-forwarding.
		fwd := NewGossip(n.id, n.addr, sp.Topic, sp.Data, sp.OriginID,
			1, sp.OriginTimestampMs, stored.MsgID)
		n.sendTo(fwd, env.SenderAddr)
	}
}

// broadcastGossip injects a fresh message and pushes it to fanout
// peers. Returns the new message id.
func (n *Node) broadcastGossip(data, topic string) string {
	env := NewGossip(n.id, n.addr, topic, data, n.id, n.cfg.TTL, 0, "")
	n.seen.Mark(env.MsgID, env)
	n.log.Infof("GOSSIP new   msg_id=%s  data=%s", shortID(env.MsgID), preview(data))

	targets := n.peers.Sample(n.rng, n.cfg.Fanout, "")
	if len(targets) == 0 {
		n.log.Warnf("no peers to gossip to")
		return env.MsgID
	}
	sp := env.Payload.(GossipPayload)
	for _, addr := range targets {
		fwd := NewGossip(n.id, n.addr, sp.Topic, sp.Data, n.id,
			n.cfg.TTL, sp.OriginTimestampMs, env.MsgID)
		n.sendTo(fwd, addr)
	}
	return env.MsgID
}

// touchPeer records activity from addr, logging table changes.
func (n *Node) touchPeer(nodeID, addr string) {
	added, evicted := n.peers.Touch(nodeID, addr, time.Now())
	if evicted != "" {
		n.log.Infof("peer evicted %s", evicted)
		metricPeersLive.Add(n.ctx, -1)
	}
	if added {
		who := "?"
		if nodeID != "" {
			who = shortID(nodeID)
		}
		n.log.Infof("peer added   %s (%s)", addr, who)
		metricPeersLive.Add(n.ctx, 1)
	}
}

func (n *Node) sendPeersList(target string, max int) {
	n.sendTo(NewPeersList(n.id, n.addr, n.peers.Snapshot(max)), target)
}

// sendTo serialises and transmits one envelope. Failures are logged
// and swallowed: delivery is fire-and-forget.
func (n *Node) sendTo(env *Envelope, addr string) {
	raw, err := env.Encode()
	if err != nil {
		n.log.Warnf("send failed -> %s: %s", addr, err)
		return
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		n.log.Warnf("send failed -> %s: %s", addr, err)
		return
	}
	if _, err := n.conn.WriteTo(raw, udpAddr); err != nil {
		n.log.Warnf("send failed -> %s: %s", addr, err)
		return
	}
	n.statsSent++
	metricSent.Add(n.ctx, 1)
	n.log.Debugf("SENT %s -> %s", env.Kind, addr)
}

func preview(data string) string {
	if len(data) > 40 {
		return data[:40]
	}
	return data
}

// do runs f on the actor goroutine and waits for it.
func (n *Node) do(f func()) error {
	done := make(chan struct{})
	select {
	case n.queries <- func() { f(); close(done) }:
	case <-n.ctx.Done():
		return errors.New("node stopped")
	}
	select {
	case <-done:
		return nil
	case <-n.ctx.Done():
		return errors.New("node stopped")
	}
}

// Status snapshots the node state for introspection.
func (n *Node) Status() (Status, error) {
	var s Status
	err := n.do(func() {
		s = Status{
			ID:     n.id,
			Addr:   n.addr,
			Mode:   n.cfg.Mode,
			Uptime: time.Since(n.started),
			Sent:   n.statsSent,
			Peers:  n.peers.Len(),
			Seen:   n.seen.Len(),
			Stored: n.seen.StoredLen(),
			PowK:   n.cfg.PowK,
		}
	})
	return s, err
}

// Peers snapshots the peer table for introspection.
func (n *Node) Peers() ([]Peer, error) {
	var out []Peer
	err := n.do(func() {
		for _, p := range n.peers.All() {
			out = append(out, *p)
		}
	})
	return out, err
}

// Publish injects data as a fresh gossip message on topic and returns
// its message id. An empty topic means "news".
func (n *Node) Publish(data, topic string) (string, error) {
	if topic == "" {
		topic = "news"
	}
	var id string
	err := n.do(func() { id = n.broadcastGossip(data, topic) })
	return id, err
}

// AddCandidate hands a discovered address to the actor, which contacts
// it with HELLO and GET_PEERS if it is new. Drops on backlog: the
// discovery backends re-announce on their own cadence.
func (n *Node) AddCandidate(addr string) {
	select {
	case n.candidates <- addr:
	case <-n.ctx.Done():
	default:
	}
}
