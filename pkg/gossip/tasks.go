package gossip

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// pingTick runs one liveness round: sweep dead peers, expire
// unanswered pings, then probe a sample of the survivors. Each PING
// carries a fresh correlation id and the next value of a sequence that
// only ever counts up.
func (n *Node) pingTick(now time.Time) {
	if n.peers.Len() == 0 {
		return
	}

	for _, addr := range n.peers.Sweep(now, n.cfg.PeerTimeout) {
		n.log.Infof("peer removed %s (timeout)", addr)
		metricPeersLive.Add(n.ctx, -1)
	}

	for id, at := range n.pending {
		if now.Sub(at) > n.cfg.PeerTimeout {
			delete(n.pending, id)
		}
	}
	n.pruneContacted(now)

	if n.peers.Len() == 0 {
		return
	}
	for _, addr := range n.peers.Sample(n.rng, n.cfg.Fanout, "") {
		n.pingSeq++
		ping := NewPing(n.id, n.addr, n.pingSeq)
		n.pending[ping.Payload.(PingPayload).PingID] = now
		n.sendTo(ping, addr)
	}
}

// pullTick runs one anti-entropy round in hybrid mode: advertise the
// most recently seen ids to a sample of peers. One shared envelope, so
// every target sees the same id set.
func (n *Node) pullTick() {
	if n.peers.Len() == 0 || n.seen.Len() == 0 {
		return
	}
	ids := n.seen.Recent(n.cfg.IHaveMaxIDs)
	ihave := NewIHave(n.id, n.addr, ids, n.cfg.IHaveMaxIDs)
	for _, addr := range n.peers.Sample(n.rng, n.cfg.Fanout, "") {
		n.sendTo(ihave, addr)
	}
}

// inputLoop feeds stdin lines to the actor. Blank lines are skipped.
// On EOF the loop just ends and the node keeps running, which is the
// normal case under a supervisor with a closed stdin.
func (n *Node) inputLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case n.lines <- line:
		case <-n.ctx.Done():
			return
		}
	}
}

// bootstrap introduces the node to its contact peer: one HELLO
// carrying the admission proof when one was computed, then one
// GET_PEERS. No retries; the ping loop takes over once peers answer.
func (n *Node) bootstrap() {
	n.log.Infof("bootstrap  -> %s", n.cfg.Bootstrap)
	n.sendTo(NewHello(n.id, n.addr, n.pow), n.cfg.Bootstrap)
	n.sendTo(NewGetPeers(n.id, n.addr, n.cfg.PeerLimit), n.cfg.Bootstrap)
}

// contactCandidate greets an address produced by a discovery backend.
// Known peers and recently contacted addresses are skipped so the
// backends can re-announce freely.
func (n *Node) contactCandidate(addr string) {
	if addr == "" || addr == n.addr || n.peers.Has(addr) {
		return
	}
	now := time.Now()
	if at, ok := n.contacted[addr]; ok && now.Sub(at) < contactWindow {
		return
	}
	n.contacted[addr] = now
	n.log.Infof("discovered  -> %s", addr)
	n.sendTo(NewHello(n.id, n.addr, n.pow), addr)
	n.sendTo(NewGetPeers(n.id, n.addr, n.cfg.PeerLimit), addr)
}

func (n *Node) pruneContacted(now time.Time) {
	for addr, at := range n.contacted {
		if now.Sub(at) >= contactWindow {
			delete(n.contacted, addr)
		}
	}
}
