package gossip

import (
	"math/rand"
	"time"
)

// Peer is one peer table entry.
type Peer struct {
	NodeID   string
	Addr     string // "ip:port"
	LastSeen time.Time
}

// PeerTable is the bounded set of known peers, keyed by address.
// Iteration follows insertion order so snapshots and sampling are
// reproducible under a fixed seed. The table never contains the node's
// own address and never grows past its limit: inserting at capacity
// evicts the least recently seen entry first.
type PeerTable struct {
	selfAddr string
	limit    int
	entries  map[string]*Peer
	order    []string
}

func NewPeerTable(selfAddr string, limit int) *PeerTable {
	return &PeerTable{
		selfAddr: selfAddr,
		limit:    limit,
		entries:  make(map[string]*Peer),
	}
}

// Touch adds or refreshes the peer at addr. A refresh updates LastSeen
// and fills in the node id when one is supplied. It reports whether a
// new entry was created and, if the table was full, which address was
// evicted to make room.
func (t *PeerTable) Touch(nodeID, addr string, now time.Time) (added bool, evicted string) {
	if addr == "" || addr == t.selfAddr {
		return false, ""
	}
	if p, ok := t.entries[addr]; ok {
		p.LastSeen = now
		if nodeID != "" {
			p.NodeID = nodeID
		}
		return false, ""
	}
	if len(t.entries) >= t.limit {
		evicted = t.evictOldest()
	}
	t.entries[addr] = &Peer{NodeID: nodeID, Addr: addr, LastSeen: now}
	t.order = append(t.order, addr)
	return true, evicted
}

// evictOldest removes the entry with the smallest LastSeen, breaking
// ties on the lexicographically smallest address.
func (t *PeerTable) evictOldest() string {
	oldest := ""
	var oldestAt time.Time
	for _, addr := range t.order {
		p := t.entries[addr]
		if oldest == "" || p.LastSeen.Before(oldestAt) ||
			(p.LastSeen.Equal(oldestAt) && addr < oldest) {
			oldest, oldestAt = addr, p.LastSeen
		}
	}
	if oldest != "" {
		t.remove(oldest)
	}
	return oldest
}

func (t *PeerTable) remove(addr string) {
	delete(t.entries, addr)
	for i, a := range t.order {
		if a == addr {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Remove drops addr from the table, reporting whether it was present.
func (t *PeerTable) Remove(addr string) bool {
	if _, ok := t.entries[addr]; !ok {
		return false
	}
	t.remove(addr)
	return true
}

// Sweep removes every peer not seen within timeout and returns the
// removed addresses in table order.
func (t *PeerTable) Sweep(now time.Time, timeout time.Duration) []string {
	var dead []string
	for _, addr := range t.order {
		if now.Sub(t.entries[addr].LastSeen) > timeout {
			dead = append(dead, addr)
		}
	}
	for _, addr := range dead {
		t.remove(addr)
	}
	return dead
}

// Sample returns up to k distinct peer addresses drawn with rng,
// skipping exclude. Candidates keep table order before the draw so a
// seeded rng yields a reproducible selection.
func (t *PeerTable) Sample(rng *rand.Rand, k int, exclude string) []string {
	candidates := make([]string, 0, len(t.order))
	for _, addr := range t.order {
		if addr != exclude {
			candidates = append(candidates, addr)
		}
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:k]
}

// Snapshot returns up to max entries in table order, in wire form.
func (t *PeerTable) Snapshot(max int) []PeerEntry {
	if max > len(t.order) {
		max = len(t.order)
	}
	if max < 0 {
		max = 0
	}
	out := make([]PeerEntry, 0, max)
	for _, addr := range t.order[:max] {
		p := t.entries[addr]
		out = append(out, PeerEntry{NodeID: p.NodeID, Addr: p.Addr})
	}
	return out
}

// All returns every entry in table order. The slice is fresh but the
// pointed-to peers are live table state.
func (t *PeerTable) All() []*Peer {
	out := make([]*Peer, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, t.entries[addr])
	}
	return out
}

func (t *PeerTable) Has(addr string) bool {
	_, ok := t.entries[addr]
	return ok
}

func (t *PeerTable) Len() int { return len(t.entries) }
