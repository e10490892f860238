package gossip

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func TestTouchAddAndRefresh(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 5)
	t0 := time.Now()

	added, evicted := pt.Touch("", "127.0.0.1:8001", t0)
	if !added || evicted != "" {
		t.Fatalf("first touch: added=%v evicted=%q", added, evicted)
	}
	if pt.Len() != 1 {
		t.Fatalf("len = %d, want 1", pt.Len())
	}

	// Refresh keeps the entry and adopts the node id.
	added, _ = pt.Touch("node-a", "127.0.0.1:8001", t0.Add(time.Second))
	if added {
		t.Error("refresh reported as add")
	}
	all := pt.All()
	if all[0].NodeID != "node-a" {
		t.Errorf("node id not adopted: %q", all[0].NodeID)
	}
	if !all[0].LastSeen.Equal(t0.Add(time.Second)) {
		t.Errorf("last seen not refreshed")
	}

	// A later empty node id must not erase the known one.
	pt.Touch("", "127.0.0.1:8001", t0.Add(2*time.Second))
	if pt.All()[0].NodeID != "node-a" {
		t.Error("empty node id overwrote the known one")
	}
}

func TestTouchNeverAddsSelf(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 5)
	added, _ := pt.Touch("me", "127.0.0.1:8000", time.Now())
	if added || pt.Len() != 0 {
		t.Error("self address entered the peer table")
	}
	pt.Touch("", "", time.Now())
	if pt.Len() != 0 {
		t.Error("empty address entered the peer table")
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 3)
	t0 := time.Now()
	pt.Touch("", "127.0.0.1:8001", t0)
	pt.Touch("", "127.0.0.1:8002", t0.Add(time.Second))
	pt.Touch("", "127.0.0.1:8003", t0.Add(2*time.Second))

	added, evicted := pt.Touch("", "127.0.0.1:8004", t0.Add(3*time.Second))
	if !added {
		t.Fatal("insert at capacity failed")
	}
	if evicted != "127.0.0.1:8001" {
		t.Errorf("evicted %q, want the least recently seen 127.0.0.1:8001", evicted)
	}
	if pt.Len() != 3 {
		t.Errorf("len = %d, want 3 after eviction", pt.Len())
	}
	if pt.Has("127.0.0.1:8001") {
		t.Error("evicted peer still present")
	}
}

func TestEvictionTieBreaksByAddress(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 2)
	t0 := time.Now()
	pt.Touch("", "127.0.0.1:8002", t0)
	pt.Touch("", "127.0.0.1:8001", t0) // same last seen

	_, evicted := pt.Touch("", "127.0.0.1:8003", t0.Add(time.Second))
	if evicted != "127.0.0.1:8001" {
		t.Errorf("evicted %q, want lexicographically smallest 127.0.0.1:8001", evicted)
	}
}

func TestSweep(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 10)
	t0 := time.Now()
	pt.Touch("", "127.0.0.1:8001", t0)
	pt.Touch("", "127.0.0.1:8002", t0.Add(5*time.Second))
	pt.Touch("", "127.0.0.1:8003", t0.Add(9*time.Second))

	dead := pt.Sweep(t0.Add(10*time.Second), 6*time.Second)
	if len(dead) != 1 || dead[0] != "127.0.0.1:8001" {
		t.Errorf("swept %v, want [127.0.0.1:8001]", dead)
	}
	if pt.Len() != 2 {
		t.Errorf("len = %d, want 2", pt.Len())
	}
}

func TestRemove(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 10)
	pt.Touch("", "127.0.0.1:8001", time.Now())

	if !pt.Remove("127.0.0.1:8001") {
		t.Error("remove of present entry returned false")
	}
	if pt.Remove("127.0.0.1:8001") {
		t.Error("remove of absent entry returned true")
	}
}

func TestSampleExcludesAndBounds(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 10)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		pt.Touch("", fmt.Sprintf("127.0.0.1:%d", 8000+i), now)
	}
	rng := rand.New(rand.NewSource(42))

	got := pt.Sample(rng, 3, "127.0.0.1:8003")
	if len(got) != 3 {
		t.Fatalf("sample size = %d, want 3", len(got))
	}
	seen := map[string]bool{}
	for _, addr := range got {
		if addr == "127.0.0.1:8003" {
			t.Error("excluded address sampled")
		}
		if seen[addr] {
			t.Errorf("duplicate %s in sample", addr)
		}
		seen[addr] = true
	}

	// Asking for more than remain returns everyone.
	all := pt.Sample(rng, 99, "")
	if len(all) != 5 {
		t.Errorf("oversized sample = %d, want 5", len(all))
	}

	empty := NewPeerTable("127.0.0.1:8000", 10)
	if got := empty.Sample(rng, 3, ""); got != nil {
		t.Errorf("sample of empty table = %v, want nil", got)
	}
}

func TestSampleDeterministicForSeed(t *testing.T) {
	build := func() *PeerTable {
		pt := NewPeerTable("127.0.0.1:8000", 10)
		now := time.Unix(1730000000, 0)
		for i := 1; i <= 8; i++ {
			pt.Touch("", fmt.Sprintf("127.0.0.1:%d", 8000+i), now)
		}
		return pt
	}

	a := build().Sample(rand.New(rand.NewSource(42)), 3, "")
	b := build().Sample(rand.New(rand.NewSource(42)), 3, "")
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("sample sizes %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged: %v vs %v", a, b)
		}
	}

	c := build().Sample(rand.New(rand.NewSource(43)), 3, "")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Log("seeds 42 and 43 chose the same targets; allowed but unexpected")
	}
}

func TestSnapshot(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 10)
	now := time.Now()
	pt.Touch("n1", "127.0.0.1:8001", now)
	pt.Touch("n2", "127.0.0.1:8002", now)
	pt.Touch("n3", "127.0.0.1:8003", now)

	snap := pt.Snapshot(2)
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	if snap[0].Addr != "127.0.0.1:8001" || snap[0].NodeID != "n1" {
		t.Errorf("snapshot[0] = %+v, want first inserted peer", snap[0])
	}

	if got := pt.Snapshot(99); len(got) != 3 {
		t.Errorf("oversized snapshot = %d entries, want 3", len(got))
	}
}

func TestBoundNeverExceeded(t *testing.T) {
	pt := NewPeerTable("127.0.0.1:8000", 4)
	now := time.Now()
	for i := 0; i < 50; i++ {
		pt.Touch("", fmt.Sprintf("127.0.0.1:%d", 9000+i), now.Add(time.Duration(i)*time.Millisecond))
		if pt.Len() > 4 {
			t.Fatalf("table grew to %d past limit 4", pt.Len())
		}
	}
}
