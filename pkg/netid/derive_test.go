package netid

import (
	"encoding/hex"
	"testing"
)

func TestInfohashDeterministic(t *testing.T) {
	a, err := Infohash("testnet")
	if err != nil {
		t.Fatalf("Infohash failed: %v", err)
	}
	b, err := Infohash("testnet")
	if err != nil {
		t.Fatalf("Infohash failed: %v", err)
	}
	if a != b {
		t.Error("same network name produced different infohashes")
	}
}

func TestInfohashDiffersByNetwork(t *testing.T) {
	a, _ := Infohash("net-one")
	b, _ := Infohash("net-two")
	if a == b {
		t.Error("different network names collided on the infohash")
	}
}

func TestInfohashRejectsEmptyName(t *testing.T) {
	if _, err := Infohash(""); err == nil {
		t.Error("empty network name accepted")
	}
}

func TestRegistryNamespace(t *testing.T) {
	ns, err := RegistryNamespace("testnet")
	if err != nil {
		t.Fatalf("RegistryNamespace failed: %v", err)
	}
	if len(ns) != 16 {
		t.Errorf("namespace %q is not 8 bytes of hex", ns)
	}
	if _, err := hex.DecodeString(ns); err != nil {
		t.Errorf("namespace %q is not hex: %v", ns, err)
	}

	again, _ := RegistryNamespace("testnet")
	if ns != again {
		t.Error("same network name produced different namespaces")
	}

	other, _ := RegistryNamespace("othernet")
	if ns == other {
		t.Error("different network names collided on the namespace")
	}

	if _, err := RegistryNamespace(""); err == nil {
		t.Error("empty network name accepted")
	}
}

func TestInfohashAndNamespaceIndependent(t *testing.T) {
	// The two derivations must not mirror each other, or one leaked
	// identifier would reveal the other rendezvous point.
	ih, _ := Infohash("testnet")
	ns, _ := RegistryNamespace("testnet")
	if hex.EncodeToString(ih[:8]) == ns {
		t.Error("infohash prefix equals the registry namespace")
	}
}
