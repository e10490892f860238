// Package netid derives rendezvous identifiers from the human network
// name, so unrelated overlays sharing the same DHT or redis instance
// never collide.
package netid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Infohash derives the 20 byte mainline DHT infohash for a network:
// SHA256(name || "|dht-v1")[0:20].
func Infohash(name string) ([20]byte, error) {
	var id [20]byte
	if name == "" {
		return id, fmt.Errorf("network name must not be empty")
	}
	hash := sha256.Sum256([]byte(name + "|dht-v1"))
	copy(id[:], hash[:20])
	return id, nil
}

// RegistryNamespace derives the key namespace used by the redis
// registry: 8 bytes of HKDF-SHA256, hex encoded.
func RegistryNamespace(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("network name must not be empty")
	}
	var b [8]byte
	if err := deriveHKDF(name, "gossipnet-registry-v1", b[:]); err != nil {
		return "", fmt.Errorf("failed to derive registry namespace: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// deriveHKDF derives key material using HKDF-SHA256
func deriveHKDF(secret, salt string, output []byte) error {
	reader := hkdf.New(sha256.New, []byte(secret), []byte(salt), nil)
	_, err := io.ReadFull(reader, output)
	return err
}
