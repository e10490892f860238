package gossip

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
)

// PoWToken proves a node spent work tied to its identity: the sha256
// of identity || decimal nonce starts with difficulty_k hex zeros.
type PoWToken struct {
	HashAlg     string  `json:"hash_alg"`
	DifficultyK int     `json:"difficulty_k"`
	Nonce       int64   `json:"nonce"`
	DigestHex   string  `json:"digest_hex"`
	ElapsedMs   float64 `json:"elapsed_ms"`
}

func powDigest(nodeID string, nonce int64) string {
	sum := sha256.Sum256([]byte(nodeID + strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(sum[:])
}

// ComputePoW scans nonces from zero until the digest carries k leading
// hex zeros. Deterministic for a given identity: the smallest valid
// nonce wins. Expected cost grows 16x per unit of k.
func ComputePoW(nodeID string, k int) *PoWToken {
	prefix := strings.Repeat("0", k)
	start := time.Now()
	for nonce := int64(0); ; nonce++ {
		digest := powDigest(nodeID, nonce)
		if strings.HasPrefix(digest, prefix) {
			elapsed := float64(time.Since(start)) / float64(time.Millisecond)
			return &PoWToken{
				HashAlg:     "sha256",
				DifficultyK: k,
				Nonce:       nonce,
				DigestHex:   digest,
				ElapsedMs:   math.Round(elapsed*10) / 10,
			}
		}
	}
}

// ValidatePoW reports whether token is a valid proof of at least
// requiredK difficulty for nodeID. The digest is recomputed, so a
// token minted for another identity never verifies.
func ValidatePoW(nodeID string, token *PoWToken, requiredK int) bool {
	if token == nil {
		return false
	}
	if token.DifficultyK < requiredK {
		return false
	}
	digest := powDigest(nodeID, token.Nonce)
	if digest != token.DigestHex {
		return false
	}
	return strings.HasPrefix(digest, strings.Repeat("0", requiredK))
}
