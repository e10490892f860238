package gossip

import (
	"strings"
	"testing"
)

func TestComputeVerify(t *testing.T) {
	const k = 2
	token := ComputePoW("node-identity", k)

	if token.HashAlg != "sha256" {
		t.Errorf("hash_alg = %q, want sha256", token.HashAlg)
	}
	if token.DifficultyK != k {
		t.Errorf("difficulty_k = %d, want %d", token.DifficultyK, k)
	}
	if !strings.HasPrefix(token.DigestHex, strings.Repeat("0", k)) {
		t.Errorf("digest %s lacks %d leading zeros", token.DigestHex, k)
	}
	if token.DigestHex != powDigest("node-identity", token.Nonce) {
		t.Error("digest does not match recomputation")
	}

	if !ValidatePoW("node-identity", token, k) {
		t.Error("valid token rejected")
	}
}

func TestVerifyBindsIdentity(t *testing.T) {
	token := ComputePoW("alice", 2)
	if ValidatePoW("bob", token, 2) {
		t.Error("token computed for alice verified for bob")
	}
}

func TestVerifyHigherDifficultyFails(t *testing.T) {
	token := ComputePoW("alice", 2)
	if ValidatePoW("alice", token, 3) {
		t.Error("k=2 token verified at required k=3")
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	if ValidatePoW("alice", nil, 1) {
		t.Error("nil token verified")
	}

	token := ComputePoW("alice", 2)

	declared := *token
	declared.DifficultyK = 1
	if ValidatePoW("alice", &declared, 2) {
		t.Error("token declaring k below required verified")
	}

	forged := *token
	forged.DigestHex = strings.Repeat("0", 64)
	if ValidatePoW("alice", &forged, 2) {
		t.Error("token with forged digest verified")
	}

	replayed := *token
	replayed.Nonce++
	if ValidatePoW("alice", &replayed, 2) {
		t.Error("token with altered nonce verified")
	}
}

func TestComputeZeroDifficulty(t *testing.T) {
	token := ComputePoW("alice", 0)
	if token.Nonce != 0 {
		t.Errorf("k=0 should accept the first nonce, got %d", token.Nonce)
	}
	if !ValidatePoW("alice", token, 0) {
		t.Error("k=0 token rejected")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a := ComputePoW("carol", 2)
	b := ComputePoW("carol", 2)
	if a.Nonce != b.Nonce || a.DigestHex != b.DigestHex {
		t.Errorf("nonce/digest differ across runs: %d/%s vs %d/%s",
			a.Nonce, a.DigestHex, b.Nonce, b.DigestHex)
	}
}
