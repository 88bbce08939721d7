// Package ed25519 signs with the standard library and verifies with ZIP-215 rules,
// so every node accepts exactly the same set of signatures.
package ed25519

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"io"

	consensus "github.com/hdevalence/ed25519consensus"
)

const (
	SeedSize       = stded25519.SeedSize
	PublicKeySize  = stded25519.PublicKeySize
	PrivateKeySize = stded25519.PrivateKeySize
	SignatureSize  = stded25519.SignatureSize
)

type (
	PublicKey  = stded25519.PublicKey
	PrivateKey = stded25519.PrivateKey
)

func NewKeyFromSeed(seed []byte) PrivateKey {
	return stded25519.NewKeyFromSeed(seed)
}

// GenerateKey reads randomness from r, or crypto/rand when r is nil.
func GenerateKey(r io.Reader) (PublicKey, PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	return stded25519.GenerateKey(r)
}

func Sign(privateKey PrivateKey, message []byte) []byte {
	return stded25519.Sign(privateKey, message)
}

// Verify applies ZIP-215 rules. Malformed keys or signatures are rejected.
func Verify(publicKey []byte, message, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return consensus.Verify(publicKey, message, sig)
}

// SignedMessage is one entry of a batch verification.
type SignedMessage struct {
	PublicKey []byte
	Message   []byte
	Signature []byte
}

// VerifyBatch checks all signatures at once. It reports false if any entry is invalid.
func VerifyBatch(entries []SignedMessage) bool {
	if len(entries) == 0 {
		return true
	}
	bv := consensus.NewBatchVerifier()
	for _, e := range entries {
		if len(e.PublicKey) != PublicKeySize || len(e.Signature) != SignatureSize {
			return false
		}
		bv.Add(e.PublicKey, e.Message, e.Signature)
	}
	return bv.Verify()
}
