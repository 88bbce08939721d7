package common

import (
	"fmt"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
)

const (
	Sr25519PublicKeyLength = 32
	Sr25519SignatureLength = 64
)

// sr25519Context is the signing context substrate accounts sign under.
var sr25519Context = []byte("substrate")

// VerifySr25519 checks an sr25519 signature over msg.
func VerifySr25519(publicKey, msg, signature []byte) error {
	if len(publicKey) != Sr25519PublicKeyLength || len(signature) != Sr25519SignatureLength {
		return fmt.Errorf("sr25519: key length %d, signature length %d", len(publicKey), len(signature))
	}
	var pkb [Sr25519PublicKeyLength]byte
	copy(pkb[:], publicKey)
	pub := new(schnorrkel.PublicKey)
	if err := pub.Decode(pkb); err != nil {
		return fmt.Errorf("sr25519: public key: %v", err)
	}
	var sigb [Sr25519SignatureLength]byte
	copy(sigb[:], signature)
	sig := new(schnorrkel.Signature)
	if err := sig.Decode(sigb); err != nil {
		return fmt.Errorf("sr25519: signature: %v", err)
	}
	ok, err := pub.Verify(sig, schnorrkel.NewSigningContext(sr25519Context, msg))
	if err != nil {
		return fmt.Errorf("sr25519: %v", err)
	}
	if !ok {
		return fmt.Errorf("sr25519: signature does not verify")
	}
	return nil
}

// Sr25519Sign signs msg with the key expanded from a 32 byte mini secret and returns
// the public key and signature.
func Sr25519Sign(seed [32]byte, msg []byte) ([]byte, []byte, error) {
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		return nil, nil, err
	}
	sk := mini.ExpandEd25519()
	pub, err := sk.Public()
	if err != nil {
		return nil, nil, err
	}
	sig, err := sk.Sign(schnorrkel.NewSigningContext(sr25519Context, msg))
	if err != nil {
		return nil, nil, err
	}
	pkb := pub.Encode()
	sigb := sig.Encode()
	return pkb[:], sigb[:], nil
}
