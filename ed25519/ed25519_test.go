package ed25519

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	priv := NewKeyFromSeed(bytes.Repeat([]byte{7}, SeedSize))
	pub := priv.Public().(PublicKey)
	msg := []byte("grandpa precommit")
	sig := Sign(priv, msg)

	assert.True(t, Verify(pub, msg, sig))
	assert.False(t, Verify(pub, []byte("other"), sig))
	assert.False(t, Verify(pub[:31], msg, sig))
	assert.False(t, Verify(pub, msg, sig[:63]))
}

func TestVerifyBatch(t *testing.T) {
	var entries []SignedMessage
	for i := 0; i < 4; i++ {
		pub, priv, err := GenerateKey(nil)
		require.NoError(t, err)
		msg := []byte{byte(i)}
		entries = append(entries, SignedMessage{PublicKey: pub, Message: msg, Signature: Sign(priv, msg)})
	}
	assert.True(t, VerifyBatch(entries))
	assert.True(t, VerifyBatch(nil))

	entries[2].Message = []byte("tampered")
	assert.False(t, VerifyBatch(entries))
}
