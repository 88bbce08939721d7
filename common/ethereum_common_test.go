package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashJSON(t *testing.T) {
	h := Keccak256([]byte("ismp"))
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, h, decoded)
}

func TestHexBytesJSON(t *testing.T) {
	b := HexBytes{0xde, 0xad, 0xbe, 0xef}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `"0xdeadbeef"`, string(data))

	var decoded HexBytes
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b, decoded)

	require.NoError(t, json.Unmarshal([]byte(`"0x"`), &decoded))
	assert.Len(t, decoded, 0)

	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &decoded))
}

func TestKeccakConcatenation(t *testing.T) {
	assert.Equal(t, Keccak256([]byte("ab")), Keccak256([]byte("a"), []byte("b")))
	assert.NotEqual(t, Keccak256([]byte("a")), Blake2Hash([]byte("a")))
}
