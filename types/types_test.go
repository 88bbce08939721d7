package types

import (
	"encoding/json"
	"testing"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePost() PostRequest {
	return PostRequest{
		Source:           PolkadotStateMachine(3367),
		Dest:             EvmStateMachine(1),
		Nonce:            7,
		From:             common.HexBytes("sender"),
		To:               common.HexBytes("receiver"),
		TimeoutTimestamp: 1_000,
		Body:             common.HexBytes{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestStateMachineText(t *testing.T) {
	cases := []StateMachine{
		EvmStateMachine(1),
		PolkadotStateMachine(3367),
		KusamaStateMachine(2000),
		SubstrateStateMachine([4]byte{'h', 'y', 'p', '0'}),
		TendermintStateMachine([4]byte{'o', 's', 'm', 'o'}),
	}
	expected := []string{"EVM-1", "POLKADOT-3367", "KUSAMA-2000", "SUBSTRATE-hyp0", "TENDERMINT-osmo"}
	for i, sm := range cases {
		assert.Equal(t, expected[i], sm.String())
		parsed, err := ParseStateMachine(expected[i])
		require.NoError(t, err)
		assert.Equal(t, sm, parsed)
	}

	_, err := ParseStateMachine("EVM")
	assert.Error(t, err)
	_, err = ParseStateMachine("SUBSTRATE-toolong")
	assert.Error(t, err)
	_, err = ParseStateMachine("COSMOS-1")
	assert.Error(t, err)
}

func TestStateMachineJSONMapKey(t *testing.T) {
	fees := map[StateMachine]uint64{EvmStateMachine(10): 5}
	data, err := json.Marshal(fees)
	require.NoError(t, err)
	assert.JSONEq(t, `{"EVM-10":5}`, string(data))

	var back map[StateMachine]uint64
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, fees, back)
}

func TestStateMachineEncoding(t *testing.T) {
	assert.Equal(t, []byte{0, 1, 0, 0, 0}, codec.Encode(EvmStateMachine(1)))
	assert.Equal(t, []byte{3, 'h', 'y', 'p', '0'}, codec.Encode(SubstrateStateMachine([4]byte{'h', 'y', 'p', '0'})))

	var sm StateMachine
	err := codec.Decode([]byte{9, 0, 0, 0, 0}, &sm)
	assert.ErrorIs(t, err, codec.ErrInvalidTag)
}

func TestCommitmentIncludesLeafTag(t *testing.T) {
	post := samplePost()
	expected := common.Keccak256(append([]byte{0, 0}, codec.Encode(post)...))
	assert.Equal(t, expected, post.Commitment())

	resp := PostResponse{Post: post, Response: common.HexBytes("ok"), TimeoutTimestamp: 5}
	assert.NotEqual(t, post.Commitment(), resp.Commitment())
	expected = common.Keccak256(append([]byte{1, 0}, codec.Encode(resp)...))
	assert.Equal(t, expected, resp.Commitment())

	// any field change moves the commitment
	other := post
	other.Nonce++
	assert.NotEqual(t, post.Commitment(), other.Commitment())
}

func TestResponseDirection(t *testing.T) {
	post := samplePost()
	resp := Response{Post: &PostResponse{Post: post}}
	assert.Equal(t, post.Dest, resp.Source())
	assert.Equal(t, post.Source, resp.Dest())
	assert.Equal(t, post.Nonce, resp.Nonce())
}

func TestTimedOut(t *testing.T) {
	req := Request{Post: &PostRequest{TimeoutTimestamp: 100}}
	assert.False(t, req.TimedOut(99))
	assert.True(t, req.TimedOut(100))

	never := Request{Post: &PostRequest{}}
	assert.False(t, never.TimedOut(1<<62))
}

func TestMessageBatchRoundTrip(t *testing.T) {
	root := common.HexToHash("0x01")
	post := samplePost()
	get := GetRequest{
		Source: EvmStateMachine(1), Dest: PolkadotStateMachine(3367), Nonce: 3,
		Keys: []common.HexBytes{common.HexBytes("k1"), common.HexBytes("k2")}, Height: 42,
	}
	proof := Proof{Height: StateMachineHeight{ID: StateMachineID{StateID: post.Source, ConsensusStateID: MustFourByteID("PARA")}, Height: 9}, Proof: common.HexBytes{1, 2, 3}}
	batch := Messages{
		{Consensus: &ConsensusMessage{ConsensusProof: common.HexBytes{9}, ConsensusStateID: MustFourByteID("PARA"), Signer: common.HexBytes("relayer")}},
		{FraudProof: &FraudProofMessage{Proof1: common.HexBytes{1}, Proof2: common.HexBytes{2}, ConsensusStateID: MustFourByteID("PARA")}},
		{Request: &RequestMessage{Requests: []PostRequest{post}, Proof: proof, Signer: common.HexBytes("relayer")}},
		{Response: &ResponseMessage{Requests: []Request{{Get: &get}}, Proof: proof}},
		{Response: &ResponseMessage{Responses: []Response{{Post: &PostResponse{Post: post, Response: common.HexBytes("r")}}}, Proof: proof}},
		{Timeout: &TimeoutMessage{Kind: TimeoutPost, Requests: []Request{{Post: &post}}, TimeoutProof: &proof}},
		{Timeout: &TimeoutMessage{Kind: TimeoutGet, Requests: []Request{{Get: &get}}}},
	}
	for _, m := range batch {
		require.NoError(t, m.Validate())
	}

	enc := codec.Encode(batch)
	var decoded Messages
	require.NoError(t, codec.Decode(enc, &decoded))
	require.Len(t, decoded, len(batch))
	assert.Equal(t, enc, codec.Encode(decoded))
	assert.Equal(t, MessageTimeout, decoded[5].Kind())
	assert.Equal(t, post.Commitment(), decoded[2].Request.Requests[0].Commitment())
	assert.Equal(t, get.Commitment(), decoded[3].Response.Requests[0].Commitment())

	sc := StateCommitment{Timestamp: 5, OverlayRoot: &root, StateRoot: root}
	var back StateCommitment
	require.NoError(t, codec.Decode(codec.Encode(sc), &back))
	assert.Equal(t, sc, back)
}

func TestMessageValidate(t *testing.T) {
	assert.Error(t, Message{}.Validate())
	assert.Error(t, Message{Consensus: &ConsensusMessage{}, Request: &RequestMessage{}}.Validate())
	assert.Error(t, Message{Timeout: &TimeoutMessage{Kind: TimeoutPost}}.Validate(), "post timeout without proof")
	post := samplePost()
	assert.Error(t, Message{Timeout: &TimeoutMessage{Kind: TimeoutGet, Requests: []Request{{Post: &post}}}}.Validate())
	assert.Error(t, Message{Response: &ResponseMessage{}}.Validate())
}

func TestTruncatedMessageFails(t *testing.T) {
	post := samplePost()
	enc := codec.Encode(Messages{{Request: &RequestMessage{Requests: []PostRequest{post}}}})
	var decoded Messages
	assert.Error(t, codec.Decode(enc[:len(enc)-1], &decoded))
	assert.ErrorIs(t, codec.Decode(append(enc, 0), &decoded), codec.ErrTrailingBytes)
}

func TestWithdrawalMessageHash(t *testing.T) {
	msg := WithdrawalMessage{Nonce: 1, DestChain: EvmStateMachine(1), Amount: uint256.NewInt(500)}
	enc := codec.Encode(msg)
	require.Len(t, enc, 8+5+32)
	assert.Equal(t, common.Keccak256(enc), msg.Hash())

	msg.Nonce = 2
	assert.NotEqual(t, common.Keccak256(enc), msg.Hash())
}

func TestEventJSON(t *testing.T) {
	ev := EventWithMetadata{BlockNumber: 3, Index: 1, Event: StateMachineUpdatedEvent{
		StateMachineID: StateMachineID{StateID: EvmStateMachine(1), ConsensusStateID: MustFourByteID("ETH0")},
		LatestHeight:   12,
	}}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"block_number":3,"index":1,"name":"StateMachineUpdated","data":{"state_machine_id":{"state_id":"EVM-1","consensus_state_id":"ETH0"},"latest_height":12}}`, string(data))
}
