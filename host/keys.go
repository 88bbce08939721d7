package host

import (
	"bytes"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/types"
)

// Keys under offchainPrefix are indexed for queries and proof generation but are
// not part of the host state root.
var offchainPrefix = []byte("offchain/")

var (
	consensusStatePrefix     = []byte("consensus_state/")
	stateCommitmentPrefix    = []byte("state_commitment/")
	commitmentUpdatePrefix   = []byte("state_commitment_update/")
	latestHeightPrefix       = []byte("latest_height/")
	frozenStateMachinePrefix = []byte("frozen_state_machine/")
	requestCommitmentPrefix  = []byte("request_commitment/")
	responseCommitmentPrefix = []byte("response_commitment/")
	requestReceiptPrefix     = []byte("request_receipt/")
	responseReceiptPrefix    = []byte("response_receipt/")
	respondedPrefix          = []byte("responded/")
	claimedPrefix            = []byte("claimed/")
	feesPrefix               = []byte("fees/")
	withdrawNoncePrefix      = []byte("withdraw_nonce/")

	nonceKey        = []byte("nonce")
	mmrRootKey      = []byte("mmr/root")
	mmrLeafCountKey = []byte("mmr/leaf_count")
	mmrSizeKey      = []byte("mmr/size")
	mmrPeakPrefix   = []byte("mmr/peak/")

	mmrNodePrefix = []byte("offchain/mmr_node/")
	mmrLeafPrefix = []byte("offchain/mmr_leaf/")
)

func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func isOffchainKey(key []byte) bool {
	return bytes.HasPrefix(key, offchainPrefix)
}

func consensusStateKey(id types.ConsensusStateID) []byte {
	return join(consensusStatePrefix, id[:])
}

func stateCommitmentKey(h types.StateMachineHeight) []byte {
	return join(stateCommitmentPrefix, codec.Encode(h.ID), common.Uint64ToBigEndian(h.Height))
}

func commitmentUpdateKey(h types.StateMachineHeight) []byte {
	return join(commitmentUpdatePrefix, codec.Encode(h.ID), common.Uint64ToBigEndian(h.Height))
}

func latestHeightKey(id types.StateMachineID) []byte {
	return join(latestHeightPrefix, codec.Encode(id))
}

func frozenStateMachineKey(id types.StateMachineID) []byte {
	return join(frozenStateMachinePrefix, codec.Encode(id))
}

// RequestCommitmentKey holds the fee metadata of a request dispatched by a host.
func RequestCommitmentKey(commitment common.Hash) []byte {
	return join(requestCommitmentPrefix, commitment[:])
}

// ResponseCommitmentKey holds the fee metadata of a response dispatched by a host.
func ResponseCommitmentKey(commitment common.Hash) []byte {
	return join(responseCommitmentPrefix, commitment[:])
}

// RequestReceiptKey holds the relayer that delivered a request to a host.
func RequestReceiptKey(commitment common.Hash) []byte {
	return join(requestReceiptPrefix, commitment[:])
}

// ResponseReceiptKey is keyed by the request commitment, so a request is answered at most once.
func ResponseReceiptKey(requestCommitment common.Hash) []byte {
	return join(responseReceiptPrefix, requestCommitment[:])
}

func respondedKey(requestCommitment common.Hash) []byte {
	return join(respondedPrefix, requestCommitment[:])
}

func claimedKey(commitment common.Hash) []byte {
	return join(claimedPrefix, commitment[:])
}

func feesKey(sm types.StateMachine, relayer []byte) []byte {
	return join(feesPrefix, codec.Encode(sm), relayer)
}

func withdrawNonceKey(relayer []byte, sm types.StateMachine) []byte {
	return join(withdrawNoncePrefix, codec.Encode(sm), relayer)
}

func mmrPeakKey(pos uint64) []byte {
	return join(mmrPeakPrefix, common.Uint64ToBigEndian(pos))
}

func mmrNodeKey(pos uint64) []byte {
	return join(mmrNodePrefix, common.Uint64ToBigEndian(pos))
}

func mmrLeafKey(pos uint64) []byte {
	return join(mmrLeafPrefix, common.Uint64ToBigEndian(pos))
}
