package consensus

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/trie"
	"github.com/colorfulnotion/ismp/types"
)

// MembershipProof is the verified accumulator proof, returned so callers can tell
// which leaf position each commitment was proven at.
type MembershipProof = trie.MMRProof

// StateProofVerifier verifies accumulator and state tree proofs against a state
// commitment. Clients for chains using those formats embed it.
type StateProofVerifier struct{}

func (StateProofVerifier) VerifyMembership(commitment types.StateCommitment, proof []byte, leaves []common.Hash) (*MembershipProof, error) {
	if commitment.OverlayRoot == nil {
		return nil, fmt.Errorf("state commitment has no overlay root: %w", ismperrors.ErrHMembershipProofVerificationFailed)
	}
	var mmrProof trie.MMRProof
	if err := codec.Decode(proof, &mmrProof); err != nil {
		return nil, fmt.Errorf("decode mmr proof: %v: %w", err, ismperrors.ErrHMembershipProofVerificationFailed)
	}
	root, err := trie.CalculateMMRRoot(&mmrProof, leaves)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ismperrors.ErrHMembershipProofVerificationFailed)
	}
	if root != *commitment.OverlayRoot {
		return nil, fmt.Errorf("calculated root %s, overlay root %s: %w", root, commitment.OverlayRoot, ismperrors.ErrHMembershipProofVerificationFailed)
	}
	return &mmrProof, nil
}

func (v StateProofVerifier) VerifyNonMembership(commitment types.StateCommitment, proof []byte, keys [][]byte) error {
	values, err := v.readState(commitment, proof, keys, ismperrors.ErrHNonMembershipProofVerificationFailed)
	if err != nil {
		return err
	}
	for _, sv := range values {
		if sv.Value != nil {
			return fmt.Errorf("key %x is present: %w", []byte(sv.Key), ismperrors.ErrHNonMembershipProofVerificationFailed)
		}
	}
	return nil
}

func (v StateProofVerifier) ReadState(commitment types.StateCommitment, proof []byte, keys [][]byte) ([]types.StorageValue, error) {
	return v.readState(commitment, proof, keys, ismperrors.ErrHMembershipProofVerificationFailed)
}

func (StateProofVerifier) readState(commitment types.StateCommitment, proof []byte, keys [][]byte, kind error) ([]types.StorageValue, error) {
	var sp trie.StateProof
	if err := codec.Decode(proof, &sp); err != nil {
		return nil, fmt.Errorf("decode state proof: %v: %w", err, kind)
	}
	values := make([]types.StorageValue, len(keys))
	for i, key := range keys {
		value, found, err := sp.VerifyKey(commitment.StateRoot, key)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, kind)
		}
		values[i] = types.StorageValue{Key: key}
		if found {
			values[i].Value = value
			if values[i].Value == nil {
				values[i].Value = common.HexBytes{}
			}
		}
	}
	return values, nil
}
