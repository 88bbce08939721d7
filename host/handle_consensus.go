package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) handleConsensus(msg *types.ConsensusMessage) error {
	id := msg.ConsensusStateID
	rec, err := s.consensusState(id)
	if err != nil {
		return err
	}
	if rec.Frozen {
		return fmt.Errorf("consensus state %s: %w", id, ismperrors.ErrHFrozenConsensusClient)
	}
	if expired(rec, s.now()) {
		return fmt.Errorf("consensus state %s last updated at %d, unbonding period %d, now %d: %w",
			id, rec.LastUpdateTime, rec.UnbondingPeriod, s.now(), ismperrors.ErrHExpiredConsensusClient)
	}
	client, err := s.h.clients.Get(rec.ClientID)
	if err != nil {
		return err
	}
	update, err := client.VerifyConsensus(rec.State, msg.ConsensusProof)
	if err != nil {
		return err
	}
	for _, c := range update.Commitments {
		if err := s.checkStateMachineNotFrozen(types.StateMachineID{StateID: c.StateID, ConsensusStateID: id}); err != nil {
			return err
		}
	}
	if err := s.applyUpdate(id, rec, update.State, update.Commitments); err != nil {
		return err
	}
	log.Info(log.ConsensusModule, "consensus state updated", "state", id, "client", rec.ClientID,
		"commitments", len(update.Commitments), "relayer", msg.Signer)
	return nil
}

// handleFraudProof freezes the consensus state when two conflicting headers are
// both finalized under its trusted state.
func (s *hostState) handleFraudProof(msg *types.FraudProofMessage) error {
	id := msg.ConsensusStateID
	rec, err := s.consensusState(id)
	if err != nil {
		return err
	}
	if rec.Frozen {
		return fmt.Errorf("consensus state %s: %w", id, ismperrors.ErrHFrozenConsensusClient)
	}
	client, err := s.h.clients.Get(rec.ClientID)
	if err != nil {
		return err
	}
	if err := client.VerifyFraudProof(rec.State, msg.Proof1, msg.Proof2); err != nil {
		return err
	}
	rec.Frozen = true
	if err := s.write(consensusStateKey(id), *rec); err != nil {
		return err
	}
	s.emit(types.ConsensusClientFrozenEvent{ConsensusStateID: id})
	log.Warn(log.FreezeModule, "consensus state frozen by fraud proof", "state", id, "reporter", msg.Signer)
	return nil
}
