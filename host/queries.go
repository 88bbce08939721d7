package host

import (
	"context"

	"github.com/colorfulnotion/ismp/types"
)

// CreateConsensusClient starts tracking a consensus state. Only admins may call it.
func (h *Host) CreateConsensusClient(ctx context.Context, origin []byte, msg types.CreateConsensusState) error {
	return h.execute(ctx, "ismp.create_consensus_client", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.createConsensusClient(msg)
	})
}

// UpdateConsensusState changes the unbonding and challenge periods of a consensus state.
func (h *Host) UpdateConsensusState(ctx context.Context, origin []byte, msg types.UpdateConsensusState) error {
	return h.execute(ctx, "ismp.update_consensus_state", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.updateConsensusState(msg)
	})
}

func (h *Host) ConsensusState(id types.ConsensusStateID) (*types.ConsensusStateRecord, error) {
	var rec *types.ConsensusStateRecord
	err := h.view(func(s *hostState) error {
		var err error
		rec, err = s.consensusState(id)
		return err
	})
	return rec, err
}

// ConsensusUpdateTime is the host time of the last successful consensus update.
func (h *Host) ConsensusUpdateTime(id types.ConsensusStateID) (uint64, error) {
	rec, err := h.ConsensusState(id)
	if err != nil {
		return 0, err
	}
	return rec.LastUpdateTime, nil
}

func (h *Host) ChallengePeriod(id types.ConsensusStateID) (uint64, error) {
	rec, err := h.ConsensusState(id)
	if err != nil {
		return 0, err
	}
	return rec.ChallengePeriod, nil
}

// ChallengePeriodElapsed reports whether the last update of the consensus state may
// be relied upon at now.
func (h *Host) ChallengePeriodElapsed(id types.ConsensusStateID, now uint64) (bool, error) {
	rec, err := h.ConsensusState(id)
	if err != nil {
		return false, err
	}
	return challengePeriodElapsed(rec.LastUpdateTime, rec.ChallengePeriod, now), nil
}

// LatestStateMachineHeight is zero for a state machine without commitments.
func (h *Host) LatestStateMachineHeight(id types.StateMachineID) (uint64, error) {
	var height uint64
	err := h.view(func(s *hostState) error {
		var err error
		height, err = s.latestHeight(id)
		return err
	})
	return height, err
}

// StateMachineCommitment returns the commitment at height and the host time it was recorded.
func (h *Host) StateMachineCommitment(height types.StateMachineHeight) (types.StateCommitment, uint64, error) {
	var (
		commitment types.StateCommitment
		updated    uint64
	)
	err := h.view(func(s *hostState) error {
		var err error
		commitment, updated, err = s.stateCommitment(height)
		return err
	})
	return commitment, updated, err
}
