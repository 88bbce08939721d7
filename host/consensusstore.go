package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) consensusState(id types.ConsensusStateID) (*types.ConsensusStateRecord, error) {
	rec := new(types.ConsensusStateRecord)
	ok, err := s.read(consensusStateKey(id), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("consensus state %s: %w", id, ismperrors.ErrHConsensusStateNotFound)
	}
	return rec, nil
}

func (s *hostState) createConsensusClient(msg types.CreateConsensusState) error {
	exists, err := s.has(consensusStateKey(msg.ConsensusStateID))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("consensus state %s: %w", msg.ConsensusStateID, ismperrors.ErrHCannotCreateAlreadyExistingConsensusClient)
	}
	if _, err := s.h.clients.Get(msg.ConsensusClientID); err != nil {
		return err
	}
	if msg.UnbondingPeriod <= msg.ChallengePeriod {
		return fmt.Errorf("unbonding %d, challenge %d: %w", msg.UnbondingPeriod, msg.ChallengePeriod, ismperrors.ErrHUnbondingPeriodTooShort)
	}
	rec := types.ConsensusStateRecord{
		ClientID:        msg.ConsensusClientID,
		State:           msg.ConsensusState,
		UnbondingPeriod: msg.UnbondingPeriod,
		ChallengePeriod: msg.ChallengePeriod,
		LastUpdateTime:  s.now(),
	}
	if err := s.write(consensusStateKey(msg.ConsensusStateID), rec); err != nil {
		return err
	}
	for _, smc := range msg.StateMachineCommitments {
		if smc.ID.ConsensusStateID != msg.ConsensusStateID {
			return fmt.Errorf("state machine %s is not tracked by %s: %w", smc.ID, msg.ConsensusStateID, ismperrors.ErrHInvalidSource)
		}
		if _, err := s.storeCommitment(smc.ID, smc.Commitment.Height, smc.Commitment.Commitment); err != nil {
			return err
		}
	}
	s.emit(types.ConsensusClientCreatedEvent{ConsensusClientID: msg.ConsensusClientID, ConsensusStateID: msg.ConsensusStateID})
	log.Info(log.ConsensusModule, "consensus client created", "client", msg.ConsensusClientID, "state", msg.ConsensusStateID,
		"challengePeriod", msg.ChallengePeriod, "unbondingPeriod", msg.UnbondingPeriod)
	return nil
}

// applyUpdate replaces the trusted state and records the commitments of every
// state machine whose height increased.
func (s *hostState) applyUpdate(id types.ConsensusStateID, rec *types.ConsensusStateRecord, state []byte, commitments []types.IntermediateState) error {
	if rec.Frozen {
		return fmt.Errorf("consensus state %s: %w", id, ismperrors.ErrHFrozenConsensusClient)
	}
	rec.State = state
	rec.LastUpdateTime = s.now()
	if err := s.write(consensusStateKey(id), *rec); err != nil {
		return err
	}
	for _, c := range commitments {
		smID := types.StateMachineID{StateID: c.StateID, ConsensusStateID: id}
		stored, err := s.storeCommitment(smID, c.Height, c.Commitment)
		if err != nil {
			return err
		}
		if stored {
			s.emit(types.StateMachineUpdatedEvent{StateMachineID: smID, LatestHeight: c.Height})
		}
	}
	return nil
}

// storeCommitment records a commitment above the latest known height. Lower or equal
// heights are ignored so neither a commitment nor the latest height ever regresses.
func (s *hostState) storeCommitment(id types.StateMachineID, height uint64, commitment types.StateCommitment) (bool, error) {
	latest, ok, err := s.readUint64(latestHeightKey(id))
	if err != nil {
		return false, err
	}
	if ok && height <= latest {
		log.Debug(log.ConsensusModule, "stale state machine height ignored", "stateMachine", id, "height", height, "latest", latest)
		return false, nil
	}
	smh := types.StateMachineHeight{ID: id, Height: height}
	if err := s.write(stateCommitmentKey(smh), commitment); err != nil {
		return false, err
	}
	if err := s.writeUint64(commitmentUpdateKey(smh), s.now()); err != nil {
		return false, err
	}
	if err := s.writeUint64(latestHeightKey(id), height); err != nil {
		return false, err
	}
	return true, nil
}

// stateCommitment returns the commitment at height and the host time it was recorded.
func (s *hostState) stateCommitment(height types.StateMachineHeight) (types.StateCommitment, uint64, error) {
	var c types.StateCommitment
	ok, err := s.read(stateCommitmentKey(height), &c)
	if err != nil {
		return c, 0, err
	}
	if !ok {
		return c, 0, fmt.Errorf("%s: %w", height, ismperrors.ErrHStateCommitmentNotFound)
	}
	updated, _, err := s.readUint64(commitmentUpdateKey(height))
	return c, updated, err
}

func (s *hostState) latestHeight(id types.StateMachineID) (uint64, error) {
	h, _, err := s.readUint64(latestHeightKey(id))
	return h, err
}

func (s *hostState) updateConsensusState(msg types.UpdateConsensusState) error {
	rec, err := s.consensusState(msg.ConsensusStateID)
	if err != nil {
		return err
	}
	if msg.UnbondingPeriod != nil {
		rec.UnbondingPeriod = *msg.UnbondingPeriod
	}
	if msg.ChallengePeriod != nil {
		rec.ChallengePeriod = *msg.ChallengePeriod
	}
	if rec.UnbondingPeriod <= rec.ChallengePeriod {
		return fmt.Errorf("unbonding %d, challenge %d: %w", rec.UnbondingPeriod, rec.ChallengePeriod, ismperrors.ErrHUnbondingPeriodTooShort)
	}
	if err := s.write(consensusStateKey(msg.ConsensusStateID), *rec); err != nil {
		return err
	}
	s.emit(types.ConsensusStateUpdatedEvent{
		ConsensusStateID: msg.ConsensusStateID,
		UnbondingPeriod:  rec.UnbondingPeriod,
		ChallengePeriod:  rec.ChallengePeriod,
	})
	return nil
}

// challengePeriodElapsed reports whether a commitment recorded at updated may be relied upon at now.
func challengePeriodElapsed(updated, challengePeriod, now uint64) bool {
	return now >= updated && now-updated >= challengePeriod
}

// expired reports whether the unbonding period passed since the last update.
func expired(rec *types.ConsensusStateRecord, now uint64) bool {
	return now > rec.LastUpdateTime && now-rec.LastUpdateTime > rec.UnbondingPeriod
}
