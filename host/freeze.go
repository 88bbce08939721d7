package host

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

func (s *hostState) checkStateMachineNotFrozen(id types.StateMachineID) error {
	frozen, err := s.has(frozenStateMachineKey(id))
	if err != nil {
		return err
	}
	if frozen {
		return fmt.Errorf("state machine %s: %w", id, ismperrors.ErrHFrozenStateMachine)
	}
	return nil
}

func (s *hostState) authorize(origin []byte) error {
	if !s.h.cfg.isAdmin(origin) {
		return fmt.Errorf("origin %x: %w", origin, ismperrors.ErrHUnauthorized)
	}
	return nil
}

func (s *hostState) setConsensusFrozen(id types.ConsensusStateID, frozen bool) error {
	rec, err := s.consensusState(id)
	if err != nil {
		return err
	}
	rec.Frozen = frozen
	if err := s.write(consensusStateKey(id), *rec); err != nil {
		return err
	}
	if frozen {
		s.emit(types.ConsensusClientFrozenEvent{ConsensusStateID: id})
	} else {
		s.emit(types.ConsensusClientUnfrozenEvent{ConsensusStateID: id})
	}
	log.Info(log.FreezeModule, "consensus state freeze changed", "state", id, "frozen", frozen)
	return nil
}

func (s *hostState) setStateMachineFrozen(id types.StateMachineID, frozen bool) error {
	if _, err := s.consensusState(id.ConsensusStateID); err != nil {
		return err
	}
	if frozen {
		if err := s.kv.Put(frozenStateMachineKey(id), []byte{1}); err != nil {
			return err
		}
		s.emit(types.StateMachineFrozenEvent{StateMachineID: id})
	} else {
		if err := s.kv.Delete(frozenStateMachineKey(id)); err != nil {
			return err
		}
		s.emit(types.StateMachineUnfrozenEvent{StateMachineID: id})
	}
	log.Info(log.FreezeModule, "state machine freeze changed", "stateMachine", id, "frozen", frozen)
	return nil
}

func (h *Host) FreezeConsensusClient(ctx context.Context, origin []byte, id types.ConsensusStateID) error {
	return h.execute(ctx, "ismp.freeze_consensus_client", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.setConsensusFrozen(id, true)
	})
}

func (h *Host) UnfreezeConsensusClient(ctx context.Context, origin []byte, id types.ConsensusStateID) error {
	return h.execute(ctx, "ismp.unfreeze_consensus_client", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.setConsensusFrozen(id, false)
	})
}

func (h *Host) FreezeStateMachine(ctx context.Context, origin []byte, id types.StateMachineID) error {
	return h.execute(ctx, "ismp.freeze_state_machine", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.setStateMachineFrozen(id, true)
	})
}

func (h *Host) UnfreezeStateMachine(ctx context.Context, origin []byte, id types.StateMachineID) error {
	return h.execute(ctx, "ismp.unfreeze_state_machine", func(s *hostState) error {
		if err := s.authorize(origin); err != nil {
			return err
		}
		return s.setStateMachineFrozen(id, false)
	})
}
