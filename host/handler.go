package host

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/consensus"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

// HandleEncoded decodes a batch and handles it. A batch that does not decode is
// rejected as a whole before anything is written.
func (h *Host) HandleEncoded(ctx context.Context, data []byte) ([]types.HandlingError, error) {
	var msgs types.Messages
	if err := codec.Decode(data, &msgs); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ismperrors.ErrEMalformedMessage)
	}
	return h.Handle(ctx, msgs)
}

// Handle applies msgs in order. Each message either applies fully or not at all;
// failures are reported in one Errors event and returned, and do not stop later
// messages. The returned error is reserved for malformed batches and storage failures.
func (h *Host) Handle(ctx context.Context, msgs types.Messages) ([]types.HandlingError, error) {
	if err := validateEnvelope(msgs); err != nil {
		return nil, err
	}
	var errs []types.HandlingError
	err := h.execute(ctx, "ismp.handle", func(s *hostState) error {
		var err error
		errs, err = s.handleMessages(ctx, msgs)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			s.emit(types.ErrorsEvent{Errors: errs})
		}
		return nil
	})
	return errs, err
}

// ValidateMessages runs msgs against the current state without keeping any effect.
func (h *Host) ValidateMessages(ctx context.Context, msgs types.Messages) ([]types.HandlingError, error) {
	if err := validateEnvelope(msgs); err != nil {
		return nil, err
	}
	var errs []types.HandlingError
	err := h.view(func(s *hostState) error {
		var err error
		errs, err = s.handleMessages(ctx, msgs)
		return err
	})
	return errs, err
}

func validateEnvelope(msgs types.Messages) error {
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %v: %w", i, err, ismperrors.ErrEMalformedMessage)
		}
	}
	return nil
}

func (s *hostState) handleMessages(ctx context.Context, msgs types.Messages) ([]types.HandlingError, error) {
	var errs []types.HandlingError
	for i, msg := range msgs {
		_, span := s.h.tracer.Start(ctx, "ismp.message", spanAttrs(i, msg.Kind())...)
		child, overlay := s.child()
		if err := child.handleMessage(msg); err != nil {
			overlay.Discard()
			he := ismperrors.ToHandlingError(err)
			errs = append(errs, he)
			span.SetStatus(codes.Error, he.Kind)
			log.Warn(log.HandlerModule, "message failed", "index", i, "kind", msg.Kind(), "err", err)
			span.End()
			continue
		}
		if err := overlay.Commit(); err != nil {
			span.End()
			return nil, err
		}
		s.events = append(s.events, child.events...)
		log.Debug(log.HandlerModule, "message applied", "index", i, "kind", msg.Kind(), "events", len(child.events))
		span.End()
	}
	return errs, nil
}

func spanAttrs(i int, kind types.MessageKind) []trace.SpanStartOption {
	return []trace.SpanStartOption{trace.WithAttributes(
		attribute.Int("ismp.index", i),
		attribute.String("ismp.kind", kind.String()),
	)}
}

func (s *hostState) handleMessage(msg types.Message) error {
	switch {
	case msg.Consensus != nil:
		return s.handleConsensus(msg.Consensus)
	case msg.FraudProof != nil:
		return s.handleFraudProof(msg.FraudProof)
	case msg.Request != nil:
		return s.handleRequests(msg.Request)
	case msg.Response != nil:
		return s.handleResponses(msg.Response)
	case msg.Timeout != nil:
		return s.handleTimeouts(msg.Timeout)
	}
	return ismperrors.ErrEMalformedMessage
}

// provenCommitment resolves the state commitment a proof is anchored to, once the
// consensus state and state machine are live and the challenge period has passed.
func (s *hostState) provenCommitment(height types.StateMachineHeight) (consensus.Client, types.StateCommitment, error) {
	var commitment types.StateCommitment
	rec, err := s.consensusState(height.ID.ConsensusStateID)
	if err != nil {
		return nil, commitment, err
	}
	if rec.Frozen {
		return nil, commitment, fmt.Errorf("consensus state %s: %w", height.ID.ConsensusStateID, ismperrors.ErrHFrozenConsensusClient)
	}
	if err := s.checkStateMachineNotFrozen(height.ID); err != nil {
		return nil, commitment, err
	}
	commitment, updated, err := s.stateCommitment(height)
	if err != nil {
		return nil, commitment, err
	}
	if !challengePeriodElapsed(updated, rec.ChallengePeriod, s.now()) {
		return nil, commitment, fmt.Errorf("%s updated at %d, challenge period %d, now %d: %w",
			height, updated, rec.ChallengePeriod, s.now(), ismperrors.ErrHChallengePeriodNotElapsed)
	}
	client, err := s.h.clients.Get(rec.ClientID)
	if err != nil {
		return nil, commitment, err
	}
	return client, commitment, nil
}
