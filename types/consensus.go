package types

import (
	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
)

// StateCommitment is what a consensus client attests for a state machine height.
// OverlayRoot is the root of the request/response accumulator, when the chain keeps one.
type StateCommitment struct {
	Timestamp   uint64       `json:"timestamp"`
	OverlayRoot *common.Hash `json:"overlay_root,omitempty"`
	StateRoot   common.Hash  `json:"state_root"`
}

func (c StateCommitment) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(c.Timestamp)
	e.EncodeOption(c.OverlayRoot != nil)
	if c.OverlayRoot != nil {
		e.EncodeHash(*c.OverlayRoot)
	}
	e.EncodeHash(c.StateRoot)
}

func (c *StateCommitment) DecodeFrom(d *codec.Decoder) {
	c.Timestamp = d.DecodeUint64()
	c.OverlayRoot = nil
	if d.DecodeOption() {
		root := d.DecodeHash()
		c.OverlayRoot = &root
	}
	c.StateRoot = d.DecodeHash()
}

type StateCommitmentHeight struct {
	Commitment StateCommitment `json:"commitment"`
	Height     uint64          `json:"height"`
}

func (c StateCommitmentHeight) EncodeTo(e *codec.Encoder) {
	c.Commitment.EncodeTo(e)
	e.EncodeUint64(c.Height)
}

func (c *StateCommitmentHeight) DecodeFrom(d *codec.Decoder) {
	c.Commitment.DecodeFrom(d)
	c.Height = d.DecodeUint64()
}

// IntermediateState is a state commitment extracted from a verified consensus proof.
type IntermediateState struct {
	StateID    StateMachine    `json:"state_id"`
	Height     uint64          `json:"height"`
	Commitment StateCommitment `json:"commitment"`
}

func (s IntermediateState) EncodeTo(e *codec.Encoder) {
	s.StateID.EncodeTo(e)
	e.EncodeUint64(s.Height)
	s.Commitment.EncodeTo(e)
}

func (s *IntermediateState) DecodeFrom(d *codec.Decoder) {
	s.StateID.DecodeFrom(d)
	s.Height = d.DecodeUint64()
	s.Commitment.DecodeFrom(d)
}

// ConsensusStateRecord is the host's bookkeeping for one tracked consensus state.
// State is opaque to the host and only interpreted by the consensus client.
type ConsensusStateRecord struct {
	ClientID        ConsensusClientID `json:"consensus_client_id"`
	State           common.HexBytes   `json:"consensus_state"`
	UnbondingPeriod uint64            `json:"unbonding_period"`
	ChallengePeriod uint64            `json:"challenge_period"`
	LastUpdateTime  uint64            `json:"last_update_time"`
	Frozen          bool              `json:"frozen"`
}

func (r ConsensusStateRecord) EncodeTo(e *codec.Encoder) {
	e.EncodeFixed(r.ClientID[:])
	e.EncodeBytes(r.State)
	e.EncodeUint64(r.UnbondingPeriod)
	e.EncodeUint64(r.ChallengePeriod)
	e.EncodeUint64(r.LastUpdateTime)
	e.EncodeBool(r.Frozen)
}

func (r *ConsensusStateRecord) DecodeFrom(d *codec.Decoder) {
	d.DecodeFixed(r.ClientID[:])
	r.State = d.DecodeBytes()
	r.UnbondingPeriod = d.DecodeUint64()
	r.ChallengePeriod = d.DecodeUint64()
	r.LastUpdateTime = d.DecodeUint64()
	r.Frozen = d.DecodeBool()
}

type StateMachineCommitment struct {
	ID         StateMachineID        `json:"id"`
	Commitment StateCommitmentHeight `json:"commitment"`
}

func (c StateMachineCommitment) EncodeTo(e *codec.Encoder) {
	c.ID.EncodeTo(e)
	c.Commitment.EncodeTo(e)
}

func (c *StateMachineCommitment) DecodeFrom(d *codec.Decoder) {
	c.ID.DecodeFrom(d)
	c.Commitment.DecodeFrom(d)
}

// CreateConsensusState registers a new consensus state together with its initial commitments.
type CreateConsensusState struct {
	ConsensusState          common.HexBytes          `json:"consensus_state"`
	ConsensusClientID       ConsensusClientID        `json:"consensus_client_id"`
	ConsensusStateID        ConsensusStateID         `json:"consensus_state_id"`
	UnbondingPeriod         uint64                   `json:"unbonding_period"`
	ChallengePeriod         uint64                   `json:"challenge_period"`
	StateMachineCommitments []StateMachineCommitment `json:"state_machine_commitments"`
}

func (c CreateConsensusState) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(c.ConsensusState)
	e.EncodeFixed(c.ConsensusClientID[:])
	e.EncodeFixed(c.ConsensusStateID[:])
	e.EncodeUint64(c.UnbondingPeriod)
	e.EncodeUint64(c.ChallengePeriod)
	e.EncodeLength(len(c.StateMachineCommitments))
	for _, smc := range c.StateMachineCommitments {
		smc.EncodeTo(e)
	}
}

func (c *CreateConsensusState) DecodeFrom(d *codec.Decoder) {
	c.ConsensusState = d.DecodeBytes()
	d.DecodeFixed(c.ConsensusClientID[:])
	d.DecodeFixed(c.ConsensusStateID[:])
	c.UnbondingPeriod = d.DecodeUint64()
	c.ChallengePeriod = d.DecodeUint64()
	n := d.DecodeLength(1)
	c.StateMachineCommitments = make([]StateMachineCommitment, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		c.StateMachineCommitments[i].DecodeFrom(d)
	}
}

// UpdateConsensusState changes the periods of an existing consensus state. Nil fields are left unchanged.
type UpdateConsensusState struct {
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
	UnbondingPeriod  *uint64          `json:"unbonding_period,omitempty"`
	ChallengePeriod  *uint64          `json:"challenge_period,omitempty"`
}

func (u UpdateConsensusState) EncodeTo(e *codec.Encoder) {
	e.EncodeFixed(u.ConsensusStateID[:])
	encodeOptionalUint64(e, u.UnbondingPeriod)
	encodeOptionalUint64(e, u.ChallengePeriod)
}

func (u *UpdateConsensusState) DecodeFrom(d *codec.Decoder) {
	d.DecodeFixed(u.ConsensusStateID[:])
	u.UnbondingPeriod = decodeOptionalUint64(d)
	u.ChallengePeriod = decodeOptionalUint64(d)
}

func encodeOptionalUint64(e *codec.Encoder, v *uint64) {
	e.EncodeOption(v != nil)
	if v != nil {
		e.EncodeUint64(*v)
	}
}

func decodeOptionalUint64(d *codec.Decoder) *uint64 {
	if !d.DecodeOption() {
		return nil
	}
	v := d.DecodeUint64()
	return &v
}
