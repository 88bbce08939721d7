package types

import (
	"encoding/json"

	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
)

// Event is emitted by the host while dispatching and handling messages.
type Event interface {
	EventName() string
}

// RequestEvent is emitted when a request is dispatched from this host.
type RequestEvent struct {
	DestChain    StateMachine `json:"dest_chain"`
	SourceChain  StateMachine `json:"source_chain"`
	RequestNonce uint64       `json:"request_nonce"`
	Commitment   common.Hash  `json:"commitment"`
}

// ResponseEvent is emitted when a post response is dispatched from this host.
type ResponseEvent struct {
	DestChain          StateMachine `json:"dest_chain"`
	SourceChain        StateMachine `json:"source_chain"`
	RequestNonce       uint64       `json:"request_nonce"`
	Commitment         common.Hash  `json:"commitment"`
	ResponseCommitment common.Hash  `json:"response_commitment"`
}

type StateMachineUpdatedEvent struct {
	StateMachineID StateMachineID `json:"state_machine_id"`
	LatestHeight   uint64         `json:"latest_height"`
}

// RequestResponseHandled identifies a handled message and the relayer that delivered it.
type RequestResponseHandled struct {
	Commitment common.Hash     `json:"commitment"`
	Relayer    common.HexBytes `json:"relayer"`
}

type PostRequestHandledEvent RequestResponseHandled

type PostResponseHandledEvent RequestResponseHandled

type GetRequestHandledEvent RequestResponseHandled

// TimeoutHandled identifies a timed out message.
type TimeoutHandled struct {
	Commitment common.Hash  `json:"commitment"`
	Source     StateMachine `json:"source"`
	Dest       StateMachine `json:"dest"`
}

type PostRequestTimeoutHandledEvent TimeoutHandled

type PostResponseTimeoutHandledEvent TimeoutHandled

type GetRequestTimeoutHandledEvent TimeoutHandled

type ConsensusClientCreatedEvent struct {
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
	ConsensusStateID  ConsensusStateID  `json:"consensus_state_id"`
}

type ConsensusClientFrozenEvent struct {
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
}

type ConsensusClientUnfrozenEvent struct {
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
}

type StateMachineFrozenEvent struct {
	StateMachineID StateMachineID `json:"state_machine_id"`
}

type StateMachineUnfrozenEvent struct {
	StateMachineID StateMachineID `json:"state_machine_id"`
}

type ConsensusStateUpdatedEvent struct {
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
	UnbondingPeriod  uint64           `json:"unbonding_period"`
	ChallengePeriod  uint64           `json:"challenge_period"`
}

// ErrorsEvent lists the per-item failures of one message batch.
type ErrorsEvent struct {
	Errors []HandlingError `json:"errors"`
}

// AccumulateFeesEvent is emitted when relayer fees are credited from proven deliveries.
type AccumulateFeesEvent struct {
	StateMachine StateMachine    `json:"state_machine"`
	Relayer      common.HexBytes `json:"relayer"`
	Amount       *uint256.Int    `json:"amount"`
	Commitments  int             `json:"commitments"`
}

type WithdrawEvent struct {
	Address      common.HexBytes `json:"address"`
	StateMachine StateMachine    `json:"state_machine"`
	Amount       *uint256.Int    `json:"amount"`
}

func (RequestEvent) EventName() string                    { return "Request" }
func (ResponseEvent) EventName() string                   { return "Response" }
func (StateMachineUpdatedEvent) EventName() string        { return "StateMachineUpdated" }
func (PostRequestHandledEvent) EventName() string         { return "PostRequestHandled" }
func (PostResponseHandledEvent) EventName() string        { return "PostResponseHandled" }
func (GetRequestHandledEvent) EventName() string          { return "GetRequestHandled" }
func (PostRequestTimeoutHandledEvent) EventName() string  { return "PostRequestTimeoutHandled" }
func (PostResponseTimeoutHandledEvent) EventName() string { return "PostResponseTimeoutHandled" }
func (GetRequestTimeoutHandledEvent) EventName() string   { return "GetRequestTimeoutHandled" }
func (ConsensusClientCreatedEvent) EventName() string     { return "ConsensusClientCreated" }
func (ConsensusClientFrozenEvent) EventName() string      { return "ConsensusClientFrozen" }
func (ConsensusClientUnfrozenEvent) EventName() string    { return "ConsensusClientUnfrozen" }
func (StateMachineFrozenEvent) EventName() string         { return "StateMachineFrozen" }
func (StateMachineUnfrozenEvent) EventName() string       { return "StateMachineUnfrozen" }
func (ConsensusStateUpdatedEvent) EventName() string      { return "ConsensusStateUpdated" }
func (ErrorsEvent) EventName() string                     { return "Errors" }
func (AccumulateFeesEvent) EventName() string             { return "AccumulateFees" }
func (WithdrawEvent) EventName() string                   { return "Withdraw" }

// EventWithMetadata records where in the chain an event was emitted.
type EventWithMetadata struct {
	BlockNumber uint64
	Index       uint32
	Event       Event
}

func (e EventWithMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BlockNumber uint64 `json:"block_number"`
		Index       uint32 `json:"index"`
		Name        string `json:"name"`
		Data        Event  `json:"data"`
	}{e.BlockNumber, e.Index, e.Event.EventName(), e.Event})
}
