package types

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
)

// Proof is an opaque proof about the state of a state machine at a height.
type Proof struct {
	Height StateMachineHeight `json:"height"`
	Proof  common.HexBytes    `json:"proof"`
}

func (p Proof) EncodeTo(e *codec.Encoder) {
	p.Height.EncodeTo(e)
	e.EncodeBytes(p.Proof)
}

func (p *Proof) DecodeFrom(d *codec.Decoder) {
	p.Height.DecodeFrom(d)
	p.Proof = d.DecodeBytes()
}

type ConsensusMessage struct {
	ConsensusProof   common.HexBytes  `json:"consensus_proof"`
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
	Signer           common.HexBytes  `json:"signer"`
}

func (m ConsensusMessage) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(m.ConsensusProof)
	e.EncodeFixed(m.ConsensusStateID[:])
	e.EncodeBytes(m.Signer)
}

func (m *ConsensusMessage) DecodeFrom(d *codec.Decoder) {
	m.ConsensusProof = d.DecodeBytes()
	d.DecodeFixed(m.ConsensusStateID[:])
	m.Signer = d.DecodeBytes()
}

// FraudProofMessage carries two conflicting consensus proofs for the same consensus state.
type FraudProofMessage struct {
	Proof1           common.HexBytes  `json:"proof_1"`
	Proof2           common.HexBytes  `json:"proof_2"`
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
	Signer           common.HexBytes  `json:"signer"`
}

func (m FraudProofMessage) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(m.Proof1)
	e.EncodeBytes(m.Proof2)
	e.EncodeFixed(m.ConsensusStateID[:])
	e.EncodeBytes(m.Signer)
}

func (m *FraudProofMessage) DecodeFrom(d *codec.Decoder) {
	m.Proof1 = d.DecodeBytes()
	m.Proof2 = d.DecodeBytes()
	d.DecodeFixed(m.ConsensusStateID[:])
	m.Signer = d.DecodeBytes()
}

// RequestMessage delivers post requests proven against the source's accumulator.
type RequestMessage struct {
	Requests []PostRequest   `json:"requests"`
	Proof    Proof           `json:"proof"`
	Signer   common.HexBytes `json:"signer"`
}

func (m RequestMessage) EncodeTo(e *codec.Encoder) {
	e.EncodeLength(len(m.Requests))
	for _, r := range m.Requests {
		r.EncodeTo(e)
	}
	m.Proof.EncodeTo(e)
	e.EncodeBytes(m.Signer)
}

func (m *RequestMessage) DecodeFrom(d *codec.Decoder) {
	n := d.DecodeLength(1)
	m.Requests = make([]PostRequest, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		m.Requests[i].DecodeFrom(d)
	}
	m.Proof.DecodeFrom(d)
	m.Signer = d.DecodeBytes()
}

// ResponseMessage delivers either post responses, proven against the source's
// accumulator, or get requests whose values are proven against the source's state.
type ResponseMessage struct {
	Requests  []Request       `json:"requests,omitempty"`
	Responses []Response      `json:"responses,omitempty"`
	Proof     Proof           `json:"proof"`
	Signer    common.HexBytes `json:"signer"`
}

// IsGet reports whether the message answers get requests.
func (m ResponseMessage) IsGet() bool {
	return m.Requests != nil
}

func (m ResponseMessage) EncodeTo(e *codec.Encoder) {
	if m.IsGet() {
		e.EncodeUint8(0)
		encodeRequests(e, m.Requests)
	} else {
		e.EncodeUint8(1)
		encodeResponses(e, m.Responses)
	}
	m.Proof.EncodeTo(e)
	e.EncodeBytes(m.Signer)
}

func (m *ResponseMessage) DecodeFrom(d *codec.Decoder) {
	m.Requests, m.Responses = nil, nil
	switch d.DecodeTag(2) {
	case 0:
		m.Requests = decodeRequests(d)
	case 1:
		m.Responses = decodeResponses(d)
	}
	m.Proof.DecodeFrom(d)
	m.Signer = d.DecodeBytes()
}

type TimeoutKind uint8

const (
	TimeoutPost TimeoutKind = iota
	TimeoutPostResponse
	TimeoutGet
)

func (k TimeoutKind) String() string {
	switch k {
	case TimeoutPost:
		return "Post"
	case TimeoutPostResponse:
		return "PostResponse"
	case TimeoutGet:
		return "Get"
	}
	return fmt.Sprintf("TimeoutKind(%d)", k)
}

// TimeoutMessage proves that outgoing messages were not delivered in time.
// Post and PostResponse timeouts carry a proof of the destination's state; Get
// timeouts are checked against the local clock and carry none.
type TimeoutMessage struct {
	Kind         TimeoutKind     `json:"kind"`
	Requests     []Request       `json:"requests,omitempty"`
	Responses    []PostResponse  `json:"responses,omitempty"`
	TimeoutProof *Proof          `json:"timeout_proof,omitempty"`
	Signer       common.HexBytes `json:"signer"`
}

func (m TimeoutMessage) EncodeTo(e *codec.Encoder) {
	e.EncodeUint8(uint8(m.Kind))
	switch m.Kind {
	case TimeoutPost, TimeoutGet:
		encodeRequests(e, m.Requests)
	case TimeoutPostResponse:
		e.EncodeLength(len(m.Responses))
		for _, r := range m.Responses {
			r.EncodeTo(e)
		}
	}
	if m.Kind != TimeoutGet {
		proof := Proof{}
		if m.TimeoutProof != nil {
			proof = *m.TimeoutProof
		}
		proof.EncodeTo(e)
	}
	e.EncodeBytes(m.Signer)
}

func (m *TimeoutMessage) DecodeFrom(d *codec.Decoder) {
	*m = TimeoutMessage{Kind: TimeoutKind(d.DecodeTag(3))}
	switch m.Kind {
	case TimeoutPost, TimeoutGet:
		m.Requests = decodeRequests(d)
	case TimeoutPostResponse:
		n := d.DecodeLength(1)
		m.Responses = make([]PostResponse, n)
		for i := 0; i < n && d.Err() == nil; i++ {
			m.Responses[i].DecodeFrom(d)
		}
	}
	if m.Kind != TimeoutGet {
		m.TimeoutProof = new(Proof)
		m.TimeoutProof.DecodeFrom(d)
	}
	m.Signer = d.DecodeBytes()
}

type MessageKind uint8

const (
	MessageConsensus MessageKind = iota
	MessageFraudProof
	MessageRequest
	MessageResponse
	MessageTimeout

	messageKinds = 5
)

var messageKindNames = [...]string{"Consensus", "FraudProof", "Request", "Response", "Timeout"}

func (k MessageKind) String() string {
	if int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return fmt.Sprintf("MessageKind(%d)", k)
}

// Message is the envelope submitted by relayers. Exactly one field is set.
type Message struct {
	Consensus  *ConsensusMessage  `json:"consensus,omitempty"`
	FraudProof *FraudProofMessage `json:"fraud_proof,omitempty"`
	Request    *RequestMessage    `json:"request,omitempty"`
	Response   *ResponseMessage   `json:"response,omitempty"`
	Timeout    *TimeoutMessage    `json:"timeout,omitempty"`
}

func (m Message) variants() int {
	n := 0
	for _, set := range []bool{m.Consensus != nil, m.FraudProof != nil, m.Request != nil, m.Response != nil, m.Timeout != nil} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks that the envelope carries exactly one well formed variant.
func (m Message) Validate() error {
	if m.variants() != 1 {
		return fmt.Errorf("message must carry exactly one variant, got %d", m.variants())
	}
	switch {
	case m.Response != nil:
		if (m.Response.Requests == nil) == (m.Response.Responses == nil) {
			return fmt.Errorf("response message must carry either get requests or responses")
		}
		for _, r := range m.Response.Requests {
			if r.Get == nil {
				return fmt.Errorf("response message requests must be get requests")
			}
		}
		for _, r := range m.Response.Responses {
			if r.Post == nil {
				return fmt.Errorf("response message responses must be post responses")
			}
		}
	case m.Timeout != nil:
		if m.Timeout.Kind > TimeoutGet {
			return fmt.Errorf("unknown timeout kind %d", m.Timeout.Kind)
		}
		if m.Timeout.Kind != TimeoutGet && m.Timeout.TimeoutProof == nil {
			return fmt.Errorf("%s timeout requires a timeout proof", m.Timeout.Kind)
		}
		for _, r := range m.Timeout.Requests {
			if err := r.Validate(); err != nil {
				return err
			}
			if (m.Timeout.Kind == TimeoutGet) != r.IsGet() {
				return fmt.Errorf("%s timeout carries a mismatched request", m.Timeout.Kind)
			}
		}
	}
	return nil
}

func (m Message) Kind() MessageKind {
	switch {
	case m.FraudProof != nil:
		return MessageFraudProof
	case m.Request != nil:
		return MessageRequest
	case m.Response != nil:
		return MessageResponse
	case m.Timeout != nil:
		return MessageTimeout
	}
	return MessageConsensus
}

func (m Message) EncodeTo(e *codec.Encoder) {
	e.EncodeUint8(uint8(m.Kind()))
	switch {
	case m.FraudProof != nil:
		m.FraudProof.EncodeTo(e)
	case m.Request != nil:
		m.Request.EncodeTo(e)
	case m.Response != nil:
		m.Response.EncodeTo(e)
	case m.Timeout != nil:
		m.Timeout.EncodeTo(e)
	case m.Consensus != nil:
		m.Consensus.EncodeTo(e)
	default:
		ConsensusMessage{}.EncodeTo(e)
	}
}

func (m *Message) DecodeFrom(d *codec.Decoder) {
	*m = Message{}
	switch MessageKind(d.DecodeTag(messageKinds)) {
	case MessageConsensus:
		m.Consensus = new(ConsensusMessage)
		m.Consensus.DecodeFrom(d)
	case MessageFraudProof:
		m.FraudProof = new(FraudProofMessage)
		m.FraudProof.DecodeFrom(d)
	case MessageRequest:
		m.Request = new(RequestMessage)
		m.Request.DecodeFrom(d)
	case MessageResponse:
		m.Response = new(ResponseMessage)
		m.Response.DecodeFrom(d)
	case MessageTimeout:
		m.Timeout = new(TimeoutMessage)
		m.Timeout.DecodeFrom(d)
	}
}

// Messages is a batch submitted in one call.
type Messages []Message

func (ms Messages) EncodeTo(e *codec.Encoder) {
	e.EncodeLength(len(ms))
	for _, m := range ms {
		m.EncodeTo(e)
	}
}

func (ms *Messages) DecodeFrom(d *codec.Decoder) {
	n := d.DecodeLength(1)
	out := make(Messages, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		out[i].DecodeFrom(d)
	}
	*ms = out
}
