package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/colorfulnotion/ismp/codec"
)

// StateMachineKind is the family a state machine belongs to.
type StateMachineKind uint8

const (
	StateMachineEvm StateMachineKind = iota
	StateMachinePolkadot
	StateMachineKusama
	StateMachineSubstrate
	StateMachineTendermint

	stateMachineKinds = 5
)

var stateMachinePrefixes = [...]string{"EVM", "POLKADOT", "KUSAMA", "SUBSTRATE", "TENDERMINT"}

// StateMachine identifies a chain. Evm, Polkadot and Kusama carry a numeric
// chain or parachain id, Substrate and Tendermint a 4 byte identifier.
type StateMachine struct {
	Kind    StateMachineKind
	ChainID uint32
	ID      [4]byte
}

func EvmStateMachine(chainID uint32) StateMachine {
	return StateMachine{Kind: StateMachineEvm, ChainID: chainID}
}

func PolkadotStateMachine(paraID uint32) StateMachine {
	return StateMachine{Kind: StateMachinePolkadot, ChainID: paraID}
}

func KusamaStateMachine(paraID uint32) StateMachine {
	return StateMachine{Kind: StateMachineKusama, ChainID: paraID}
}

func SubstrateStateMachine(id [4]byte) StateMachine {
	return StateMachine{Kind: StateMachineSubstrate, ID: id}
}

func TendermintStateMachine(id [4]byte) StateMachine {
	return StateMachine{Kind: StateMachineTendermint, ID: id}
}

func (s StateMachine) numeric() bool {
	return s.Kind <= StateMachineKusama
}

// String renders the state machine as e.g. "EVM-1" or "SUBSTRATE-hyp0".
func (s StateMachine) String() string {
	if int(s.Kind) >= len(stateMachinePrefixes) {
		return fmt.Sprintf("UNKNOWN-%d", s.Kind)
	}
	if s.numeric() {
		return fmt.Sprintf("%s-%d", stateMachinePrefixes[s.Kind], s.ChainID)
	}
	return stateMachinePrefixes[s.Kind] + "-" + string(s.ID[:])
}

// ParseStateMachine is the inverse of String.
func ParseStateMachine(str string) (StateMachine, error) {
	prefix, rest, ok := strings.Cut(str, "-")
	if !ok {
		return StateMachine{}, fmt.Errorf("invalid state machine %q", str)
	}
	for i, p := range stateMachinePrefixes {
		if p != strings.ToUpper(prefix) {
			continue
		}
		sm := StateMachine{Kind: StateMachineKind(i)}
		if sm.numeric() {
			id, err := strconv.ParseUint(rest, 10, 32)
			if err != nil {
				return StateMachine{}, fmt.Errorf("invalid chain id in %q: %w", str, err)
			}
			sm.ChainID = uint32(id)
			return sm, nil
		}
		if len(rest) != 4 {
			return StateMachine{}, fmt.Errorf("state machine id in %q must be 4 bytes", str)
		}
		copy(sm.ID[:], rest)
		return sm, nil
	}
	return StateMachine{}, fmt.Errorf("unknown state machine kind %q", prefix)
}

func (s StateMachine) EncodeTo(e *codec.Encoder) {
	e.EncodeUint8(uint8(s.Kind))
	if s.numeric() {
		e.EncodeUint32(s.ChainID)
	} else {
		e.EncodeFixed(s.ID[:])
	}
}

func (s *StateMachine) DecodeFrom(d *codec.Decoder) {
	*s = StateMachine{Kind: StateMachineKind(d.DecodeTag(stateMachineKinds))}
	if s.numeric() {
		s.ChainID = d.DecodeUint32()
	} else {
		d.DecodeFixed(s.ID[:])
	}
}

func (s StateMachine) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StateMachine) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sm, err := ParseStateMachine(str)
	if err != nil {
		return err
	}
	*s = sm
	return nil
}

func (s StateMachine) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StateMachine) UnmarshalText(text []byte) error {
	sm, err := ParseStateMachine(string(text))
	if err != nil {
		return err
	}
	*s = sm
	return nil
}

// FourByteID is the 4 byte identifier used for consensus states and consensus clients.
type FourByteID [4]byte

type ConsensusStateID = FourByteID

type ConsensusClientID = FourByteID

func NewFourByteID(s string) (FourByteID, error) {
	var id FourByteID
	if len(s) != len(id) {
		return id, fmt.Errorf("identifier %q must be 4 bytes", s)
	}
	copy(id[:], s)
	return id, nil
}

// MustFourByteID is NewFourByteID for compile time constants.
func MustFourByteID(s string) FourByteID {
	id, err := NewFourByteID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id FourByteID) String() string {
	return string(id[:])
}

func (id FourByteID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *FourByteID) UnmarshalText(text []byte) error {
	parsed, err := NewFourByteID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// StateMachineID is a state machine as tracked by one consensus state.
type StateMachineID struct {
	StateID          StateMachine     `json:"state_id"`
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
}

func (id StateMachineID) String() string {
	return id.StateID.String() + "@" + id.ConsensusStateID.String()
}

func (id StateMachineID) EncodeTo(e *codec.Encoder) {
	id.StateID.EncodeTo(e)
	e.EncodeFixed(id.ConsensusStateID[:])
}

func (id *StateMachineID) DecodeFrom(d *codec.Decoder) {
	id.StateID.DecodeFrom(d)
	d.DecodeFixed(id.ConsensusStateID[:])
}

type StateMachineHeight struct {
	ID     StateMachineID `json:"id"`
	Height uint64         `json:"height"`
}

func (h StateMachineHeight) String() string {
	return fmt.Sprintf("%s#%d", h.ID, h.Height)
}

func (h StateMachineHeight) EncodeTo(e *codec.Encoder) {
	h.ID.EncodeTo(e)
	e.EncodeUint64(h.Height)
}

func (h *StateMachineHeight) DecodeFrom(d *codec.Decoder) {
	h.ID.DecodeFrom(d)
	h.Height = d.DecodeUint64()
}
