package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/host"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

// ServiceName is the name the host methods are registered under.
const ServiceName = "ismp"

// Ismp exposes a host over net/rpc. Every method takes string arguments and returns a
// string: hex for binary values and SCALE encoded inputs, JSON for structured results.
type Ismp struct {
	ctx  context.Context
	host *host.Host
}

var MethodDescriptionMap = map[string]string{
	"Functions": "Functions() -> functions description",

	"StateRoot":       "StateRoot() -> hexstring",
	"StateCommitment": "StateCommitment() -> json StateCommitment",
	"ReadProof":       "ReadProof(key hexstring...) -> hexstring",
	"BlockEvents":     "BlockEvents() -> json []EventWithMetadata",

	"MmrRoot":       "MmrRoot() -> hexstring",
	"MmrLeafCount":  "MmrLeafCount() -> string",
	"GenerateProof": "GenerateProof(position string...) -> hexstring",
	"GetRequests":   "GetRequests(position string...) -> json []Request",
	"GetResponses":  "GetResponses(position string...) -> json []Response",

	"HandleMessages":   "HandleMessages(messages hexstring) -> json []HandlingError",
	"ValidateMessages": "ValidateMessages(messages hexstring) -> json []HandlingError",

	"ConsensusState":           "ConsensusState(consensusStateID string) -> json ConsensusStateRecord",
	"LatestStateMachineHeight": "LatestStateMachineHeight(stateMachine string, consensusStateID string) -> string",
	"StateMachineCommitment":   "StateMachineCommitment(stateMachine string, consensusStateID string, height string) -> json",

	"Fees":           "Fees(stateMachine string, relayer hexstring) -> string",
	"Nonce":          "Nonce(relayer hexstring, stateMachine string) -> string",
	"AccumulateFees": "AccumulateFees(withdrawalProof hexstring) -> string",
	"WithdrawFees":   "WithdrawFees(withdrawalInput hexstring) -> hexstring",
}

func checkArgs(req []string, n int) error {
	if len(req) != n {
		return fmt.Errorf("invalid number of arguments: expected %d, got %d", n, len(req))
	}
	return nil
}

func marshal(res *string, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*res = string(out)
	return nil
}

func parsePositions(req []string) ([]uint64, error) {
	if len(req) == 0 {
		return nil, fmt.Errorf("no positions")
	}
	positions := make([]uint64, len(req))
	for i, s := range req {
		pos, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("position %q: %v", s, err)
		}
		positions[i] = pos
	}
	return positions, nil
}

func parseStateMachineID(sm, cs string) (types.StateMachineID, error) {
	stateID, err := types.ParseStateMachine(sm)
	if err != nil {
		return types.StateMachineID{}, err
	}
	csID, err := types.NewFourByteID(cs)
	if err != nil {
		return types.StateMachineID{}, err
	}
	return types.StateMachineID{StateID: stateID, ConsensusStateID: csID}, nil
}

func (j *Ismp) Functions(req []string, res *string) error {
	names := make([]string, 0, len(MethodDescriptionMap))
	maxKeyLen := 0
	for k := range MethodDescriptionMap {
		names = append(names, k)
		if len(k) > maxKeyLen {
			maxKeyLen = len(k)
		}
	}
	sort.Strings(names)
	format := fmt.Sprintf("%%-%ds: %%s\n", maxKeyLen)
	*res = ""
	for _, k := range names {
		*res += fmt.Sprintf(format, k, MethodDescriptionMap[k])
	}
	return nil
}

func (j *Ismp) StateRoot(req []string, res *string) error {
	root, err := j.host.StateRoot()
	if err != nil {
		return err
	}
	*res = root.Hex()
	return nil
}

func (j *Ismp) StateCommitment(req []string, res *string) error {
	commitment, err := j.host.StateCommitment()
	if err != nil {
		return err
	}
	return marshal(res, commitment)
}

func (j *Ismp) ReadProof(req []string, res *string) error {
	keys := make([][]byte, len(req))
	for i, k := range req {
		keys[i] = common.FromHex(k)
	}
	proof, err := j.host.ReadProof(keys)
	if err != nil {
		return err
	}
	*res = common.Bytes2Hex(proof)
	return nil
}

func (j *Ismp) BlockEvents(req []string, res *string) error {
	events := j.host.BlockEventsWithMetadata()
	if events == nil {
		events = []types.EventWithMetadata{}
	}
	return marshal(res, events)
}

func (j *Ismp) MmrRoot(req []string, res *string) error {
	root, err := j.host.MmrRoot()
	if err != nil {
		return err
	}
	*res = root.Hex()
	return nil
}

func (j *Ismp) MmrLeafCount(req []string, res *string) error {
	count, err := j.host.MmrLeafCount()
	if err != nil {
		return err
	}
	*res = strconv.FormatUint(count, 10)
	return nil
}

func (j *Ismp) GenerateProof(req []string, res *string) error {
	positions, err := parsePositions(req)
	if err != nil {
		return err
	}
	proof, err := j.host.EncodedProof(positions)
	if err != nil {
		return err
	}
	*res = common.Bytes2Hex(proof)
	return nil
}

func (j *Ismp) GetRequests(req []string, res *string) error {
	positions, err := parsePositions(req)
	if err != nil {
		return err
	}
	reqs, err := j.host.GetRequests(positions)
	if err != nil {
		return err
	}
	return marshal(res, reqs)
}

func (j *Ismp) GetResponses(req []string, res *string) error {
	positions, err := parsePositions(req)
	if err != nil {
		return err
	}
	resps, err := j.host.GetResponses(positions)
	if err != nil {
		return err
	}
	return marshal(res, resps)
}

func (j *Ismp) handle(req []string, res *string, validate bool) error {
	if err := checkArgs(req, 1); err != nil {
		return err
	}
	var msgs types.Messages
	if err := codec.Decode(common.FromHex(req[0]), &msgs); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	var (
		errs []types.HandlingError
		err  error
	)
	if validate {
		errs, err = j.host.ValidateMessages(j.ctx, msgs)
	} else {
		errs, err = j.host.Handle(j.ctx, msgs)
	}
	if err != nil {
		return err
	}
	if errs == nil {
		errs = []types.HandlingError{}
	}
	log.Debug(log.RPCModule, "messages submitted", "count", len(msgs), "failed", len(errs), "validate", validate)
	return marshal(res, errs)
}

func (j *Ismp) HandleMessages(req []string, res *string) error {
	return j.handle(req, res, false)
}

func (j *Ismp) ValidateMessages(req []string, res *string) error {
	return j.handle(req, res, true)
}

func (j *Ismp) ConsensusState(req []string, res *string) error {
	if err := checkArgs(req, 1); err != nil {
		return err
	}
	id, err := types.NewFourByteID(req[0])
	if err != nil {
		return err
	}
	rec, err := j.host.ConsensusState(id)
	if err != nil {
		return err
	}
	return marshal(res, rec)
}

func (j *Ismp) LatestStateMachineHeight(req []string, res *string) error {
	if err := checkArgs(req, 2); err != nil {
		return err
	}
	id, err := parseStateMachineID(req[0], req[1])
	if err != nil {
		return err
	}
	height, err := j.host.LatestStateMachineHeight(id)
	if err != nil {
		return err
	}
	*res = strconv.FormatUint(height, 10)
	return nil
}

func (j *Ismp) StateMachineCommitment(req []string, res *string) error {
	if err := checkArgs(req, 3); err != nil {
		return err
	}
	id, err := parseStateMachineID(req[0], req[1])
	if err != nil {
		return err
	}
	height, err := strconv.ParseUint(req[2], 10, 64)
	if err != nil {
		return fmt.Errorf("height %q: %v", req[2], err)
	}
	commitment, updated, err := j.host.StateMachineCommitment(types.StateMachineHeight{ID: id, Height: height})
	if err != nil {
		return err
	}
	return marshal(res, struct {
		Commitment types.StateCommitment `json:"commitment"`
		UpdatedAt  uint64                `json:"updated_at"`
	}{commitment, updated})
}

func (j *Ismp) Fees(req []string, res *string) error {
	if err := checkArgs(req, 2); err != nil {
		return err
	}
	sm, err := types.ParseStateMachine(req[0])
	if err != nil {
		return err
	}
	balance, err := j.host.Fees(sm, common.FromHex(req[1]))
	if err != nil {
		return err
	}
	*res = balance.Dec()
	return nil
}

func (j *Ismp) Nonce(req []string, res *string) error {
	if err := checkArgs(req, 2); err != nil {
		return err
	}
	sm, err := types.ParseStateMachine(req[1])
	if err != nil {
		return err
	}
	nonce, err := j.host.Nonce(common.FromHex(req[0]), sm)
	if err != nil {
		return err
	}
	*res = strconv.FormatUint(nonce, 10)
	return nil
}

func (j *Ismp) AccumulateFees(req []string, res *string) error {
	if err := checkArgs(req, 1); err != nil {
		return err
	}
	var proof types.WithdrawalProof
	if err := codec.Decode(common.FromHex(req[0]), &proof); err != nil {
		return fmt.Errorf("decode withdrawal proof: %w", err)
	}
	if err := j.host.AccumulateFees(j.ctx, proof); err != nil {
		return err
	}
	*res = "OK"
	return nil
}

func (j *Ismp) WithdrawFees(req []string, res *string) error {
	if err := checkArgs(req, 1); err != nil {
		return err
	}
	var input types.WithdrawalInputData
	if err := codec.Decode(common.FromHex(req[0]), &input); err != nil {
		return fmt.Errorf("decode withdrawal input: %w", err)
	}
	commitment, err := j.host.WithdrawFees(j.ctx, input)
	if err != nil {
		return err
	}
	*res = commitment.Hex()
	return nil
}
