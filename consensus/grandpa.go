package consensus

import (
	"bytes"
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ed25519"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

var GrandpaClientID = types.MustFourByteID("GRNP")

var grandpaVotePrefix = []byte("ismp_grandpa_vote")

type GrandpaStage byte

const (
	PrevoteStage GrandpaStage = iota
	PrecommitStage
)

// GrandpaState is the trusted state of a GRANDPA client: the current authority set
// and the latest finalized header.
type GrandpaState struct {
	SetID        uint64            `json:"set_id"`
	Authorities  []common.HexBytes `json:"authorities"`
	LatestHeight uint64            `json:"latest_height"`
	LatestHash   common.Hash       `json:"latest_hash"`
}

func (s GrandpaState) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(s.SetID)
	e.EncodeLength(len(s.Authorities))
	for _, a := range s.Authorities {
		e.EncodeFixed(a)
	}
	e.EncodeUint64(s.LatestHeight)
	e.EncodeHash(s.LatestHash)
}

func (s *GrandpaState) DecodeFrom(d *codec.Decoder) {
	s.SetID = d.DecodeUint64()
	n := d.DecodeLength(ed25519.PublicKeySize)
	s.Authorities = make([]common.HexBytes, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		s.Authorities[i] = make(common.HexBytes, ed25519.PublicKeySize)
		d.DecodeFixed(s.Authorities[i])
	}
	s.LatestHeight = d.DecodeUint64()
	s.LatestHash = d.DecodeHash()
}

// GrandpaVote is the data an authority signs when it precommits to a header.
type GrandpaVote struct {
	Stage      GrandpaStage
	HeaderHash common.Hash
	Height     uint64
	Round      uint64
	SetID      uint64
}

func (v GrandpaVote) EncodeTo(e *codec.Encoder) {
	e.EncodeUint8(uint8(v.Stage))
	e.EncodeHash(v.HeaderHash)
	e.EncodeUint64(v.Height)
	e.EncodeUint64(v.Round)
	e.EncodeUint64(v.SetID)
}

// SigningPayload is the byte string authorities sign.
func (v GrandpaVote) SigningPayload() []byte {
	return append(append([]byte{}, grandpaVotePrefix...), codec.Encode(v)...)
}

type GrandpaPrecommit struct {
	Authority common.HexBytes `json:"authority"`
	Signature common.HexBytes `json:"signature"`
}

// GrandpaProof is a header together with the justification finalizing it.
type GrandpaProof struct {
	Header     Header             `json:"header"`
	Round      uint64             `json:"round"`
	Precommits []GrandpaPrecommit `json:"precommits"`
}

func (p GrandpaProof) EncodeTo(e *codec.Encoder) {
	p.Header.EncodeTo(e)
	e.EncodeUint64(p.Round)
	e.EncodeLength(len(p.Precommits))
	for _, pc := range p.Precommits {
		e.EncodeFixed(pc.Authority)
		e.EncodeFixed(pc.Signature)
	}
}

func (p *GrandpaProof) DecodeFrom(d *codec.Decoder) {
	p.Header.DecodeFrom(d)
	p.Round = d.DecodeUint64()
	n := d.DecodeLength(ed25519.PublicKeySize + ed25519.SignatureSize)
	p.Precommits = make([]GrandpaPrecommit, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		p.Precommits[i].Authority = make(common.HexBytes, ed25519.PublicKeySize)
		d.DecodeFixed(p.Precommits[i].Authority)
		p.Precommits[i].Signature = make(common.HexBytes, ed25519.SignatureSize)
		d.DecodeFixed(p.Precommits[i].Signature)
	}
}

// GrandpaClient follows a chain finalized by GRANDPA, such as a relay chain and
// the parachains it secures.
type GrandpaClient struct {
	StateProofVerifier
}

func (*GrandpaClient) ID() types.ConsensusClientID {
	return GrandpaClientID
}

func (c *GrandpaClient) VerifyConsensus(trusted []byte, proof []byte) (*Update, error) {
	var state GrandpaState
	if err := codec.Decode(trusted, &state); err != nil {
		return nil, proofFailed("decode grandpa state: %v", err)
	}
	var p GrandpaProof
	if err := codec.Decode(proof, &p); err != nil {
		return nil, proofFailed("decode grandpa proof: %v", err)
	}
	if p.Header.Height <= state.LatestHeight {
		return nil, proofFailed("header height %d is not above latest finalized %d", p.Header.Height, state.LatestHeight)
	}
	if err := c.verifyJustification(&state, &p); err != nil {
		return nil, err
	}

	next := GrandpaState{
		SetID:        state.SetID,
		Authorities:  state.Authorities,
		LatestHeight: p.Header.Height,
		LatestHash:   p.Header.Blake2Hash(),
	}
	if p.Header.Rotates() {
		for _, a := range p.Header.NextAuthorities {
			if len(a) != ed25519.PublicKeySize {
				return nil, proofFailed("next authority key length %d", len(a))
			}
		}
		next.SetID++
		next.Authorities = p.Header.NextAuthorities
		log.Debug(log.ConsensusModule, "grandpa authority set rotated", "setID", next.SetID, "authorities", len(next.Authorities))
	}
	return &Update{State: codec.Encode(next), Commitments: p.Header.Commitments}, nil
}

func (c *GrandpaClient) VerifyFraudProof(trusted []byte, proof1, proof2 []byte) error {
	var state GrandpaState
	if err := codec.Decode(trusted, &state); err != nil {
		return fraudFailed("decode grandpa state: %v", err)
	}
	var p1, p2 GrandpaProof
	if err := codec.Decode(proof1, &p1); err != nil {
		return fraudFailed("decode first proof: %v", err)
	}
	if err := codec.Decode(proof2, &p2); err != nil {
		return fraudFailed("decode second proof: %v", err)
	}
	if p1.Header.Height != p2.Header.Height {
		return fraudFailed("headers at different heights %d and %d", p1.Header.Height, p2.Header.Height)
	}
	if p1.Header.Blake2Hash() == p2.Header.Blake2Hash() {
		return fraudFailed("both proofs finalize the same header")
	}
	if err := c.verifyJustification(&state, &p1); err != nil {
		return fraudFailed("first proof: %v", err)
	}
	if err := c.verifyJustification(&state, &p2); err != nil {
		return fraudFailed("second proof: %v", err)
	}
	return nil
}

// verifyJustification counts precommits for the header from distinct members of
// the current set. More than two thirds of the set must have signed.
func (c *GrandpaClient) verifyJustification(state *GrandpaState, p *GrandpaProof) error {
	vote := GrandpaVote{
		Stage:      PrecommitStage,
		HeaderHash: p.Header.Blake2Hash(),
		Height:     p.Header.Height,
		Round:      p.Round,
		SetID:      state.SetID,
	}
	payload := vote.SigningPayload()

	var (
		entries []ed25519.SignedMessage
		indices []int
	)
	for _, pc := range p.Precommits {
		if idx := authorityIndex(state.Authorities, pc.Authority); idx >= 0 {
			entries = append(entries, ed25519.SignedMessage{PublicKey: pc.Authority, Message: payload, Signature: pc.Signature})
			indices = append(indices, idx)
		}
	}

	// an authority counts once, and only for a precommit that verifies
	allValid := ed25519.VerifyBatch(entries)
	seen := make(map[int]bool, len(entries))
	signed := 0
	for i, e := range entries {
		if seen[indices[i]] {
			continue
		}
		if !allValid && !ed25519.Verify(e.PublicKey, e.Message, e.Signature) {
			continue
		}
		seen[indices[i]] = true
		signed++
	}
	if !hasQuorum(signed, len(state.Authorities)) {
		return proofFailed("insufficient precommits: got %d of %d", signed, len(state.Authorities))
	}
	return nil
}

func authorityIndex(authorities []common.HexBytes, key []byte) int {
	for i, a := range authorities {
		if bytes.Equal(a, key) {
			return i
		}
	}
	return -1
}

func fraudFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ismperrors.ErrHFraudProofVerificationFailed)
}

// SignGrandpaProof finalizes header with the precommits of the given keys.
func SignGrandpaProof(header Header, round, setID uint64, keys []ed25519.PrivateKey) GrandpaProof {
	vote := GrandpaVote{Stage: PrecommitStage, HeaderHash: header.Blake2Hash(), Height: header.Height, Round: round, SetID: setID}
	payload := vote.SigningPayload()
	p := GrandpaProof{Header: header, Round: round}
	for _, k := range keys {
		p.Precommits = append(p.Precommits, GrandpaPrecommit{
			Authority: common.HexBytes(k.Public().(ed25519.PublicKey)),
			Signature: ed25519.Sign(k, payload),
		})
	}
	return p
}
