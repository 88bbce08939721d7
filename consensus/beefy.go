package consensus

import (
	"crypto/ecdsa"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

var BeefyClientID = types.MustFourByteID("BEEF")

// BeefyState tracks a BEEFY validator set by the Ethereum addresses of its secp256k1 keys.
type BeefyState struct {
	SetID        uint64           `json:"set_id"`
	Authorities  []common.Address `json:"authorities"`
	LatestHeight uint64           `json:"latest_height"`
	LatestHash   common.Hash      `json:"latest_hash"`
}

func (s BeefyState) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(s.SetID)
	e.EncodeLength(len(s.Authorities))
	for _, a := range s.Authorities {
		e.EncodeFixed(a[:])
	}
	e.EncodeUint64(s.LatestHeight)
	e.EncodeHash(s.LatestHash)
}

func (s *BeefyState) DecodeFrom(d *codec.Decoder) {
	s.SetID = d.DecodeUint64()
	n := d.DecodeLength(common.AddressLength)
	s.Authorities = make([]common.Address, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		d.DecodeFixed(s.Authorities[i][:])
	}
	s.LatestHeight = d.DecodeUint64()
	s.LatestHash = d.DecodeHash()
}

// BeefyCommitment is what validators sign, hashed with keccak.
type BeefyCommitment struct {
	HeaderHash common.Hash
	Height     uint64
	SetID      uint64
}

func (c BeefyCommitment) EncodeTo(e *codec.Encoder) {
	e.EncodeHash(c.HeaderHash)
	e.EncodeUint64(c.Height)
	e.EncodeUint64(c.SetID)
}

type BeefySignature struct {
	AuthorityIndex uint32          `json:"authority_index"`
	Signature      common.HexBytes `json:"signature"`
}

type BeefyProof struct {
	Header     Header           `json:"header"`
	Signatures []BeefySignature `json:"signatures"`
}

func (p BeefyProof) EncodeTo(e *codec.Encoder) {
	p.Header.EncodeTo(e)
	e.EncodeLength(len(p.Signatures))
	for _, s := range p.Signatures {
		e.EncodeUint32(s.AuthorityIndex)
		e.EncodeBytes(s.Signature)
	}
}

func (p *BeefyProof) DecodeFrom(d *codec.Decoder) {
	p.Header.DecodeFrom(d)
	n := d.DecodeLength(5)
	p.Signatures = make([]BeefySignature, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		p.Signatures[i].AuthorityIndex = d.DecodeUint32()
		p.Signatures[i].Signature = d.DecodeBytes()
	}
}

// BeefyClient follows a chain whose finality is attested by BEEFY, the bridge
// friendly gadget signing keccak commitments with secp256k1 keys.
type BeefyClient struct {
	StateProofVerifier
}

func (*BeefyClient) ID() types.ConsensusClientID {
	return BeefyClientID
}

func (c *BeefyClient) VerifyConsensus(trusted []byte, proof []byte) (*Update, error) {
	var state BeefyState
	if err := codec.Decode(trusted, &state); err != nil {
		return nil, proofFailed("decode beefy state: %v", err)
	}
	var p BeefyProof
	if err := codec.Decode(proof, &p); err != nil {
		return nil, proofFailed("decode beefy proof: %v", err)
	}
	if p.Header.Height <= state.LatestHeight {
		return nil, proofFailed("header height %d is not above latest finalized %d", p.Header.Height, state.LatestHeight)
	}
	if err := c.verifySignatures(&state, &p); err != nil {
		return nil, err
	}

	next := BeefyState{
		SetID:        state.SetID,
		Authorities:  state.Authorities,
		LatestHeight: p.Header.Height,
		LatestHash:   p.Header.KeccakHash(),
	}
	if p.Header.Rotates() {
		next.SetID++
		next.Authorities = make([]common.Address, len(p.Header.NextAuthorities))
		for i, a := range p.Header.NextAuthorities {
			if len(a) != common.AddressLength {
				return nil, proofFailed("next authority address length %d", len(a))
			}
			next.Authorities[i] = common.BytesToAddress(a)
		}
		log.Debug(log.ConsensusModule, "beefy validator set rotated", "setID", next.SetID, "authorities", len(next.Authorities))
	}
	return &Update{State: codec.Encode(next), Commitments: p.Header.Commitments}, nil
}

func (c *BeefyClient) VerifyFraudProof(trusted []byte, proof1, proof2 []byte) error {
	var state BeefyState
	if err := codec.Decode(trusted, &state); err != nil {
		return fraudFailed("decode beefy state: %v", err)
	}
	var p1, p2 BeefyProof
	if err := codec.Decode(proof1, &p1); err != nil {
		return fraudFailed("decode first proof: %v", err)
	}
	if err := codec.Decode(proof2, &p2); err != nil {
		return fraudFailed("decode second proof: %v", err)
	}
	if p1.Header.Height != p2.Header.Height {
		return fraudFailed("headers at different heights %d and %d", p1.Header.Height, p2.Header.Height)
	}
	if p1.Header.KeccakHash() == p2.Header.KeccakHash() {
		return fraudFailed("both proofs finalize the same header")
	}
	if err := c.verifySignatures(&state, &p1); err != nil {
		return fraudFailed("first proof: %v", err)
	}
	if err := c.verifySignatures(&state, &p2); err != nil {
		return fraudFailed("second proof: %v", err)
	}
	return nil
}

func (c *BeefyClient) verifySignatures(state *BeefyState, p *BeefyProof) error {
	commitment := BeefyCommitment{HeaderHash: p.Header.KeccakHash(), Height: p.Header.Height, SetID: state.SetID}
	msgHash := common.Keccak256(codec.Encode(commitment))

	seen := make(map[uint32]bool, len(p.Signatures))
	signed := 0
	for _, s := range p.Signatures {
		if int(s.AuthorityIndex) >= len(state.Authorities) || seen[s.AuthorityIndex] {
			continue
		}
		if err := common.VerifyEthSignature(state.Authorities[s.AuthorityIndex], msgHash, s.Signature); err != nil {
			continue
		}
		seen[s.AuthorityIndex] = true
		signed++
	}
	if !hasQuorum(signed, len(state.Authorities)) {
		return proofFailed("insufficient beefy signatures: got %d of %d", signed, len(state.Authorities))
	}
	return nil
}

// SignBeefyProof signs header with keys, where keys[i] belongs to the authority at indices[i].
func SignBeefyProof(header Header, setID uint64, keys []*ecdsa.PrivateKey, indices []uint32) (BeefyProof, error) {
	commitment := BeefyCommitment{HeaderHash: header.KeccakHash(), Height: header.Height, SetID: setID}
	payload := codec.Encode(commitment)
	p := BeefyProof{Header: header}
	for i, k := range keys {
		_, sig, err := common.EthSignWithKey(k, payload)
		if err != nil {
			return BeefyProof{}, err
		}
		p.Signatures = append(p.Signatures, BeefySignature{AuthorityIndex: indices[i], Signature: sig})
	}
	return p, nil
}
