package consensus

import (
	"errors"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
)

var SyncCommitteeClientID = types.MustFourByteID("SYNC")

const (
	BLSPublicKeySize = bls12381.SizeOfG1AffineCompressed
	BLSSignatureSize = bls12381.SizeOfG2AffineCompressed
)

// syncDST is the proof of possession ciphersuite of the BLS signature standard.
var syncDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

var syncSigningPrefix = []byte("ismp_sync_committee")

var errBLSInvalidPoint = errors.New("bls: invalid point encoding")

// SyncCommitteeState tracks a rotating committee of BLS keys, in the manner of the
// beacon chain light client.
type SyncCommitteeState struct {
	Period       uint64            `json:"period"`
	Committee    []common.HexBytes `json:"committee"`
	LatestHeight uint64            `json:"latest_height"`
	LatestHash   common.Hash       `json:"latest_hash"`
}

func (s SyncCommitteeState) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(s.Period)
	e.EncodeLength(len(s.Committee))
	for _, pk := range s.Committee {
		e.EncodeFixed(pk)
	}
	e.EncodeUint64(s.LatestHeight)
	e.EncodeHash(s.LatestHash)
}

func (s *SyncCommitteeState) DecodeFrom(d *codec.Decoder) {
	s.Period = d.DecodeUint64()
	n := d.DecodeLength(BLSPublicKeySize)
	s.Committee = make([]common.HexBytes, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		s.Committee[i] = make(common.HexBytes, BLSPublicKeySize)
		d.DecodeFixed(s.Committee[i])
	}
	s.LatestHeight = d.DecodeUint64()
	s.LatestHash = d.DecodeHash()
}

// SyncCommitteeProof carries one aggregate signature of the members flagged in
// Participation, a little endian bitfield over the committee.
type SyncCommitteeProof struct {
	Header        Header          `json:"header"`
	Participation common.HexBytes `json:"participation"`
	Signature     common.HexBytes `json:"signature"`
}

func (p SyncCommitteeProof) EncodeTo(e *codec.Encoder) {
	p.Header.EncodeTo(e)
	e.EncodeBytes(p.Participation)
	e.EncodeBytes(p.Signature)
}

func (p *SyncCommitteeProof) DecodeFrom(d *codec.Decoder) {
	p.Header.DecodeFrom(d)
	p.Participation = d.DecodeBytes()
	p.Signature = d.DecodeBytes()
}

func (p SyncCommitteeProof) participant(i int) bool {
	return i/8 < len(p.Participation) && p.Participation[i/8]&(1<<(i%8)) != 0
}

// SyncSigningRoot is the message committee members sign for a header.
func SyncSigningRoot(header Header, period uint64) []byte {
	e := codec.NewEncoder()
	e.EncodeFixed(syncSigningPrefix)
	e.EncodeHash(header.KeccakHash())
	e.EncodeUint64(period)
	return e.Bytes()
}

type SyncCommitteeClient struct {
	StateProofVerifier
}

func (*SyncCommitteeClient) ID() types.ConsensusClientID {
	return SyncCommitteeClientID
}

func (c *SyncCommitteeClient) VerifyConsensus(trusted []byte, proof []byte) (*Update, error) {
	var state SyncCommitteeState
	if err := codec.Decode(trusted, &state); err != nil {
		return nil, proofFailed("decode sync committee state: %v", err)
	}
	var p SyncCommitteeProof
	if err := codec.Decode(proof, &p); err != nil {
		return nil, proofFailed("decode sync committee proof: %v", err)
	}
	if p.Header.Height <= state.LatestHeight {
		return nil, proofFailed("header height %d is not above latest finalized %d", p.Header.Height, state.LatestHeight)
	}
	if err := verifySyncAggregate(&state, &p); err != nil {
		return nil, err
	}

	next := SyncCommitteeState{
		Period:       state.Period,
		Committee:    state.Committee,
		LatestHeight: p.Header.Height,
		LatestHash:   p.Header.KeccakHash(),
	}
	if p.Header.Rotates() {
		for _, pk := range p.Header.NextAuthorities {
			if _, err := decodeG1(pk); err != nil {
				return nil, proofFailed("next committee: %v", err)
			}
		}
		next.Period++
		next.Committee = p.Header.NextAuthorities
		log.Debug(log.ConsensusModule, "sync committee rotated", "period", next.Period, "members", len(next.Committee))
	}
	return &Update{State: codec.Encode(next), Commitments: p.Header.Commitments}, nil
}

func (c *SyncCommitteeClient) VerifyFraudProof(trusted []byte, proof1, proof2 []byte) error {
	var state SyncCommitteeState
	if err := codec.Decode(trusted, &state); err != nil {
		return fraudFailed("decode sync committee state: %v", err)
	}
	var p1, p2 SyncCommitteeProof
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
	if err := verifySyncAggregate(&state, &p1); err != nil {
		return fraudFailed("first proof: %v", err)
	}
	if err := verifySyncAggregate(&state, &p2); err != nil {
		return fraudFailed("second proof: %v", err)
	}
	return nil
}

// verifySyncAggregate checks the aggregate signature of the participating members,
// who must be more than two thirds of the committee.
func verifySyncAggregate(state *SyncCommitteeState, p *SyncCommitteeProof) error {
	if len(p.Participation) != (len(state.Committee)+7)/8 {
		return proofFailed("participation bitfield of %d bytes for %d members", len(p.Participation), len(state.Committee))
	}
	var agg bls12381.G1Jac
	participants := 0
	for i, raw := range state.Committee {
		if !p.participant(i) {
			continue
		}
		pk, err := decodeG1(raw)
		if err != nil {
			return proofFailed("committee member %d: %v", i, err)
		}
		if participants == 0 {
			agg.FromAffine(pk)
		} else {
			agg.AddMixed(pk)
		}
		participants++
	}
	if !hasQuorum(participants, len(state.Committee)) {
		return proofFailed("insufficient participation: %d of %d", participants, len(state.Committee))
	}
	sig, err := decodeG2(p.Signature)
	if err != nil {
		return proofFailed("aggregate signature: %v", err)
	}
	var aggPk bls12381.G1Affine
	aggPk.FromJacobian(&agg)
	if !blsVerify(&aggPk, SyncSigningRoot(p.Header, state.Period), sig) {
		return proofFailed("aggregate signature does not verify")
	}
	return nil
}

// blsVerify checks e(pk, H(m)) == e(g1, sig).
func blsVerify(pk *bls12381.G1Affine, msg []byte, sig *bls12381.G2Affine) bool {
	h, err := bls12381.HashToG2(msg, syncDST)
	if err != nil {
		return false
	}
	_, _, g1, _ := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1)
	ok, err := bls12381.PairingCheck([]bls12381.G1Affine{*pk, negG1}, []bls12381.G2Affine{h, *sig})
	return err == nil && ok
}

func decodeG1(raw []byte) (*bls12381.G1Affine, error) {
	if len(raw) != BLSPublicKeySize {
		return nil, fmt.Errorf("%w: public key length %d", errBLSInvalidPoint, len(raw))
	}
	var p bls12381.G1Affine
	if _, err := p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errBLSInvalidPoint, err)
	}
	if p.IsInfinity() {
		return nil, fmt.Errorf("%w: identity public key", errBLSInvalidPoint)
	}
	return &p, nil
}

func decodeG2(raw []byte) (*bls12381.G2Affine, error) {
	if len(raw) != BLSSignatureSize {
		return nil, fmt.Errorf("%w: signature length %d", errBLSInvalidPoint, len(raw))
	}
	var p bls12381.G2Affine
	if _, err := p.SetBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errBLSInvalidPoint, err)
	}
	return &p, nil
}

// BLSSecretKey is a sync committee member key.
type BLSSecretKey struct {
	scalar *big.Int
}

// NewBLSSecretKey derives a key from seed. The same seed always yields the same key.
func NewBLSSecretKey(seed []byte) BLSSecretKey {
	h := common.Keccak256(seed)
	s := new(big.Int).SetBytes(h[:])
	s.Mod(s, fr.Modulus())
	if s.Sign() == 0 {
		s.SetUint64(1)
	}
	return BLSSecretKey{scalar: s}
}

func (k BLSSecretKey) PublicKey() common.HexBytes {
	_, _, g1, _ := bls12381.Generators()
	var pk bls12381.G1Affine
	pk.ScalarMultiplication(&g1, k.scalar)
	b := pk.Bytes()
	return common.HexBytes(b[:])
}

func (k BLSSecretKey) sign(msg []byte) (bls12381.G2Affine, error) {
	h, err := bls12381.HashToG2(msg, syncDST)
	if err != nil {
		return bls12381.G2Affine{}, err
	}
	var sig bls12381.G2Affine
	sig.ScalarMultiplication(&h, k.scalar)
	return sig, nil
}

// SignSyncCommitteeProof aggregates the signatures of committee members. keys[i]
// is the member at indices[i] of a committee of the given size.
func SignSyncCommitteeProof(header Header, period uint64, size int, keys []BLSSecretKey, indices []int) (SyncCommitteeProof, error) {
	msg := SyncSigningRoot(header, period)
	p := SyncCommitteeProof{Header: header, Participation: make(common.HexBytes, (size+7)/8)}
	var agg bls12381.G2Jac
	for i, k := range keys {
		sig, err := k.sign(msg)
		if err != nil {
			return SyncCommitteeProof{}, err
		}
		if i == 0 {
			agg.FromAffine(&sig)
		} else {
			agg.AddMixed(&sig)
		}
		idx := indices[i]
		p.Participation[idx/8] |= 1 << (idx % 8)
	}
	var aggSig bls12381.G2Affine
	aggSig.FromJacobian(&agg)
	b := aggSig.Bytes()
	p.Signature = b[:]
	return p, nil
}
