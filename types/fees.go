package types

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/holiman/uint256"
)

// FeeMetadata is stored with every outgoing request and response commitment.
type FeeMetadata struct {
	Payer common.HexBytes `json:"payer"`
	Fee   *uint256.Int    `json:"fee"`
}

func (m FeeMetadata) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(m.Payer)
	e.EncodeU256(m.Fee)
}

func (m *FeeMetadata) DecodeFrom(d *codec.Decoder) {
	m.Payer = d.DecodeBytes()
	m.Fee = d.DecodeU256()
}

// LeafMetadata locates a commitment in the accumulator.
type LeafMetadata struct {
	LeafIndex uint64 `json:"leaf_index"`
	Position  uint64 `json:"position"`
}

// CommitmentMetadata is the value stored under an outgoing commitment key.
type CommitmentMetadata struct {
	Fee  FeeMetadata  `json:"fee"`
	Leaf LeafMetadata `json:"leaf"`
}

func (m CommitmentMetadata) EncodeTo(e *codec.Encoder) {
	m.Fee.EncodeTo(e)
	e.EncodeUint64(m.Leaf.LeafIndex)
	e.EncodeUint64(m.Leaf.Position)
}

func (m *CommitmentMetadata) DecodeFrom(d *codec.Decoder) {
	m.Fee.DecodeFrom(d)
	m.Leaf.LeafIndex = d.DecodeUint64()
	m.Leaf.Position = d.DecodeUint64()
}

// ResponseReceipt is stored when a post response is delivered to this host.
type ResponseReceipt struct {
	Response common.Hash     `json:"response"`
	Relayer  common.HexBytes `json:"relayer"`
}

func (r ResponseReceipt) EncodeTo(e *codec.Encoder) {
	e.EncodeHash(r.Response)
	e.EncodeBytes(r.Relayer)
}

func (r *ResponseReceipt) DecodeFrom(d *codec.Decoder) {
	r.Response = d.DecodeHash()
	r.Relayer = d.DecodeBytes()
}

// FeeKey names a delivery a relayer claims a fee for: a request commitment, or a
// response commitment together with the request it answers.
type FeeKey struct {
	Request  common.Hash  `json:"request"`
	Response *common.Hash `json:"response,omitempty"`
}

func (k FeeKey) IsResponse() bool {
	return k.Response != nil
}

func (k FeeKey) EncodeTo(e *codec.Encoder) {
	if k.Response != nil {
		e.EncodeUint8(1)
		e.EncodeHash(*k.Response)
		e.EncodeHash(k.Request)
		return
	}
	e.EncodeUint8(0)
	e.EncodeHash(k.Request)
}

func (k *FeeKey) DecodeFrom(d *codec.Decoder) {
	*k = FeeKey{}
	if d.DecodeTag(2) == 1 {
		resp := d.DecodeHash()
		k.Response = &resp
	}
	k.Request = d.DecodeHash()
}

// WithdrawalProof proves deliveries made by a relayer: SourceProof shows the fee
// metadata on the chain that paid, DestProof the receipts on the chain that received.
type WithdrawalProof struct {
	Commitments []FeeKey `json:"commitments"`
	SourceProof Proof    `json:"source_proof"`
	DestProof   Proof    `json:"dest_proof"`
}

func (p WithdrawalProof) EncodeTo(e *codec.Encoder) {
	e.EncodeLength(len(p.Commitments))
	for _, k := range p.Commitments {
		k.EncodeTo(e)
	}
	p.SourceProof.EncodeTo(e)
	p.DestProof.EncodeTo(e)
}

func (p *WithdrawalProof) DecodeFrom(d *codec.Decoder) {
	n := d.DecodeLength(1 + common.HashLength)
	p.Commitments = make([]FeeKey, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		p.Commitments[i].DecodeFrom(d)
	}
	p.SourceProof.DecodeFrom(d)
	p.DestProof.DecodeFrom(d)
}

type SignatureKind uint8

const (
	SignatureEvm SignatureKind = iota
	SignatureSr25519
	SignatureEd25519
)

func (k SignatureKind) String() string {
	switch k {
	case SignatureEvm:
		return "Evm"
	case SignatureSr25519:
		return "Sr25519"
	case SignatureEd25519:
		return "Ed25519"
	}
	return fmt.Sprintf("SignatureKind(%d)", k)
}

// Signature authorizes a fee withdrawal. For Evm signatures Signer is the 20 byte
// address, otherwise the 32 byte public key.
type Signature struct {
	Kind      SignatureKind   `json:"kind"`
	Signer    common.HexBytes `json:"signer"`
	Signature common.HexBytes `json:"signature"`
}

func (s Signature) EncodeTo(e *codec.Encoder) {
	e.EncodeUint8(uint8(s.Kind))
	e.EncodeBytes(s.Signer)
	e.EncodeBytes(s.Signature)
}

func (s *Signature) DecodeFrom(d *codec.Decoder) {
	s.Kind = SignatureKind(d.DecodeTag(3))
	s.Signer = d.DecodeBytes()
	s.Signature = d.DecodeBytes()
}

// WithdrawalInputData asks to pay out accumulated fees on DestChain.
type WithdrawalInputData struct {
	Signature Signature    `json:"signature"`
	DestChain StateMachine `json:"dest_chain"`
	Amount    *uint256.Int `json:"amount"`
}

func (w WithdrawalInputData) EncodeTo(e *codec.Encoder) {
	w.Signature.EncodeTo(e)
	w.DestChain.EncodeTo(e)
	e.EncodeU256(w.Amount)
}

func (w *WithdrawalInputData) DecodeFrom(d *codec.Decoder) {
	w.Signature.DecodeFrom(d)
	w.DestChain.DecodeFrom(d)
	w.Amount = d.DecodeU256()
}

// WithdrawalMessage is the payload a relayer signs to authorize a withdrawal.
type WithdrawalMessage struct {
	Nonce     uint64
	DestChain StateMachine
	Amount    *uint256.Int
}

func (w WithdrawalMessage) EncodeTo(e *codec.Encoder) {
	e.EncodeUint64(w.Nonce)
	w.DestChain.EncodeTo(e)
	e.EncodeU256(w.Amount)
}

// Hash is the digest the relayer signs.
func (w WithdrawalMessage) Hash() common.Hash {
	return common.Keccak256(codec.Encode(w))
}

// WithdrawalParams is the body of the payout request sent to the destination chain.
type WithdrawalParams struct {
	Beneficiary common.HexBytes `json:"beneficiary"`
	Amount      *uint256.Int    `json:"amount"`
}

func (w WithdrawalParams) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(w.Beneficiary)
	e.EncodeU256(w.Amount)
}

func (w *WithdrawalParams) DecodeFrom(d *codec.Decoder) {
	w.Beneficiary = d.DecodeBytes()
	w.Amount = d.DecodeU256()
}
