package types

import (
	"errors"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
)

var errEmptyVariant = errors.New("enum value has no variant set")

// PostRequest carries an opaque body from a module on Source to a module on Dest.
type PostRequest struct {
	Source           StateMachine    `json:"source"`
	Dest             StateMachine    `json:"dest"`
	Nonce            uint64          `json:"nonce"`
	From             common.HexBytes `json:"from"`
	To               common.HexBytes `json:"to"`
	TimeoutTimestamp uint64          `json:"timeout_timestamp"`
	Body             common.HexBytes `json:"body"`
}

func (r PostRequest) EncodeTo(e *codec.Encoder) {
	r.Source.EncodeTo(e)
	r.Dest.EncodeTo(e)
	e.EncodeUint64(r.Nonce)
	e.EncodeBytes(r.From)
	e.EncodeBytes(r.To)
	e.EncodeUint64(r.TimeoutTimestamp)
	e.EncodeBytes(r.Body)
}

func (r *PostRequest) DecodeFrom(d *codec.Decoder) {
	r.Source.DecodeFrom(d)
	r.Dest.DecodeFrom(d)
	r.Nonce = d.DecodeUint64()
	r.From = d.DecodeBytes()
	r.To = d.DecodeBytes()
	r.TimeoutTimestamp = d.DecodeUint64()
	r.Body = d.DecodeBytes()
}

// Commitment is the hash of the request wrapped in its accumulator leaf.
func (r PostRequest) Commitment() common.Hash {
	return Request{Post: &r}.Commitment()
}

// GetRequest asks for the values of Keys in the state of Dest at Height.
type GetRequest struct {
	Source           StateMachine      `json:"source"`
	Dest             StateMachine      `json:"dest"`
	Nonce            uint64            `json:"nonce"`
	From             common.HexBytes   `json:"from"`
	Keys             []common.HexBytes `json:"keys"`
	Height           uint64            `json:"height"`
	TimeoutTimestamp uint64            `json:"timeout_timestamp"`
	Context          common.HexBytes   `json:"context"`
}

func (r GetRequest) EncodeTo(e *codec.Encoder) {
	r.Source.EncodeTo(e)
	r.Dest.EncodeTo(e)
	e.EncodeUint64(r.Nonce)
	e.EncodeBytes(r.From)
	e.EncodeLength(len(r.Keys))
	for _, k := range r.Keys {
		e.EncodeBytes(k)
	}
	e.EncodeUint64(r.Height)
	e.EncodeUint64(r.TimeoutTimestamp)
	e.EncodeBytes(r.Context)
}

func (r *GetRequest) DecodeFrom(d *codec.Decoder) {
	r.Source.DecodeFrom(d)
	r.Dest.DecodeFrom(d)
	r.Nonce = d.DecodeUint64()
	r.From = d.DecodeBytes()
	keys := d.DecodeByteSeq()
	r.Keys = make([]common.HexBytes, len(keys))
	for i, k := range keys {
		r.Keys[i] = k
	}
	r.Height = d.DecodeUint64()
	r.TimeoutTimestamp = d.DecodeUint64()
	r.Context = d.DecodeBytes()
}

func (r GetRequest) Commitment() common.Hash {
	return Request{Get: &r}.Commitment()
}

// KeyBytes returns the requested keys as plain byte slices.
func (r GetRequest) KeyBytes() [][]byte {
	out := make([][]byte, len(r.Keys))
	for i, k := range r.Keys {
		out[i] = k
	}
	return out
}

// Request is either a Post or a Get request. Exactly one field is set.
type Request struct {
	Post *PostRequest `json:"post,omitempty"`
	Get  *GetRequest  `json:"get,omitempty"`
}

func (r Request) Validate() error {
	if (r.Post == nil) == (r.Get == nil) {
		return errEmptyVariant
	}
	return nil
}

func (r Request) IsGet() bool {
	return r.Get != nil
}

func (r Request) Source() StateMachine {
	if r.Get != nil {
		return r.Get.Source
	}
	return r.Post.Source
}

func (r Request) Dest() StateMachine {
	if r.Get != nil {
		return r.Get.Dest
	}
	return r.Post.Dest
}

func (r Request) Nonce() uint64 {
	if r.Get != nil {
		return r.Get.Nonce
	}
	return r.Post.Nonce
}

func (r Request) From() []byte {
	if r.Get != nil {
		return r.Get.From
	}
	return r.Post.From
}

// To is the destination module. Get requests are served by the host itself and have none.
func (r Request) To() []byte {
	if r.Get != nil {
		return nil
	}
	return r.Post.To
}

func (r Request) TimeoutTimestamp() uint64 {
	if r.Get != nil {
		return r.Get.TimeoutTimestamp
	}
	return r.Post.TimeoutTimestamp
}

// TimedOut reports whether the request expired at the given time. A zero timeout never expires.
func (r Request) TimedOut(now uint64) bool {
	return timedOut(r.TimeoutTimestamp(), now)
}

func timedOut(timeout, now uint64) bool {
	return timeout != 0 && now >= timeout
}

func (r Request) EncodeTo(e *codec.Encoder) {
	if r.Get != nil {
		e.EncodeUint8(1)
		r.Get.EncodeTo(e)
		return
	}
	e.EncodeUint8(0)
	if r.Post != nil {
		r.Post.EncodeTo(e)
	}
}

func (r *Request) DecodeFrom(d *codec.Decoder) {
	*r = Request{}
	switch d.DecodeTag(2) {
	case 0:
		r.Post = new(PostRequest)
		r.Post.DecodeFrom(d)
	case 1:
		r.Get = new(GetRequest)
		r.Get.DecodeFrom(d)
	}
}

func (r Request) Commitment() common.Hash {
	return Leaf{Request: &r}.Hash()
}

func encodeRequests(e *codec.Encoder, reqs []Request) {
	e.EncodeLength(len(reqs))
	for _, r := range reqs {
		r.EncodeTo(e)
	}
}

func decodeRequests(d *codec.Decoder) []Request {
	n := d.DecodeLength(1)
	out := make([]Request, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		out[i].DecodeFrom(d)
	}
	return out
}
