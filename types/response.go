package types

import (
	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
)

type PostResponse struct {
	Post             PostRequest     `json:"post"`
	Response         common.HexBytes `json:"response"`
	TimeoutTimestamp uint64          `json:"timeout_timestamp"`
}

func (r PostResponse) EncodeTo(e *codec.Encoder) {
	r.Post.EncodeTo(e)
	e.EncodeBytes(r.Response)
	e.EncodeUint64(r.TimeoutTimestamp)
}

func (r *PostResponse) DecodeFrom(d *codec.Decoder) {
	r.Post.DecodeFrom(d)
	r.Response = d.DecodeBytes()
	r.TimeoutTimestamp = d.DecodeUint64()
}

func (r PostResponse) Commitment() common.Hash {
	return Response{Post: &r}.Commitment()
}

// StorageValue is one key of a Get response. A nil Value means the key is absent.
type StorageValue struct {
	Key   common.HexBytes `json:"key"`
	Value common.HexBytes `json:"value"`
}

func (v StorageValue) EncodeTo(e *codec.Encoder) {
	e.EncodeBytes(v.Key)
	e.EncodeOption(v.Value != nil)
	if v.Value != nil {
		e.EncodeBytes(v.Value)
	}
}

func (v *StorageValue) DecodeFrom(d *codec.Decoder) {
	v.Key = d.DecodeBytes()
	v.Value = nil
	if d.DecodeOption() {
		v.Value = d.DecodeBytes()
	}
}

type GetResponse struct {
	Get    GetRequest     `json:"get"`
	Values []StorageValue `json:"values"`
}

func (r GetResponse) EncodeTo(e *codec.Encoder) {
	r.Get.EncodeTo(e)
	e.EncodeLength(len(r.Values))
	for _, v := range r.Values {
		v.EncodeTo(e)
	}
}

func (r *GetResponse) DecodeFrom(d *codec.Decoder) {
	r.Get.DecodeFrom(d)
	n := d.DecodeLength(2)
	r.Values = make([]StorageValue, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		r.Values[i].DecodeFrom(d)
	}
}

// Response answers a request. Its source is the request's destination and vice versa.
type Response struct {
	Post *PostResponse `json:"post,omitempty"`
	Get  *GetResponse  `json:"get,omitempty"`
}

func (r Response) Validate() error {
	if (r.Post == nil) == (r.Get == nil) {
		return errEmptyVariant
	}
	return nil
}

func (r Response) Request() Request {
	if r.Get != nil {
		get := r.Get.Get
		return Request{Get: &get}
	}
	post := r.Post.Post
	return Request{Post: &post}
}

func (r Response) Source() StateMachine {
	return r.Request().Dest()
}

func (r Response) Dest() StateMachine {
	return r.Request().Source()
}

func (r Response) Nonce() uint64 {
	return r.Request().Nonce()
}

// TimeoutTimestamp of a Get response is the timeout of the request it answers.
func (r Response) TimeoutTimestamp() uint64 {
	if r.Get != nil {
		return r.Get.Get.TimeoutTimestamp
	}
	return r.Post.TimeoutTimestamp
}

func (r Response) TimedOut(now uint64) bool {
	return timedOut(r.TimeoutTimestamp(), now)
}

func (r Response) EncodeTo(e *codec.Encoder) {
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

func (r *Response) DecodeFrom(d *codec.Decoder) {
	*r = Response{}
	switch d.DecodeTag(2) {
	case 0:
		r.Post = new(PostResponse)
		r.Post.DecodeFrom(d)
	case 1:
		r.Get = new(GetResponse)
		r.Get.DecodeFrom(d)
	}
}

func (r Response) Commitment() common.Hash {
	return Leaf{Response: &r}.Hash()
}

// Leaf is an entry of the request/response accumulator.
type Leaf struct {
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
}

func (l Leaf) EncodeTo(e *codec.Encoder) {
	if l.Response != nil {
		e.EncodeUint8(1)
		l.Response.EncodeTo(e)
		return
	}
	e.EncodeUint8(0)
	if l.Request != nil {
		l.Request.EncodeTo(e)
	}
}

func (l *Leaf) DecodeFrom(d *codec.Decoder) {
	*l = Leaf{}
	switch d.DecodeTag(2) {
	case 0:
		l.Request = new(Request)
		l.Request.DecodeFrom(d)
	case 1:
		l.Response = new(Response)
		l.Response.DecodeFrom(d)
	}
}

// Hash is keccak256 over the canonical leaf encoding. It is the commitment of the wrapped message.
func (l Leaf) Hash() common.Hash {
	return common.Keccak256(codec.Encode(l))
}

func encodeResponses(e *codec.Encoder, resps []Response) {
	e.EncodeLength(len(resps))
	for _, r := range resps {
		r.EncodeTo(e)
	}
}

func decodeResponses(d *codec.Decoder) []Response {
	n := d.DecodeLength(1)
	out := make([]Response, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		out[i].DecodeFrom(d)
	}
	return out
}
