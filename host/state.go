package host

import (
	"fmt"

	"github.com/colorfulnotion/ismp/codec"
	"github.com/colorfulnotion/ismp/common"
	"github.com/colorfulnotion/ismp/ismperrors"
	"github.com/colorfulnotion/ismp/storage"
	"github.com/colorfulnotion/ismp/types"
	"github.com/holiman/uint256"
)

// hostState is one execution over the host storage: a call transaction, or a
// message overlay on top of one. Events are buffered until the execution commits.
type hostState struct {
	h      *Host
	kv     storage.KV
	events []types.Event
}

func (s *hostState) now() uint64 {
	return s.h.timestamp
}

func (s *hostState) emit(ev types.Event) {
	s.events = append(s.events, ev)
}

// child opens a nested execution whose writes land in an overlay.
func (s *hostState) child() (*hostState, *storage.Overlay) {
	overlay := storage.NewOverlay(s.kv)
	return &hostState{h: s.h, kv: overlay}, overlay
}

func (s *hostState) read(key []byte, out codec.Decodable) (bool, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := codec.Decode(raw, out); err != nil {
		return false, fmt.Errorf("corrupt value under %x: %v: %w", key, err, ismperrors.ErrHImplementationSpecific)
	}
	return true, nil
}

func (s *hostState) write(key []byte, v codec.Encodable) error {
	return s.kv.Put(key, codec.Encode(v))
}

func (s *hostState) has(key []byte) (bool, error) {
	_, ok, err := s.kv.Get(key)
	return ok, err
}

func (s *hostState) readUint64(key []byte) (uint64, bool, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("corrupt counter under %x: %w", key, ismperrors.ErrHImplementationSpecific)
	}
	return common.BigEndianToUint64(raw), true, nil
}

func (s *hostState) writeUint64(key []byte, v uint64) error {
	return s.kv.Put(key, common.Uint64ToBigEndian(v))
}

func (s *hostState) readHash(key []byte) (common.Hash, bool, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return common.BytesToHash(raw), true, nil
}

// readU256 returns zero for a missing key.
func (s *hostState) readU256(key []byte) (*uint256.Int, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	v := new(uint256.Int)
	if ok {
		v.SetBytes(raw)
	}
	return v, nil
}

func (s *hostState) writeU256(key []byte, v *uint256.Int) error {
	b := v.Bytes32()
	return s.kv.Put(key, b[:])
}
