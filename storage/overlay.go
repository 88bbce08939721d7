package storage

import (
	"bytes"

	"golang.org/x/exp/slices"
)

// Overlay buffers writes on top of a parent KV until Commit. The host runs every
// message of a batch in its own overlay so a failed message leaves no trace.
type Overlay struct {
	parent KV
	// nil value marks a deletion
	writes map[string][]byte
}

func NewOverlay(parent KV) *Overlay {
	return &Overlay{parent: parent, writes: make(map[string][]byte)}
}

func (o *Overlay) Get(key []byte) ([]byte, bool, error) {
	if v, ok := o.writes[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return bytes.Clone(v), true, nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	o.writes[string(key)] = v
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	o.writes[string(key)] = nil
	return nil
}

func (o *Overlay) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	base, err := o.parent.GetWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(base))
	for _, kv := range base {
		merged[string(kv[0])] = kv[1]
	}
	for k, v := range o.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	keys := sortedKeys(merged)
	results := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		results = append(results, [2][]byte{[]byte(k), bytes.Clone(merged[k])})
	}
	return results, nil
}

// Len is the number of buffered writes.
func (o *Overlay) Len() int {
	return len(o.writes)
}

// Commit applies the buffered writes to the parent in key order and clears the buffer.
func (o *Overlay) Commit() error {
	keys := sortedKeys(o.writes)
	for _, k := range keys {
		var err error
		if v := o.writes[k]; v == nil {
			err = o.parent.Delete([]byte(k))
		} else {
			err = o.parent.Put([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	o.Discard()
	return nil
}

// Discard drops the buffered writes.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
