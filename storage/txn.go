package storage

import (
	"fmt"

	"github.com/colorfulnotion/ismp/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Txn is an all-or-nothing unit of work on a PersistenceStore. Reads observe the
// transaction's own writes.
type Txn struct {
	tr     *leveldb.Transaction
	writes int
	done   bool
}

func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	data, err := t.tr.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("txn Get %x: %w", key, err)
	}
	return data, true, nil
}

func (t *Txn) Put(key []byte, value []byte) error {
	t.writes++
	return t.tr.Put(key, value, nil)
}

func (t *Txn) Delete(key []byte) error {
	t.writes++
	return t.tr.Delete(key, nil)
}

func (t *Txn) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	iter := t.tr.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	results := collect(iter.Next, iter.Key, iter.Value)
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("txn GetWithPrefix %x: %w", prefix, err)
	}
	return results, nil
}

// Commit makes every write of the transaction durable at once.
func (t *Txn) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	if err := t.tr.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	log.Debug(log.StorageModule, "txn committed", "writes", t.writes)
	return nil
}

// Discard drops every write. It is a no-op after Commit.
func (t *Txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Discard()
	log.Debug(log.StorageModule, "txn discarded", "writes", t.writes)
}
