package storage

import (
	"bytes"
	"testing"
)

func TestPersistenceStore_BasicOperations(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer ps.Close()

	key := []byte("requests/commitment")
	value := []byte("fee-metadata")

	if err := ps.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := ps.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Expected key to be found")
	}
	if string(got) != string(value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}

	_, found, err = ps.Get([]byte("non-existent"))
	if err != nil {
		t.Fatalf("Get non-existent failed: %v", err)
	}
	if found {
		t.Error("Expected key not to be found")
	}

	if err := ps.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, found, err = ps.Get(key)
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if found {
		t.Error("Expected key to be deleted")
	}
}

func TestPersistenceStore_GetWithPrefix(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer ps.Close()

	prefix := []byte("prefix_")
	keys := [][]byte{
		[]byte("prefix_c"),
		[]byte("prefix_a"),
		[]byte("prefix_b"),
		[]byte("other_key"),
		[]byte("prefiy"),
	}
	for _, key := range keys {
		if err := ps.Put(key, []byte("value-"+string(key))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	results, err := ps.GetWithPrefix(prefix)
	if err != nil {
		t.Fatalf("GetWithPrefix failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"prefix_a", "prefix_b", "prefix_c"} {
		if string(results[i][0]) != want {
			t.Errorf("result %d key %q, want %q", i, results[i][0], want)
		}
		if !bytes.Equal(results[i][1], []byte("value-"+want)) {
			t.Errorf("result %d value %q", i, results[i][1])
		}
	}
}

func TestPersistenceStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ps, err := NewPersistenceStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ps.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := ps.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewPersistenceStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, found, err := reopened.Get([]byte("k"))
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("value lost across restart: %q %v %v", got, found, err)
	}
}
