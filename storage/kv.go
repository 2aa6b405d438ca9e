package storage

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// KV layers RLP encoded, keccak-addressed values over a Database. Writes are
// staged in memory until Commit flushes them in a single batch, so a caller
// that fails halfway through a state transition can Discard and leave the
// backing store untouched.
type KV struct {
	mu      sync.Mutex
	db      Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewKV wraps the provided database.
func NewKV(db Database) *KV {
	return &KV{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stages the RLP encoding of value under key.
func (kv *KV) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	hashed := string(kvKey(key))
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.pending[hashed] = encoded
	delete(kv.deleted, hashed)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. Staged writes are visible before they are
// committed. The boolean return value indicates whether the key existed.
func (kv *KV) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	kv.mu.Lock()
	data, staged := kv.pending[string(hashed)]
	_, removed := kv.deleted[string(hashed)]
	kv.mu.Unlock()
	if removed {
		return false, nil
	}
	if !staged {
		var err error
		data, err = kv.db.Get(hashed)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete stages the removal of key.
func (kv *KV) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := string(kvKey(key))
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.pending, hashed)
	kv.deleted[hashed] = struct{}{}
	return nil
}

// Commit writes every staged change to the backing database atomically.
func (kv *KV) Commit() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if len(kv.pending) == 0 && len(kv.deleted) == 0 {
		return nil
	}
	batch := kv.db.NewBatch()
	for key, value := range kv.pending {
		batch.Put([]byte(key), value)
	}
	for key := range kv.deleted {
		batch.Delete([]byte(key))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("kv: commit %d writes: %w", batch.Len(), err)
	}
	kv.reset()
	return nil
}

// Discard drops every staged change.
func (kv *KV) Discard() {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.reset()
}

// Pending reports how many keys have staged changes.
func (kv *KV) Pending() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.pending) + len(kv.deleted)
}

func (kv *KV) reset() {
	kv.pending = make(map[string][]byte)
	kv.deleted = make(map[string]struct{})
}
