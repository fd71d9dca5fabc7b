package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"trustescrow/storage"
)

// ErrTxClosed is returned when a transaction is used after Commit or Discard.
var ErrTxClosed = errors.New("state: transaction closed")

// Manager provides transactional access to the settlement records held in the
// underlying key-value store. Writes are staged in a Tx and become visible in
// one atomic batch on Commit.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction. Reads observe committed state plus the
// transaction's own staged writes.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string]stagedWrite)}
}

// View runs fn against a transaction that is always discarded.
func (m *Manager) View(fn func(*Tx) error) error {
	tx := m.Begin()
	defer tx.Discard()
	return fn(tx)
}

// Update runs fn and commits its writes when fn returns nil. Any error
// discards every staged write.
func (m *Manager) Update(fn func(*Tx) error) error {
	tx := m.Begin()
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

type stagedWrite struct {
	value   []byte
	deleted bool
}

// Tx is a write overlay over the committed store.
type Tx struct {
	db     storage.Database
	writes map[string]stagedWrite
	closed bool
}

func (tx *Tx) get(hashed []byte) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	if w, ok := tx.writes[string(hashed)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	data, err := tx.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the store.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if tx.closed {
		return ErrTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(kvKey(key))] = stagedWrite{value: encoded}
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return false, err
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
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if tx.closed {
		return ErrTxClosed
	}
	tx.writes[string(kvKey(key))] = stagedWrite{deleted: true}
	return nil
}

// Pending reports the number of staged writes.
func (tx *Tx) Pending() int { return len(tx.writes) }

// Commit applies every staged write in a single batch.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	batch := tx.db.NewBatch()
	for key, w := range tx.writes {
		if w.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), w.value)
	}
	tx.writes = nil
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every staged write. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
}
