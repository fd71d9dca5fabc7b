package reputation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

type memoryStore struct {
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func TestLedgerPutAndGet(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store)

	var subject [20]byte
	copy(subject[:], []byte("subject-address-123"))

	profile := &Profile{
		Address: subject,
		Name:    "courier",
		Score:   42,
		Stats: Stats{
			TotalEscrows:       4,
			SuccessfulReleases: 3,
			Refunds:            1,
			DisputesWon:        1,
			TotalVolume:        big.NewInt(12_345),
		},
		Badges:       []string{BadgeFirstRelease},
		RegisteredAt: 100,
		UpdatedAt:    200,
	}
	if err := ledger.Put(profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	stored, ok, err := ledger.Get(subject)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !ok {
		t.Fatalf("expected profile to exist")
	}
	if stored.Name != "courier" || stored.Score != 42 {
		t.Fatalf("unexpected profile %+v", stored)
	}
	if stored.Stats.TotalVolume.Cmp(big.NewInt(12_345)) != 0 || stored.Stats.Refunds != 1 {
		t.Fatalf("unexpected stats %+v", stored.Stats)
	}
	if !stored.HasBadge(BadgeFirstRelease) {
		t.Fatalf("badge lost in round trip")
	}
	if stored.RegisteredAt != 100 || stored.UpdatedAt != 200 {
		t.Fatalf("unexpected timestamps %d/%d", stored.RegisteredAt, stored.UpdatedAt)
	}
}

func TestLedgerPutInvalidProfile(t *testing.T) {
	ledger := NewLedger(newMemoryStore())
	if err := ledger.Put(&Profile{}); err == nil {
		t.Fatalf("expected error for missing address")
	}
	if err := ledger.Put(&Profile{Address: [20]byte{1}, Score: 101}); err == nil {
		t.Fatalf("expected error for out of range score")
	}
}
