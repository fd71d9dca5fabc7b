package reputation

import (
	"errors"
	"fmt"
	"math/big"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var profilePrefix = []byte("reputation/profile/")

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, addr))
}

var errNoStorage = errors.New("reputation: storage unavailable")

// Ledger persists agent profiles.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

// Put stores the profile, overwriting any previous record for the address.
func (l *Ledger) Put(profile *Profile) error {
	if l == nil || l.store == nil {
		return errNoStorage
	}
	if profile == nil {
		return errors.New("reputation: profile required")
	}
	if profile.Address == ([20]byte{}) {
		return errors.New("reputation: address required")
	}
	if profile.Score > MaxScore {
		return fmt.Errorf("reputation: score %d out of range", profile.Score)
	}
	stored := storedProfile{
		Address:            profile.Address,
		Name:               profile.Name,
		Score:              profile.Score,
		TotalEscrows:       profile.Stats.TotalEscrows,
		SuccessfulReleases: profile.Stats.SuccessfulReleases,
		Refunds:            profile.Stats.Refunds,
		DisputesWon:        profile.Stats.DisputesWon,
		DisputesLost:       profile.Stats.DisputesLost,
		TotalVolume:        big.NewInt(0),
		Badges:             append([]string(nil), profile.Badges...),
	}
	if profile.Stats.TotalVolume != nil {
		if profile.Stats.TotalVolume.Sign() < 0 {
			return errors.New("reputation: negative volume")
		}
		stored.TotalVolume.Set(profile.Stats.TotalVolume)
	}
	if profile.RegisteredAt > 0 {
		stored.RegisteredAt = uint64(profile.RegisteredAt)
	}
	if profile.UpdatedAt > 0 {
		stored.UpdatedAt = uint64(profile.UpdatedAt)
	}
	return l.store.KVPut(profileKey(profile.Address), &stored)
}

// Get retrieves the profile of addr.
func (l *Ledger) Get(addr [20]byte) (*Profile, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNoStorage
	}
	var stored storedProfile
	ok, err := l.store.KVGet(profileKey(addr), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	profile := &Profile{
		Address: stored.Address,
		Name:    stored.Name,
		Score:   stored.Score,
		Stats: Stats{
			TotalEscrows:       stored.TotalEscrows,
			SuccessfulReleases: stored.SuccessfulReleases,
			Refunds:            stored.Refunds,
			DisputesWon:        stored.DisputesWon,
			DisputesLost:       stored.DisputesLost,
			TotalVolume:        big.NewInt(0),
		},
		RegisteredAt: int64(stored.RegisteredAt),
		UpdatedAt:    int64(stored.UpdatedAt),
	}
	if stored.TotalVolume != nil {
		profile.Stats.TotalVolume.Set(stored.TotalVolume)
	}
	if len(stored.Badges) > 0 {
		profile.Badges = append([]string(nil), stored.Badges...)
	}
	return profile, true, nil
}

type storedProfile struct {
	Address            [20]byte
	Name               string
	Score              uint8
	TotalEscrows       uint64
	SuccessfulReleases uint64
	Refunds            uint64
	DisputesWon        uint64
	DisputesLost       uint64
	TotalVolume        *big.Int
	Badges             []string
	RegisteredAt       uint64
	UpdatedAt          uint64
}
