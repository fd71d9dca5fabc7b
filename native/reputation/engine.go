package reputation

import (
	"math/big"
	"time"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
)

var (
	ErrAlreadyRegistered = common.NewError(common.KindStateConflict, "AlreadyRegistered", "reputation: address already registered")
	ErrUnknownAgent      = common.NewError(common.KindNotFound, "UnknownAgent", "reputation: unknown agent")
	ErrNameTooLong       = common.NewError(common.KindValidation, "InvalidName", "reputation: name too long")
)

const (
	reasonReleased     = "released"
	reasonRefunded     = "refunded"
	reasonDisputeWon   = "dispute_won"
	reasonDisputeLost  = "dispute_lost"
	defaultVolumeUnits = 100
)

// Engine applies escrow outcomes to agent profiles. Scores are recomputed
// from stats by the configured policy after every event and are never set
// directly.
type Engine struct {
	ledger     *Ledger
	policy     ScorePolicy
	highVolume *big.Int
	emitter    events.Emitter
	nowFn      func() int64
}

// NewEngine constructs an engine using the default scoring policy.
func NewEngine() *Engine {
	policy := DefaultPolicy()
	return &Engine{
		policy:     policy,
		highVolume: new(big.Int).Mul(policy.VolumeUnit, big.NewInt(defaultVolumeUnits)),
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the storage backend.
func (e *Engine) SetState(store storage) { e.ledger = NewLedger(store) }

// SetPolicy replaces the scoring policy. Passing nil restores the default.
func (e *Engine) SetPolicy(policy ScorePolicy) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	e.policy = policy
	if weighted, ok := policy.(WeightedPolicy); ok && weighted.VolumeUnit != nil {
		e.highVolume = new(big.Int).Mul(weighted.VolumeUnit, big.NewInt(defaultVolumeUnits))
	}
}

// SetNowFunc overrides the wall clock used for timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(reputationEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Register creates a zero-score profile for addr.
func (e *Engine) Register(addr [20]byte, name string) (*Profile, error) {
	if addr == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	normalized, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	_, exists, err := e.ledger.Get(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}
	now := e.now()
	profile := &Profile{
		Address:      addr,
		Name:         normalized,
		Stats:        Stats{TotalVolume: big.NewInt(0)},
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := e.ledger.Put(profile); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(profile))
	return profile.Clone(), nil
}

// Profile returns the stored profile of addr.
func (e *Engine) Profile(addr [20]byte) (*Profile, error) {
	profile, ok, err := e.ledger.Get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAgent
	}
	return profile, nil
}

// OnEscrowReleased records a successful release of amount involving addr.
func (e *Engine) OnEscrowReleased(addr [20]byte, amount *big.Int) (*Profile, error) {
	return e.apply(addr, reasonReleased, func(s *Stats) {
		s.TotalEscrows++
		s.SuccessfulReleases++
		if amount != nil && amount.Sign() > 0 {
			s.TotalVolume = new(big.Int).Add(s.TotalVolume, amount)
		}
	})
}

// OnEscrowRefunded records an escrow involving addr that ended in a refund.
func (e *Engine) OnEscrowRefunded(addr [20]byte) (*Profile, error) {
	return e.apply(addr, reasonRefunded, func(s *Stats) {
		s.TotalEscrows++
		s.Refunds++
	})
}

// OnDisputeResolved records the outcome of a dispute for addr.
func (e *Engine) OnDisputeResolved(addr [20]byte, won bool) (*Profile, error) {
	reason := reasonDisputeLost
	if won {
		reason = reasonDisputeWon
	}
	return e.apply(addr, reason, func(s *Stats) {
		if won {
			s.DisputesWon++
		} else {
			s.DisputesLost++
		}
	})
}

// apply loads (or implicitly creates) the profile, mutates its stats and
// recomputes score and badges.
func (e *Engine) apply(addr [20]byte, reason string, update func(*Stats)) (*Profile, error) {
	if addr == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	now := e.now()
	profile, ok, err := e.ledger.Get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		profile = &Profile{Address: addr, Stats: Stats{TotalVolume: big.NewInt(0)}, RegisteredAt: now}
	}
	if profile.Stats.TotalVolume == nil {
		profile.Stats.TotalVolume = big.NewInt(0)
	}
	previous := profile.Score
	update(&profile.Stats)
	profile.Score = e.policy.Score(profile.Stats)
	if profile.Score > MaxScore {
		profile.Score = MaxScore
	}
	profile.Badges = DeriveBadges(profile.Stats, e.highVolume)
	profile.UpdatedAt = now
	if err := e.ledger.Put(profile); err != nil {
		return nil, err
	}
	e.emit(NewScoreUpdatedEvent(profile, previous, reason))
	return profile.Clone(), nil
}
