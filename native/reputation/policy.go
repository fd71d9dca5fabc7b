package reputation

import "math/big"

// ScorePolicy turns observed stats into a score. Implementations must return
// values within [0, MaxScore] and must not decrease when only
// SuccessfulReleases, TotalEscrows and TotalVolume grow.
type ScorePolicy interface {
	Score(stats Stats) uint8
}

// WeightedPolicy is the default linear scoring rule. Volume contributes one
// point per VolumeUnit, capped at MaxVolumePoints.
type WeightedPolicy struct {
	ReleaseWeight      int64
	DisputeWonWeight   int64
	DisputeLostPenalty int64
	RefundPenalty      int64
	VolumeUnit         *big.Int
	MaxVolumePoints    int64
}

// DefaultPolicy returns the weights used when no configuration overrides
// them.
func DefaultPolicy() WeightedPolicy {
	return WeightedPolicy{
		ReleaseWeight:      5,
		DisputeWonWeight:   3,
		DisputeLostPenalty: 10,
		RefundPenalty:      2,
		VolumeUnit:         big.NewInt(1_000),
		MaxVolumePoints:    20,
	}
}

func (p WeightedPolicy) Score(stats Stats) uint8 {
	raw := saturatingMul(stats.SuccessfulReleases, p.ReleaseWeight)
	raw += saturatingMul(stats.DisputesWon, p.DisputeWonWeight)
	raw += p.volumePoints(stats.TotalVolume)
	raw -= saturatingMul(stats.DisputesLost, p.DisputeLostPenalty)
	raw -= saturatingMul(stats.Refunds, p.RefundPenalty)
	if raw < 0 {
		return 0
	}
	if raw > MaxScore {
		return MaxScore
	}
	return uint8(raw)
}

func (p WeightedPolicy) volumePoints(volume *big.Int) int64 {
	if volume == nil || p.VolumeUnit == nil || p.VolumeUnit.Sign() <= 0 || p.MaxVolumePoints <= 0 {
		return 0
	}
	points := new(big.Int).Quo(volume, p.VolumeUnit)
	if points.Cmp(big.NewInt(p.MaxVolumePoints)) > 0 {
		return p.MaxVolumePoints
	}
	return points.Int64()
}

// saturatingMul bounds a single term so the weighted sum cannot overflow.
func saturatingMul(count uint64, weight int64) int64 {
	if weight <= 0 || count == 0 {
		return 0
	}
	if count > 1_000_000 {
		count = 1_000_000
	}
	out := int64(count) * weight
	if out > 1<<40 {
		return 1 << 40
	}
	return out
}
