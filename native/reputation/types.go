package reputation

import (
	"math/big"
	"sort"
	"strings"
	"unicode/utf8"
)

// Tier is the discrete trust classification derived from a score.
type Tier string

const (
	TierUnverified Tier = "unverified"
	TierBronze     Tier = "bronze"
	TierSilver     Tier = "silver"
	TierGold       Tier = "gold"
	TierPlatinum   Tier = "platinum"
)

// MaxScore is the upper bound of every profile score.
const MaxScore = 100

// MaxNameLength bounds registered display names, in runes.
const MaxNameLength = 64

// TierOf maps a score to its tier. It is a non-decreasing step function.
func TierOf(score uint8) Tier {
	switch {
	case score >= 90:
		return TierPlatinum
	case score >= 75:
		return TierGold
	case score >= 60:
		return TierSilver
	case score >= 40:
		return TierBronze
	default:
		return TierUnverified
	}
}

// Stats aggregates the escrow outcomes observed for an agent.
type Stats struct {
	TotalEscrows       uint64
	SuccessfulReleases uint64
	Refunds            uint64
	DisputesWon        uint64
	DisputesLost       uint64
	TotalVolume        *big.Int
}

func (s Stats) clone() Stats {
	out := s
	out.TotalVolume = big.NewInt(0)
	if s.TotalVolume != nil {
		out.TotalVolume.Set(s.TotalVolume)
	}
	return out
}

// Profile is the reputation record of a single agent address. Score is only
// ever written by recomputation after an event; the tier is derived on
// demand.
type Profile struct {
	Address      [20]byte
	Name         string
	Score        uint8
	Stats        Stats
	Badges       []string
	RegisteredAt int64
	UpdatedAt    int64
}

// Tier returns TierOf(p.Score).
func (p *Profile) Tier() Tier {
	if p == nil {
		return TierUnverified
	}
	return TierOf(p.Score)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Stats = p.Stats.clone()
	if len(p.Badges) > 0 {
		clone.Badges = append([]string(nil), p.Badges...)
	}
	return &clone
}

// HasBadge reports whether the profile carries badge.
func (p *Profile) HasBadge(badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

func normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return trimmed, nil
}

const (
	BadgeFirstRelease = "first-release"
	BadgeVeteran      = "veteran"
	BadgeHighVolume   = "high-volume"
	BadgePeacemaker   = "peacemaker"
	BadgeCleanRecord  = "clean-record"
)

// DeriveBadges computes the badge set implied by stats. highVolume is the
// volume at which the high-volume badge is granted; nil disables it.
func DeriveBadges(stats Stats, highVolume *big.Int) []string {
	var out []string
	if stats.SuccessfulReleases >= 1 {
		out = append(out, BadgeFirstRelease)
	}
	if stats.SuccessfulReleases >= 25 {
		out = append(out, BadgeVeteran)
	}
	if highVolume != nil && highVolume.Sign() > 0 && stats.TotalVolume != nil && stats.TotalVolume.Cmp(highVolume) >= 0 {
		out = append(out, BadgeHighVolume)
	}
	if stats.DisputesWon >= 3 && stats.DisputesLost == 0 {
		out = append(out, BadgePeacemaker)
	}
	if stats.TotalEscrows >= 10 && stats.DisputesLost == 0 && stats.Refunds == 0 {
		out = append(out, BadgeCleanRecord)
	}
	sort.Strings(out)
	return out
}
