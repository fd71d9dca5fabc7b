package arbitration

import (
	"fmt"
	"math"
	"strings"
)

// Status tracks a dispute case through review, appeal and resolution.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusAIReview
	StatusAIVerdict
	StatusAppealed
	StatusDAOVote
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAIReview:
		return "ai_review"
	case StatusAIVerdict:
		return "ai_verdict"
	case StatusAppealed:
		return "appealed"
	case StatusDAOVote:
		return "dao_vote"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Decision is the closed set of verdict outcomes accepted at the boundary.
type Decision uint8

const (
	DecisionReleaseToPayee Decision = iota + 1
	DecisionRefundToPayer
	DecisionSplit
	DecisionNeedsMoreInfo
)

func (d Decision) String() string {
	switch d {
	case DecisionReleaseToPayee:
		return "RELEASE_TO_PAYEE"
	case DecisionRefundToPayer:
		return "REFUND_TO_PAYER"
	case DecisionSplit:
		return "SPLIT_50_50"
	case DecisionNeedsMoreInfo:
		return "NEEDS_MORE_INFO"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d >= DecisionReleaseToPayee && d <= DecisionNeedsMoreInfo
}

// Votable reports whether d may be cast as a DAO vote.
func (d Decision) Votable() bool {
	return d == DecisionReleaseToPayee || d == DecisionRefundToPayer || d == DecisionSplit
}

// PayeeRatio maps a decision to the payee percentage it implies.
func (d Decision) PayeeRatio() uint8 {
	switch d {
	case DecisionReleaseToPayee:
		return 100
	case DecisionRefundToPayer:
		return 0
	default:
		return 50
	}
}

// ParseDecision accepts the canonical enum names and the short forms
// release, refund, split and needs_more_info. Anything else is rejected.
func ParseDecision(v string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "RELEASE_TO_PAYEE", "RELEASE":
		return DecisionReleaseToPayee, nil
	case "REFUND_TO_PAYER", "REFUND":
		return DecisionRefundToPayer, nil
	case "SPLIT_50_50", "SPLIT":
		return DecisionSplit, nil
	case "NEEDS_MORE_INFO":
		return DecisionNeedsMoreInfo, nil
	default:
		return 0, ErrInvalidVerdict
	}
}

// Party identifies which side of the dispute submitted evidence.
type Party uint8

const (
	PartyClaimant Party = iota + 1
	PartyRespondent
)

func (p Party) String() string {
	if p == PartyClaimant {
		return "claimant"
	}
	if p == PartyRespondent {
		return "respondent"
	}
	return "unknown"
}

// Evidence is a reference to material submitted by a party. The engine only
// stores the digest and locator; content lives elsewhere.
type Evidence struct {
	Party       Party
	Submitter   [20]byte
	Digest      [32]byte
	URI         string
	SubmittedAt int64
}

// VerdictInput is the structured output of the external analysis.
type VerdictInput struct {
	Decision   Decision
	Confidence float64
	Reasoning  string
	// Ratio optionally states a custom payee percentage for split decisions.
	Ratio *uint8
}

// Verdict is the validated form stored on the case.
type Verdict struct {
	Decision      Decision
	ConfidenceBps uint16
	Reasoning     string
	SplitRatio    uint8
	IssuedAt      int64
}

// Confidence returns the stored confidence as a fraction.
func (v Verdict) Confidence() float64 {
	return float64(v.ConfidenceBps) / 10_000
}

// Tally counts DAO votes per outcome.
type Tally struct {
	Release uint64
	Refund  uint64
	Split   uint64
}

// Winner returns the majority decision. A tie for the top count resolves to
// DecisionSplit.
func (t Tally) Winner() Decision {
	switch {
	case t.Release > t.Refund && t.Release > t.Split:
		return DecisionReleaseToPayee
	case t.Refund > t.Release && t.Refund > t.Split:
		return DecisionRefundToPayer
	default:
		return DecisionSplit
	}
}

// Total returns the number of votes cast.
func (t Tally) Total() uint64 { return t.Release + t.Refund + t.Split }

// QuorumSignal is supplied by the integrating system when the DAO vote may be
// closed.
type QuorumSignal struct {
	Reached bool
	Reason  string
}

// TimelineEntry records a status transition of a case.
type TimelineEntry struct {
	Status Status
	At     int64
	Note   string
}

// Resolution names the mechanism that produced the final ratio.
type Resolution string

const (
	ResolutionNone    Resolution = ""
	ResolutionAI      Resolution = "ai"
	ResolutionDAO     Resolution = "dao"
	ResolutionArbiter Resolution = "arbiter"
)

// Case is the arbitration record of a disputed escrow. It is keyed by the
// escrow id.
type Case struct {
	EscrowID           [32]byte
	Claimant           [20]byte
	Respondent         [20]byte
	Status             Status
	ClaimantEvidence   []Evidence
	RespondentEvidence []Evidence
	Verdict            *Verdict
	Tally              Tally
	FinalRatio         uint8
	Resolution         Resolution
	OpenedAt           int64
	ResolvedAt         int64
	Timeline           []TimelineEntry
}

// Clone returns a deep copy of the case.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ClaimantEvidence = append([]Evidence(nil), c.ClaimantEvidence...)
	clone.RespondentEvidence = append([]Evidence(nil), c.RespondentEvidence...)
	clone.Timeline = append([]TimelineEntry(nil), c.Timeline...)
	if c.Verdict != nil {
		v := *c.Verdict
		clone.Verdict = &v
	}
	return &clone
}

// PayerRatio is the complement of FinalRatio.
func (c *Case) PayerRatio() uint8 { return 100 - c.FinalRatio }

func validateConfidence(v float64) (uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return 0, ErrInvalidVerdict
	}
	return uint16(math.Round(v * 10_000)), nil
}
