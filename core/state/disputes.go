package state

import (
	"fmt"

	"trustescrow/native/arbitration"
)

type storedEvidence struct {
	Party       uint8
	Submitter   [20]byte
	Digest      [32]byte
	URI         string
	SubmittedAt uint64
}

type storedTimelineEntry struct {
	Status uint8
	At     uint64
	Note   string
}

type storedCase struct {
	EscrowID           [32]byte
	Claimant           [20]byte
	Respondent         [20]byte
	Status             uint8
	ClaimantEvidence   []storedEvidence
	RespondentEvidence []storedEvidence
	HasVerdict         bool
	Decision           uint8
	ConfidenceBps      uint16
	Reasoning          string
	SplitRatio         uint8
	VerdictIssuedAt    uint64
	TallyRelease       uint64
	TallyRefund        uint64
	TallySplit         uint64
	FinalRatio         uint8
	Resolution         string
	OpenedAt           uint64
	ResolvedAt         uint64
	Timeline           []storedTimelineEntry
}

func encodeEvidence(list []arbitration.Evidence) []storedEvidence {
	out := make([]storedEvidence, 0, len(list))
	for _, ev := range list {
		out = append(out, storedEvidence{
			Party:       uint8(ev.Party),
			Submitter:   ev.Submitter,
			Digest:      ev.Digest,
			URI:         ev.URI,
			SubmittedAt: toUnix(ev.SubmittedAt),
		})
	}
	return out
}

func decodeEvidence(list []storedEvidence) []arbitration.Evidence {
	if len(list) == 0 {
		return nil
	}
	out := make([]arbitration.Evidence, 0, len(list))
	for _, ev := range list {
		out = append(out, arbitration.Evidence{
			Party:       arbitration.Party(ev.Party),
			Submitter:   ev.Submitter,
			Digest:      ev.Digest,
			URI:         ev.URI,
			SubmittedAt: fromUnix(ev.SubmittedAt),
		})
	}
	return out
}

// DisputePut stores the arbitration case keyed by its escrow id.
func (tx *Tx) DisputePut(c *arbitration.Case) error {
	if c == nil {
		return fmt.Errorf("nil dispute case")
	}
	stored := &storedCase{
		EscrowID:           c.EscrowID,
		Claimant:           c.Claimant,
		Respondent:         c.Respondent,
		Status:             uint8(c.Status),
		ClaimantEvidence:   encodeEvidence(c.ClaimantEvidence),
		RespondentEvidence: encodeEvidence(c.RespondentEvidence),
		TallyRelease:       c.Tally.Release,
		TallyRefund:        c.Tally.Refund,
		TallySplit:         c.Tally.Split,
		FinalRatio:         c.FinalRatio,
		Resolution:         string(c.Resolution),
		OpenedAt:           toUnix(c.OpenedAt),
		ResolvedAt:         toUnix(c.ResolvedAt),
	}
	if c.Verdict != nil {
		stored.HasVerdict = true
		stored.Decision = uint8(c.Verdict.Decision)
		stored.ConfidenceBps = c.Verdict.ConfidenceBps
		stored.Reasoning = c.Verdict.Reasoning
		stored.SplitRatio = c.Verdict.SplitRatio
		stored.VerdictIssuedAt = toUnix(c.Verdict.IssuedAt)
	}
	for _, entry := range c.Timeline {
		stored.Timeline = append(stored.Timeline, storedTimelineEntry{
			Status: uint8(entry.Status),
			At:     toUnix(entry.At),
			Note:   entry.Note,
		})
	}
	return tx.KVPut(DisputeKey(c.EscrowID), stored)
}

// DisputeGet loads the arbitration case of an escrow.
func (tx *Tx) DisputeGet(id [32]byte) (*arbitration.Case, bool, error) {
	var stored storedCase
	ok, err := tx.KVGet(DisputeKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	c := &arbitration.Case{
		EscrowID:           stored.EscrowID,
		Claimant:           stored.Claimant,
		Respondent:         stored.Respondent,
		Status:             arbitration.Status(stored.Status),
		ClaimantEvidence:   decodeEvidence(stored.ClaimantEvidence),
		RespondentEvidence: decodeEvidence(stored.RespondentEvidence),
		Tally: arbitration.Tally{
			Release: stored.TallyRelease,
			Refund:  stored.TallyRefund,
			Split:   stored.TallySplit,
		},
		FinalRatio: stored.FinalRatio,
		Resolution: arbitration.Resolution(stored.Resolution),
		OpenedAt:   fromUnix(stored.OpenedAt),
		ResolvedAt: fromUnix(stored.ResolvedAt),
	}
	if stored.HasVerdict {
		c.Verdict = &arbitration.Verdict{
			Decision:      arbitration.Decision(stored.Decision),
			ConfidenceBps: stored.ConfidenceBps,
			Reasoning:     stored.Reasoning,
			SplitRatio:    stored.SplitRatio,
			IssuedAt:      fromUnix(stored.VerdictIssuedAt),
		}
	}
	for _, entry := range stored.Timeline {
		c.Timeline = append(c.Timeline, arbitration.TimelineEntry{
			Status: arbitration.Status(entry.Status),
			At:     fromUnix(entry.At),
			Note:   entry.Note,
		})
	}
	return c, true, nil
}
