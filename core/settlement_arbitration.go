package core

import (
	"context"

	"trustescrow/native/arbitration"
	"trustescrow/native/reputation"
)

// Case returns the arbitration case of a disputed escrow.
func (s *Settlement) Case(ctx context.Context, escrowID [32]byte) (*arbitration.Case, error) {
	var out *arbitration.Case
	err := s.view(ctx, "arbitration.get", func(e *engines) error {
		c, err := e.arbitration.Get(escrowID)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// SubmitEvidence attaches an evidence reference from one of the parties.
func (s *Settlement) SubmitEvidence(ctx context.Context, escrowID [32]byte, submitter [20]byte, digest [32]byte, uri string) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.evidence", escrowID, false, func(e *engines) (*arbitration.Case, error) {
		return e.arbitration.SubmitEvidence(escrowID, submitter, digest, uri)
	})
}

// BeginReview hands a pending case to automated analysis.
func (s *Settlement) BeginReview(ctx context.Context, escrowID [32]byte) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.review", escrowID, false, func(e *engines) (*arbitration.Case, error) {
		return e.arbitration.BeginReview(escrowID)
	})
}

// Analyze records a validated verdict on a case under review.
func (s *Settlement) Analyze(ctx context.Context, escrowID [32]byte, in arbitration.VerdictInput) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.analyze", escrowID, false, func(e *engines) (*arbitration.Case, error) {
		return e.arbitration.Analyze(escrowID, in)
	})
}

// AcceptVerdict makes the AI verdict binding and settles the escrow with its
// ratio.
func (s *Settlement) AcceptVerdict(ctx context.Context, escrowID [32]byte) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.accept", escrowID, true, func(e *engines) (*arbitration.Case, error) {
		c, err := e.arbitration.Accept(escrowID)
		if err != nil {
			return nil, err
		}
		return c, settleCase(e, c)
	})
}

// Appeal moves the AI verdict to a DAO vote.
func (s *Settlement) Appeal(ctx context.Context, escrowID [32]byte, caller [20]byte) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.appeal", escrowID, false, func(e *engines) (*arbitration.Case, error) {
		return e.arbitration.Appeal(escrowID, caller)
	})
}

// CastVote adds one DAO vote to the case tally.
func (s *Settlement) CastVote(ctx context.Context, escrowID [32]byte, choice arbitration.Decision) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.vote", escrowID, false, func(e *engines) (*arbitration.Case, error) {
		return e.arbitration.CastVote(escrowID, choice)
	})
}

// FinalizeVote closes the DAO vote when signal reports quorum and settles the
// escrow with the majority ratio.
func (s *Settlement) FinalizeVote(ctx context.Context, escrowID [32]byte, signal arbitration.QuorumSignal) (*arbitration.Case, error) {
	return s.caseOp(ctx, "arbitration.finalize", escrowID, true, func(e *engines) (*arbitration.Case, error) {
		c, err := e.arbitration.Finalize(escrowID, signal)
		if err != nil {
			return nil, err
		}
		return c, settleCase(e, c)
	})
}

// caseOp serialises on the disputed escrow. Operations that settle funds also
// lock both parties' accounts.
func (s *Settlement) caseOp(ctx context.Context, op string, escrowID [32]byte, settles bool, fn func(*engines) (*arbitration.Case, error)) (*arbitration.Case, error) {
	keys := []string{escrowLockKey(escrowID)}
	if settles {
		var err error
		if keys, err = s.escrowKeys(ctx, escrowID); err != nil {
			return nil, err
		}
	}
	var out *arbitration.Case
	err := s.mutate(ctx, op, moduleArbitration, keys, func(e *engines) error {
		c, err := fn(e)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func settleCase(e *engines, c *arbitration.Case) error {
	esc, err := e.escrow.SettleVerdict(c.EscrowID, c.FinalRatio)
	if err != nil {
		return err
	}
	return recordSettlement(e, esc, c.FinalRatio)
}

// RegisterAgent creates a reputation profile for addr.
func (s *Settlement) RegisterAgent(ctx context.Context, addr [20]byte, name string) (*reputation.Profile, error) {
	var out *reputation.Profile
	err := s.mutate(ctx, "reputation.register", "", []string{accountLockKey(addr)}, func(e *engines) error {
		p, err := e.reputation.Register(addr, name)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Profile returns the reputation profile of addr.
func (s *Settlement) Profile(ctx context.Context, addr [20]byte) (*reputation.Profile, error) {
	var out *reputation.Profile
	err := s.view(ctx, "reputation.get", func(e *engines) error {
		p, err := e.reputation.Profile(addr)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}
