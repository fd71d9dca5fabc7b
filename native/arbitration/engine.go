package arbitration

import (
	"strings"
	"time"

	"trustescrow/core/events"
	"trustescrow/core/types"
	"trustescrow/native/common"
)

const (
	// MaxEvidencePerParty bounds the evidence list of each side.
	MaxEvidencePerParty = 16
	// MaxReasoningLength bounds the stored verdict reasoning, in bytes.
	MaxReasoningLength = 4096
	maxURILength       = 512
)

type engineState interface {
	DisputeGet(id [32]byte) (*Case, bool, error)
	DisputePut(*Case) error
}

// Engine drives dispute cases from evidence collection to a binding payee
// ratio. Verdicts and quorum decisions are supplied by callers; the engine
// validates and records them.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

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
	e.emitter.Emit(arbitrationEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) load(id [32]byte) (*Case, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok, err := e.state.DisputeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownDispute
	}
	return c, nil
}

func (e *Engine) transition(c *Case, to Status, note string) {
	c.Status = to
	c.Timeline = append(c.Timeline, TimelineEntry{Status: to, At: e.now(), Note: note})
}

func (e *Engine) requireStatus(c *Case, allowed ...Status) error {
	for _, s := range allowed {
		if c.Status == s {
			return nil
		}
	}
	return common.Wrapf(ErrInvalidTransition, "case is %s", c.Status)
}

// Get returns a copy of the case for escrowID.
func (e *Engine) Get(escrowID [32]byte) (*Case, error) {
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Open starts a pending case for a disputed escrow.
func (e *Engine) Open(escrowID [32]byte, claimant, respondent [20]byte) (*Case, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if claimant == ([20]byte{}) || respondent == ([20]byte{}) {
		return nil, common.ErrInvalidAddress
	}
	if _, exists, err := e.state.DisputeGet(escrowID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrCaseExists
	}
	c := &Case{
		EscrowID:   escrowID,
		Claimant:   claimant,
		Respondent: respondent,
		OpenedAt:   e.now(),
	}
	e.transition(c, StatusPending, "opened")
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewOpenedEvent(c))
	return c.Clone(), nil
}

// SubmitEvidence attaches evidence from one of the parties. Evidence is
// accepted until the case is resolved.
func (e *Engine) SubmitEvidence(escrowID [32]byte, submitter [20]byte, digest [32]byte, uri string) (*Case, error) {
	if digest == ([32]byte{}) {
		return nil, ErrInvalidEvidence
	}
	uri = strings.TrimSpace(uri)
	if len(uri) > maxURILength {
		return nil, common.Wrapf(ErrInvalidEvidence, "uri exceeds %d bytes", maxURILength)
	}
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusResolved {
		return nil, common.Wrapf(ErrInvalidTransition, "case is %s", c.Status)
	}
	ev := Evidence{Submitter: submitter, Digest: digest, URI: uri, SubmittedAt: e.now()}
	switch submitter {
	case c.Claimant:
		if len(c.ClaimantEvidence) >= MaxEvidencePerParty {
			return nil, ErrTooMuchEvidence
		}
		ev.Party = PartyClaimant
		c.ClaimantEvidence = append(c.ClaimantEvidence, ev)
	case c.Respondent:
		if len(c.RespondentEvidence) >= MaxEvidencePerParty {
			return nil, ErrTooMuchEvidence
		}
		ev.Party = PartyRespondent
		c.RespondentEvidence = append(c.RespondentEvidence, ev)
	default:
		return nil, ErrUnauthorized
	}
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewEvidenceEvent(c, ev))
	return c.Clone(), nil
}

// BeginReview marks the external analysis as in flight. The analysis itself
// runs outside the engine; its result arrives through Analyze.
func (e *Engine) BeginReview(escrowID [32]byte) (*Case, error) {
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusPending); err != nil {
		return nil, err
	}
	e.transition(c, StatusAIReview, "review started")
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewReviewStartedEvent(c))
	return c.Clone(), nil
}

// ValidateVerdict checks the shape of an external verdict and returns its
// stored form.
func ValidateVerdict(in VerdictInput) (*Verdict, error) {
	if !in.Decision.Valid() {
		return nil, common.Wrapf(ErrInvalidVerdict, "unknown decision %d", in.Decision)
	}
	bps, err := validateConfidence(in.Confidence)
	if err != nil {
		return nil, common.Wrapf(ErrInvalidVerdict, "confidence %v outside [0,1]", in.Confidence)
	}
	if len(in.Reasoning) > MaxReasoningLength {
		return nil, common.Wrapf(ErrInvalidVerdict, "reasoning exceeds %d bytes", MaxReasoningLength)
	}
	ratio := in.Decision.PayeeRatio()
	if in.Ratio != nil {
		switch {
		case *in.Ratio > 100:
			return nil, common.Wrapf(ErrInvalidVerdict, "ratio %d", *in.Ratio)
		case in.Decision == DecisionSplit:
			ratio = *in.Ratio
		case *in.Ratio != ratio:
			return nil, common.Wrapf(ErrInvalidVerdict, "ratio %d contradicts %s", *in.Ratio, in.Decision)
		}
	}
	return &Verdict{
		Decision:      in.Decision,
		ConfidenceBps: bps,
		Reasoning:     in.Reasoning,
		SplitRatio:    ratio,
	}, nil
}

// Analyze records an external verdict. A NEEDS_MORE_INFO verdict keeps the
// case under review; any other verdict moves it to ai_verdict. Malformed
// input leaves the case unchanged.
func (e *Engine) Analyze(escrowID [32]byte, in VerdictInput) (*Case, error) {
	verdict, err := ValidateVerdict(in)
	if err != nil {
		return nil, err
	}
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusPending, StatusAIReview); err != nil {
		return nil, err
	}
	verdict.IssuedAt = e.now()
	c.Verdict = verdict
	if verdict.Decision == DecisionNeedsMoreInfo {
		e.transition(c, StatusAIReview, "more information requested")
	} else {
		e.transition(c, StatusAIVerdict, verdict.Decision.String())
	}
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewVerdictEvent(c))
	return c.Clone(), nil
}

// Accept makes the AI verdict binding without appeal.
func (e *Engine) Accept(escrowID [32]byte) (*Case, error) {
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusAIVerdict); err != nil {
		return nil, err
	}
	return e.resolve(c, c.Verdict.SplitRatio, ResolutionAI)
}

// Appeal moves an AI verdict to a DAO vote. Only the parties may appeal. The
// tally starts from zero.
func (e *Engine) Appeal(escrowID [32]byte, caller [20]byte) (*Case, error) {
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusAIVerdict); err != nil {
		return nil, err
	}
	if caller != c.Claimant && caller != c.Respondent {
		return nil, ErrUnauthorized
	}
	e.transition(c, StatusAppealed, "appealed")
	c.Tally = Tally{}
	e.transition(c, StatusDAOVote, "vote opened")
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewAppealedEvent(c, caller))
	return c.Clone(), nil
}

// CastVote adds one vote to the tally. Voter identity is the caller's
// concern.
func (e *Engine) CastVote(escrowID [32]byte, choice Decision) (*Case, error) {
	if !choice.Votable() {
		return nil, ErrInvalidVote
	}
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusDAOVote); err != nil {
		return nil, err
	}
	switch choice {
	case DecisionReleaseToPayee:
		c.Tally.Release++
	case DecisionRefundToPayer:
		c.Tally.Refund++
	case DecisionSplit:
		c.Tally.Split++
	}
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewVoteEvent(c, choice))
	return c.Clone(), nil
}

// Finalize closes the DAO vote once the integrating system signals quorum.
// The majority choice becomes the final ratio; ties resolve to an even split.
func (e *Engine) Finalize(escrowID [32]byte, signal QuorumSignal) (*Case, error) {
	c, err := e.load(escrowID)
	if err != nil {
		return nil, err
	}
	if err := e.requireStatus(c, StatusDAOVote); err != nil {
		return nil, err
	}
	if !signal.Reached {
		return nil, ErrQuorumNotReached
	}
	return e.resolve(c, c.Tally.Winner().PayeeRatio(), ResolutionDAO)
}

// ResolveManually records an arbiter's direct resolution. It is a no-op for
// escrows without a case.
func (e *Engine) ResolveManually(escrowID [32]byte, ratio uint8) (*Case, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok, err := e.state.DisputeGet(escrowID)
	if err != nil || !ok {
		return nil, err
	}
	if c.Status == StatusResolved {
		return nil, common.Wrapf(ErrInvalidTransition, "case is %s", c.Status)
	}
	if ratio > 100 {
		return nil, common.Wrapf(ErrInvalidVerdict, "ratio %d", ratio)
	}
	return e.resolve(c, ratio, ResolutionArbiter)
}

func (e *Engine) resolve(c *Case, ratio uint8, by Resolution) (*Case, error) {
	c.FinalRatio = ratio
	c.Resolution = by
	c.ResolvedAt = e.now()
	e.transition(c, StatusResolved, string(by))
	if err := e.state.DisputePut(c); err != nil {
		return nil, err
	}
	e.emit(NewResolvedEvent(c))
	return c.Clone(), nil
}
