package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustescrow/core/events"
	"trustescrow/core/state"
	"trustescrow/native/arbitration"
	"trustescrow/native/chain"
	"trustescrow/native/common"
	"trustescrow/native/escrow"
	"trustescrow/native/reputation"
	"trustescrow/native/stream"
	"trustescrow/observability"
	telemetry "trustescrow/observability/otel"
)

const (
	moduleEscrow      = "escrow"
	moduleStream      = "stream"
	moduleChain       = "chain"
	moduleArbitration = "arbitration"
)

// Settlement is the single entry point for callers. It binds the engines to a
// staged transaction per operation, serialises mutations per record and
// publishes activity after commit.
type Settlement struct {
	state    *state.Manager
	locks    *keyedLocks
	sink     ActivitySink
	pauses   common.PauseView
	policy   reputation.ScorePolicy
	maxDepth int
	logger   *slog.Logger
	tracer   trace.Tracer
	nowFn    func() int64
}

// Option customises a Settlement.
type Option func(*Settlement)

// WithActivitySink delivers committed activity to sink.
func WithActivitySink(sink ActivitySink) Option {
	return func(s *Settlement) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithPauses rejects mutations of paused modules.
func WithPauses(p common.PauseView) Option {
	return func(s *Settlement) { s.pauses = p }
}

// WithScorePolicy replaces the default reputation policy.
func WithScorePolicy(policy reputation.ScorePolicy) Option {
	return func(s *Settlement) { s.policy = policy }
}

// WithMaxChainDepth bounds dependency chains.
func WithMaxChainDepth(depth int) Option {
	return func(s *Settlement) { s.maxDepth = depth }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settlement) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNowFunc overrides the clock used by every engine.
func WithNowFunc(now func() int64) Option {
	return func(s *Settlement) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewSettlement constructs the façade over mgr.
func NewSettlement(mgr *state.Manager, opts ...Option) *Settlement {
	s := &Settlement{
		state:    mgr,
		locks:    newKeyedLocks(),
		sink:     noopSink{},
		maxDepth: chain.DefaultMaxDepth,
		logger:   slog.Default(),
		tracer:   telemetry.Tracer("trustescrow/core"),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "settlement"))
	return s
}

func (s *Settlement) now() int64 { return s.nowFn() }

// engines is the set of engines bound to one transaction.
type engines struct {
	tx          *state.Tx
	now         int64
	emitter     events.Emitter
	escrow      *escrow.Engine
	stream      *stream.Engine
	chain       *chain.Engine
	reputation  *reputation.Engine
	arbitration *arbitration.Engine
}

func (s *Settlement) bind(tx *state.Tx, buf *events.Buffer, now int64) *engines {
	clock := func() int64 { return now }

	chainEngine := chain.NewEngine()
	chainEngine.SetState(tx)
	chainEngine.SetMaxDepth(s.maxDepth)
	chainEngine.SetNowFunc(clock)
	chainEngine.SetEmitter(buf)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(tx)
	escrowEngine.SetNowFunc(clock)
	escrowEngine.SetEmitter(buf)
	escrowEngine.SetReleaseGate(chainEngine)
	chainEngine.SetEscrows(escrowEngine)

	streamEngine := stream.NewEngine()
	streamEngine.SetState(tx)
	streamEngine.SetNowFunc(clock)
	streamEngine.SetEmitter(buf)

	repEngine := reputation.NewEngine()
	repEngine.SetState(tx)
	repEngine.SetNowFunc(clock)
	repEngine.SetEmitter(buf)
	if s.policy != nil {
		repEngine.SetPolicy(s.policy)
	}

	arbEngine := arbitration.NewEngine()
	arbEngine.SetState(tx)
	arbEngine.SetNowFunc(clock)
	arbEngine.SetEmitter(buf)

	return &engines{
		tx:          tx,
		now:         now,
		emitter:     buf,
		escrow:      escrowEngine,
		stream:      streamEngine,
		chain:       chainEngine,
		reputation:  repEngine,
		arbitration: arbEngine,
	}
}

// mutate runs fn inside a transaction holding the given record locks. The
// transaction commits only when fn succeeds; events reach the activity sink
// only after a successful commit.
func (s *Settlement) mutate(ctx context.Context, op, module string, keys []string, fn func(*engines) error) error {
	ctx, span := s.tracer.Start(ctx, "settlement."+op, trace.WithAttributes(attribute.String("settlement.operation", op)))
	defer span.End()
	start := time.Now()

	if err := common.Guard(s.pauses, module); err != nil {
		s.finish(ctx, span, op, start, err)
		return err
	}

	unlock := s.locks.Lock(keys...)
	observability.Settlement().LocksAcquired(len(keys))
	defer func() {
		unlock()
		observability.Settlement().LocksAcquired(-len(keys))
	}()

	now := s.now()
	buf := &events.Buffer{}
	tx := s.state.Begin()
	err := fn(s.bind(tx, buf, now))
	if err != nil {
		tx.Discard()
		s.finish(ctx, span, op, start, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		s.finish(ctx, span, op, start, err)
		return err
	}
	s.publish(ctx, op, now, buf)
	s.finish(ctx, span, op, start, nil)
	return nil
}

// view runs fn against committed state without taking locks. Any writes fn
// stages are discarded.
func (s *Settlement) view(ctx context.Context, op string, fn func(*engines) error) error {
	_, span := s.tracer.Start(ctx, "settlement."+op)
	defer span.End()
	err := s.state.View(func(tx *state.Tx) error {
		return fn(s.bind(tx, &events.Buffer{}, s.now()))
	})
	if err != nil {
		span.SetStatus(codes.Error, common.CodeOf(err))
	}
	return err
}

func (s *Settlement) publish(ctx context.Context, op string, now int64, buf *events.Buffer) {
	evts := buf.Drain()
	if len(evts) == 0 {
		return
	}
	for _, evt := range evts {
		observability.Activity().RecordEvent(evt.Type)
	}
	if err := s.sink.Publish(ctx, toActivity(op, now, evts)); err != nil {
		observability.Activity().RecordPublishFailure(op)
		s.logger.Warn("activity publish failed", slog.String("operation", op), slog.Any("error", err))
	}
}

func (s *Settlement) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = common.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if common.KindOf(err) == common.KindInvariant {
			observability.Settlement().RecordViolation(op)
			s.logger.ErrorContext(ctx, "invariant violation", slog.String("operation", op), slog.Any("error", err))
		} else if !isCoded(err) {
			s.logger.ErrorContext(ctx, "operation failed", slog.String("operation", op), slog.Any("error", err))
		} else {
			s.logger.DebugContext(ctx, "operation rejected", slog.String("operation", op), slog.String("code", outcome), slog.Any("error", err))
		}
	}
	observability.Settlement().Observe(op, outcome, time.Since(start))
}

func isCoded(err error) bool {
	var coded *common.Error
	return errors.As(err, &coded)
}
