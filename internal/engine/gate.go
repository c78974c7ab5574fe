package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// tracerName is the instrumentation scope name for gate tracing.
const tracerName = "github.com/SacredTexts/huly/internal/engine"

// BundleScope is the scope of the group the gate wraps around an original
// transaction and its companions.
const BundleScope = "process"

// Gate is the single entry point for document mutations.
//
// For every mutation of an incoming transaction tree the gate runs four
// detectors in fixed order (create, tag, field change, checkpoint
// resolution). Each may queue companion transactions that must commit
// before or after the original. When any companion is queued the gate
// forwards one all-or-nothing group
//
//	ApplyIf(scope "process", before ++ [original] ++ after)
//
// otherwise it forwards the original unchanged.
//
// Thread-safety model:
//   - Tx(): safe from any goroutine; calls are serialized by an internal
//     mutex, so the detector chain of one transaction never interleaves with
//     another's and two mutations of the same execution cannot race
type Gate struct {
	mu sync.Mutex

	docs      DocStore
	defs      Definitions
	hierarchy Hierarchy

	clock     ir.Clock
	ids       ir.IDGenerator
	baseClass ir.ClassRef
	selector  *Selector
	executor  *Executor
	tracer    trace.Tracer
}

// GateOption configures a Gate.
type GateOption func(*gateConfig)

type gateConfig struct {
	clock      ir.Clock
	ids        ir.IDGenerator
	baseClass  ir.ClassRef
	actions    *ActionRegistry
	evaluators map[model.TriggerKind]Evaluator
	tracer     trace.Tracer
}

// WithClock sets the clock stamping engine transactions.
// Default: NewWallClock().
func WithClock(c ir.Clock) GateOption {
	return func(g *gateConfig) { g.clock = c }
}

// WithIDGenerator sets the generator of engine transaction ids.
// Default: UUIDv7Generator.
func WithIDGenerator(ids ir.IDGenerator) GateOption {
	return func(g *gateConfig) { g.ids = ids }
}

// WithBaseClass sets the document class processes attach to.
// Default: model.ClassCard.
func WithBaseClass(c ir.ClassRef) GateOption {
	return func(g *gateConfig) { g.baseClass = c }
}

// WithActions sets the action registry. Default: NewActionRegistry().
func WithActions(r *ActionRegistry) GateOption {
	return func(g *gateConfig) { g.actions = r }
}

// WithEvaluators sets the per-trigger evaluators. Default: DefaultEvaluators().
func WithEvaluators(e map[model.TriggerKind]Evaluator) GateOption {
	return func(g *gateConfig) { g.evaluators = e }
}

// WithTracer sets the tracer. Default: the global otel tracer provider.
func WithTracer(t trace.Tracer) GateOption {
	return func(g *gateConfig) { g.tracer = t }
}

// NewGate creates a gate forwarding to docs.
func NewGate(docs DocStore, defs Definitions, h Hierarchy, opts ...GateOption) *Gate {
	cfg := gateConfig{
		clock:      NewWallClock(),
		ids:        UUIDv7Generator{},
		baseClass:  model.ClassCard,
		actions:    NewActionRegistry(),
		evaluators: DefaultEvaluators(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gate{
		docs:      docs,
		defs:      defs,
		hierarchy: h,
		clock:     cfg.clock,
		ids:       cfg.ids,
		baseClass: cfg.baseClass,
		selector:  NewSelector(cfg.evaluators),
		executor:  NewExecutor(cfg.actions, defs),
		tracer:    cfg.tracer,
	}
}

// BaseClass returns the document class processes attach to.
func (g *Gate) BaseClass() ir.ClassRef {
	return g.baseClass
}

// Tx intercepts tx, runs the detectors over every mutation it contains and
// forwards it, bundled with its companions when there are any.
//
// Errors from detectors or from the store abort the whole transaction,
// original included. A failed ApplyIf precondition is not an error: it is
// reported as Success=false. Action faults never surface here.
func (g *Gate) Tx(ctx context.Context, tx ir.Tx) (ir.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	meta := tx.Meta()
	ctx, span := g.tracer.Start(ctx, "process.gate.tx",
		trace.WithAttributes(
			attribute.String("procflow.tx.id", meta.ID),
			attribute.String("procflow.tx.kind", string(tx.Kind())),
			attribute.String("procflow.actor", string(meta.ModifiedBy)),
			attribute.Int("procflow.tx.mutations", ir.CountMutations(tx)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	fail := func(err error) (ir.TxResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordOutcome("error", time.Since(start).Seconds())
		return ir.TxResult{ID: meta.ID}, err
	}

	ctl := &Control{
		Actor:     meta.ModifiedBy,
		Factory:   ir.NewTxFactory(meta.ModifiedBy, g.clock, g.ids),
		Docs:      g.docs,
		Hierarchy: g.hierarchy,
		TriggerTx: meta.ID,
	}
	b := newBundle()
	err := ir.WalkMutations(tx, func(m ir.Mutation) error {
		return g.detect(ctx, ctl, m, b)
	})
	if err != nil {
		return fail(fmt.Errorf("process gate %s: %w", meta.ID, err))
	}

	forward := tx
	outcome := "forwarded"
	if !b.empty() {
		txes := make([]ir.Tx, 0, len(b.before)+1+len(b.after))
		txes = append(txes, b.before...)
		txes = append(txes, tx)
		txes = append(txes, b.after...)
		forward = ctl.Factory.ApplyIf(BundleScope, nil, nil, txes)
		outcome = "bundled"
		recordCompanions(len(b.before), len(b.after))
		span.SetAttributes(
			attribute.String("procflow.bundle.id", forward.Meta().ID),
			attribute.Int("procflow.bundle.before", len(b.before)),
			attribute.Int("procflow.bundle.after", len(b.after)),
		)
		slog.Debug("bundling transaction",
			"tx", meta.ID,
			"bundle", forward.Meta().ID,
			"before", len(b.before),
			"after", len(b.after))
	}

	res, err := g.docs.Apply(ctx, forward)
	if err != nil {
		return fail(fmt.Errorf("process gate %s: %w", meta.ID, err))
	}
	if !res.Success {
		outcome = "rejected"
	}
	recordOutcome(outcome, time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (g *Gate) detect(ctx context.Context, ctl *Control, m ir.Mutation, b *bundle) error {
	detectors := []struct {
		name string
		run  func(context.Context, *Control, ir.Mutation, *bundle) error
	}{
		{"create", g.detectCreate},
		{"tag", g.detectTag},
		{"field_change", g.detectFieldChange},
		{"checkpoint", g.detectCheckpoint},
	}
	for _, d := range detectors {
		if err := d.run(ctx, ctl, m, b); err != nil {
			return fmt.Errorf("%s detector on %s: %w", d.name, m.Meta().ID, err)
		}
	}
	return g.fold(ctx, m, b)
}
