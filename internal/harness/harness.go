package harness

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/apps"
	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/testutil"
)

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
	driver string
}

// WithLogger sets the logger handed to the engine (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithDriver selects the SQLite driver for the scenario database.
func WithDriver(name string) Option {
	return func(c *runConfig) { c.driver = name }
}

// Harness holds the engine a scenario runs against.
type Harness struct {
	engine *engine.Engine
	logger *zap.Logger
}

// Run executes a scenario in a fresh in-memory database with the
// application procedures installed, then evaluates its assertions.
//
// A returned error means the scenario could not run at all (bad specs,
// failed setup). Failed expectations are reported in Result.Errors.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	specs, err := loadSpecs(s)
	if err != nil {
		return nil, err
	}

	e, err := engine.Open(ctx, engine.OpenConfig{
		Path:   ":memory:",
		Driver: cfg.driver,
		Specs:  specs,
		Clock:  testutil.NewDeterministicClock(),
	}, cfg.logger, engine.WithRequestIDs(testutil.NewSequentialIDs("")))
	if err != nil {
		return nil, fmt.Errorf("open scenario database: %w", err)
	}
	defer e.Store().Close()

	if _, err := apps.Register(e); err != nil {
		return nil, fmt.Errorf("register procedures: %w", err)
	}

	h := &Harness{engine: e, logger: cfg.logger.Named("harness").With(zap.String("scenario", s.Name))}
	result := NewResult()
	if err := h.executeSetup(ctx, s.Setup, result); err != nil {
		return nil, err
	}
	h.executeFlow(ctx, s.Flow, result)

	for _, msg := range EvaluateAssertions(ctx, e, result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadSpecs(s *Scenario) ([]ir.EntitySpec, error) {
	if s.Specs == "" {
		res, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("default catalog: %w", err)
		}
		return res.Entities, nil
	}
	res, errs := catalog.LoadDir(s.Specs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load specs %s: %w", s.Specs, errors.Join(errs...))
	}
	return res.Entities, nil
}

// call invokes a procedure and records it in the trace.
func (h *Harness) call(ctx context.Context, phase, procedure string, raw map[string]any, result *Result) (TraceEvent, error) {
	args, err := toIRObject(raw)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("args: %w", err)
	}
	out, err := h.engine.Invoke(ctx, procedure, args.Clone())
	if err != nil {
		ee := engine.Classify(err)
		return result.record(phase, procedure, args, nil, string(ee.Code), ee.Message), nil
	}
	return result.record(phase, procedure, args, out, "", ""), nil
}

// executeSetup runs setup steps; any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		ev, err := h.call(ctx, PhaseSetup, step.Invoke, step.Args, result)
		if err != nil {
			return fmt.Errorf("setup[%d] %s: %w", i, step.Invoke, err)
		}
		if ev.Status != StatusOK {
			return fmt.Errorf("setup[%d] %s failed: %s: %s", i, step.Invoke, ev.Code, ev.Message)
		}
		h.logger.Debug("setup step completed", zap.Int("step", i), zap.String("procedure", step.Invoke))
	}
	return nil
}

// executeFlow runs flow steps and checks each outcome against its expect
// clause. Mismatches are recorded and the flow continues.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		ev, err := h.call(ctx, PhaseFlow, step.Invoke, step.Args, result)
		if err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Invoke, err))
			continue
		}
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
		}
		h.logger.Debug("flow step completed",
			zap.Int("step", i),
			zap.String("procedure", step.Invoke),
			zap.String("status", ev.Status),
			zap.String("code", ev.Code))
	}
}

func checkExpect(ev TraceEvent, exp *Expect) []string {
	want := StatusOK
	if exp != nil {
		want = exp.Status
	}
	if ev.Status != want {
		if ev.Status == StatusError {
			return []string{fmt.Sprintf("expected status ok, got %s: %s", ev.Code, ev.Message)}
		}
		return []string{"expected an error, call succeeded"}
	}
	if exp == nil {
		return nil
	}

	var errs []string
	if exp.Code != "" && ev.Code != exp.Code {
		errs = append(errs, fmt.Sprintf("expected code %s, got %s (%s)", exp.Code, ev.Code, ev.Message))
	}
	if exp.Count != nil {
		arr, ok := ev.Result.(ir.IRArray)
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("count given but result is %s", ir.TypeName(ev.Result)))
		case len(arr) != *exp.Count:
			errs = append(errs, fmt.Sprintf("expected %d results, got %d", *exp.Count, len(arr)))
		}
	}
	if exp.Result != nil {
		if diffs := subsetDiff("result", exp.Result, ir.ToGo(ev.Result)); len(diffs) > 0 {
			errs = append(errs, diffs...)
		}
	}
	return errs
}
