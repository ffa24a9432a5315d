package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/store"
)

// Kind classifies a procedure.
type Kind string

const (
	KindCreate Kind = "create"
	KindList   Kind = "list"
	KindGet    Kind = "get"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindCustom Kind = "custom"
)

// CRUDKinds are the generic procedures RegisterCRUD installs by default.
var CRUDKinds = []Kind{KindCreate, KindList, KindGet, KindUpdate, KindDelete}

// Handler runs one procedure call. args is the decoded request object and
// is never nil.
type Handler func(ctx context.Context, args ir.IRObject) (ir.IRValue, error)

// Procedure is a named operation callable through Invoke.
type Procedure struct {
	Name    string  `json:"name"`
	Entity  string  `json:"entity,omitempty"`
	Kind    Kind    `json:"kind"`
	Doc     string  `json:"doc,omitempty"`
	Handler Handler `json:"-"`
}

// Engine is the procedure router. It holds no per-request state: every
// call is validate, persist or query, then coerce.
//
// Thread-safety: Register must finish before Invoke is called concurrently;
// Invoke and Procedures are safe from any goroutine.
type Engine struct {
	store  *store.Store
	specs  map[string]*ir.EntitySpec
	order  []string // entity names in catalog order
	logger *zap.Logger
	ids    RequestIDGenerator
	clock  Clock

	mu    sync.RWMutex
	procs map[string]Procedure
}

// Option configures an Engine.
type Option func(*Engine)

// WithRequestIDs sets the request ID generator (default UUIDv7Generator).
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the clock used for "today" defaults (default SystemClock).
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine over an opened, migrated store.
//
// No procedures are registered; call RegisterCRUD and the domain packages'
// Register functions.
func New(s *store.Store, specs []ir.EntitySpec, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  s,
		specs:  make(map[string]*ir.EntitySpec, len(specs)),
		logger: logger.Named("engine"),
		ids:    UUIDv7Generator{},
		clock:  SystemClock{},
		procs:  make(map[string]Procedure),
	}
	for i := range specs {
		spec := specs[i]
		e.specs[spec.Name] = &spec
		e.order = append(e.order, spec.Name)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a procedure. Names must be unique.
func (e *Engine) Register(p Procedure) error {
	if p.Name == "" {
		return fmt.Errorf("register: procedure name is empty")
	}
	if p.Handler == nil {
		return fmt.Errorf("register %s: nil handler", p.Name)
	}
	if p.Kind == "" {
		p.Kind = KindCustom
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.procs[p.Name]; dup {
		return fmt.Errorf("register %s: procedure already registered", p.Name)
	}
	e.procs[p.Name] = p
	return nil
}

// Procedures returns every registered procedure sorted by name.
func (e *Engine) Procedures() []Procedure {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Procedure, 0, len(e.procs))
	for _, p := range e.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the named procedure.
func (e *Engine) Lookup(name string) (Procedure, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.procs[name]
	return p, ok
}

// Invoke runs a procedure by name.
//
// The returned error is always an *Error. Unknown procedures are NOT_FOUND.
// Storage failures are logged at error level and returned with the driver
// error still reachable through errors.As; nothing is retried or masked.
func (e *Engine) Invoke(ctx context.Context, name string, args ir.IRObject) (ir.IRValue, error) {
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = e.ids.Generate()
		ctx = WithRequestID(ctx, reqID)
	}
	log := e.logger.With(zap.String("request_id", reqID), zap.String("procedure", name))

	p, ok := e.Lookup(name)
	if !ok {
		log.Debug("unknown procedure")
		return nil, NewNotFound("unknown procedure %q", name)
	}
	if args == nil {
		args = ir.IRObject{}
	}

	start := time.Now()
	out, err := p.Handler(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		ee := Classify(err)
		if ee.Code == ErrCodeStorage {
			log.Error("procedure failed", zap.Error(err), zap.Duration("duration", elapsed))
		} else {
			log.Debug("procedure rejected",
				zap.String("code", string(ee.Code)),
				zap.String("message", ee.Message),
				zap.Duration("duration", elapsed))
		}
		return nil, ee
	}

	log.Debug("procedure completed", zap.Duration("duration", elapsed))
	return out, nil
}

// NewRequestID returns a fresh request ID from the configured generator.
func (e *Engine) NewRequestID() string {
	return e.ids.Generate()
}

// Spec returns the entity spec with the given name.
func (e *Engine) Spec(name string) (*ir.EntitySpec, bool) {
	s, ok := e.specs[name]
	return s, ok
}

// Entities returns entity specs in catalog order.
func (e *Engine) Entities() []*ir.EntitySpec {
	out := make([]*ir.EntitySpec, len(e.order))
	for i, name := range e.order {
		out[i] = e.specs[name]
	}
	return out
}

// Store returns the persistence adapter.
func (e *Engine) Store() *store.Store { return e.store }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Today returns the engine clock's current day.
func (e *Engine) Today() time.Time { return Today(e.clock) }

// Ping checks the store; used by health checks.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }
