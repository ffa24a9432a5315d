package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/store"
)

// OpenConfig describes the database behind an Engine.
type OpenConfig struct {
	Path   string          // database file, or ":memory:"
	Driver string          // store.DriverCGO (default) or store.DriverPureGo
	Specs  []ir.EntitySpec // compiled entity catalog
	Clock  Clock           // optional; drives both row timestamps and Today
}

// Open opens and migrates the store, then returns an Engine over it with no
// procedures registered. The caller owns the store and closes it through
// e.Store().Close().
func Open(ctx context.Context, cfg OpenConfig, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Specs) == 0 {
		return nil, fmt.Errorf("open: no entity specs")
	}

	storeOpts := []store.Option{store.WithLogger(logger)}
	if cfg.Driver != "" {
		storeOpts = append(storeOpts, store.WithDriver(cfg.Driver))
	}
	if cfg.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(cfg.Clock))
		opts = append([]Option{WithClock(cfg.Clock)}, opts...)
	}

	s, err := store.Open(cfg.Path, storeOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx, cfg.Specs); err != nil {
		s.Close()
		return nil, err
	}
	return New(s, cfg.Specs, logger, opts...), nil
}
