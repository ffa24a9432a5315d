package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/apps"
	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/config"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/logging"
)

// dbFlags are the database overrides shared by commands that open a store.
type dbFlags struct {
	Path   string
	Driver string
	Specs  string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Path, "db", "", "database path (overrides config)")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "sqlite driver: sqlite3 or sqlite (overrides config)")
	cmd.Flags().StringVar(&f.Specs, "specs", "", "entity specs directory (overrides config)")
}

func (f *dbFlags) apply(cfg *config.Config) {
	if f.Path != "" {
		cfg.Database.Path = f.Path
	}
	if f.Driver != "" {
		cfg.Database.Driver = f.Driver
	}
	if f.Specs != "" {
		cfg.Catalog.SpecsDir = f.Specs
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads the config file and environment. Failures are command
// errors.
func (o *RootOptions) loadConfig() (config.Config, string, error) {
	cfg, source, err := config.Load(o.ConfigPath, o.LookupEnv)
	if err != nil {
		return cfg, source, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, source, nil
}

// newLogger builds the process logger; --verbose forces debug level.
func (o *RootOptions) newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create logger", err)
	}
	return logger, nil
}

// loadSpecs returns the catalog from dir, or the embedded one when dir is
// empty.
func loadSpecs(dir string) ([]ir.EntitySpec, error) {
	if dir == "" {
		res, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		return res.Entities, nil
	}
	res, errs := catalog.LoadDir(dir)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res.Entities, nil
}

// openEngine opens and migrates the configured database and installs every
// procedure. The caller closes e.Store().
func openEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine.Engine, error) {
	specs, err := loadSpecs(cfg.Catalog.SpecsDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load specs", err)
	}
	e, err := engine.Open(ctx, engine.OpenConfig{
		Path:   cfg.Database.Path,
		Driver: cfg.Database.Driver,
		Specs:  specs,
	}, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", cfg.Database.Path), err)
	}
	installed, err := apps.Register(e)
	if err != nil {
		e.Store().Close()
		return nil, WrapExitError(ExitCommandError, "register procedures", err)
	}
	logger.Debug("procedures registered", zap.Strings("apps", installed), zap.Int("count", len(e.Procedures())))
	return e, nil
}
