package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/crudkit/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	DB   dbFlags
	Host string
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts, Port: -1}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve procedures over HTTP",
		Long: `Open the database, apply the entity specs and serve every procedure
at POST /rpc/{procedure}. SIGINT or SIGTERM triggers a graceful shutdown.

Examples:
  crudkit serve
  crudkit serve --port 9000 --db ./data/app.db
  PORT=9000 CRUDKIT_DB=./app.db crudkit serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	opts.DB.register(cmd)
	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", -1, "listen port (overrides config and PORT)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, source, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.DB.apply(&cfg)
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port >= 0 {
		cfg.Server.Port = opts.Port
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	logger, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if source != "" {
		logger.Info("config loaded", zap.String("file", source))
	}

	e, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Store().Close()

	srv := server.New(e, server.Config{
		MaxConnections:  cfg.Server.MaxConnections,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigin:      cfg.Server.CORSOrigin,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("stopping", zap.NamedError("cause", context.Cause(gctx)))
		return nil
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	logger.Info("server stopped")
	return nil
}
