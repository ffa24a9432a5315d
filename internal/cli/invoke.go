package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	DB   dbFlags
	Args string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <procedure>",
		Short: "Call a procedure against the database directly",
		Long: `Call a procedure in-process against the configured database, without
a running server. The output uses the same envelope as the HTTP API.

Examples:
  crudkit invoke product.create --args '{"name":"Widget","sku":"W-1"}'
  crudkit invoke product.list --args '{"filter":{"stock_level":{"lte":5}}}' --format json
  crudkit invoke expense.summary --db ./app.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	opts.DB.register(cmd)
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "procedure arguments as a JSON object")

	return cmd
}

func runInvoke(opts *InvokeOptions, procedure string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	args, err := parseArgs(opts.Args)
	if err != nil {
		_ = formatter.Error(string(engine.ErrCodeValidation), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.DB.apply(&cfg)
	logger, err := opts.newLogger(cfg)
	if err != nil {
		return err
	}

	e, err := openEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer e.Store().Close()

	reqID := e.NewRequestID()
	formatter.VerboseLog("request %s: %s %s", reqID, procedure, opts.Args)
	out, err := e.Invoke(engine.WithRequestID(cmd.Context(), reqID), procedure, args)
	if err != nil {
		ee := engine.Classify(err)
		_ = formatter.ErrorWithRequest(string(ee.Code), ee.Message, ee.Details, reqID)
		return WrapExitError(ExitFailure, procedure, ee)
	}

	data, err := ir.MarshalIRValue(out)
	if err != nil {
		return WrapExitError(ExitFailure, "encode result", err)
	}
	return formatter.Result(data, reqID)
}

// parseArgs decodes --args into an object. Blank means {}.
func parseArgs(raw string) (ir.IRObject, error) {
	if strings.TrimSpace(raw) == "" {
		return ir.IRObject{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid --args JSON: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("--args must be a JSON object, got %s", ir.TypeName(v))
	}
	return obj, nil
}
