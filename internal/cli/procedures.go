package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ProceduresOptions holds flags for the procedures command.
type ProceduresOptions struct {
	*RootOptions
	DB dbFlags
}

// NewProceduresCommand creates the procedures command.
func NewProceduresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProceduresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "procedures",
		Short:         "List the procedures the engine exposes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedures(opts, cmd)
		},
	}
	opts.DB.register(cmd)
	return cmd
}

func runProcedures(opts *ProceduresOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

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

	procs := e.Procedures()
	if formatter.JSON() {
		return formatter.Success(procs)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROCEDURE\tKIND\tENTITY\tDESCRIPTION")
	for _, p := range procs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Kind, p.Entity, p.Doc)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "\n%d procedure(s)\n", len(procs))
	return nil
}
