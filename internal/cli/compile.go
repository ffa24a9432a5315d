package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	DDL    bool   // emit SQLite DDL instead of IR
}

// CompilationResult is the compiled catalog.
type CompilationResult struct {
	Entities []ir.EntitySpec `json:"entities"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE entity specs to IR or SQL",
		Long: `Compile CUE entity specs to the canonical IR the engine runs on.

With --ddl the output is the SQLite schema the store would create for the
catalog instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().BoolVar(&opts.DDL, "ddl", false, "emit SQLite DDL instead of IR")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	res, errs := catalog.LoadDir(specsDir)
	if res == nil {
		d := diagnose(errs[0])
		_ = formatter.Error(d.Code, d.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", d.Code, d.Message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, specsDir)
	for _, spec := range res.Entities {
		formatter.VerboseLog("Compiling entity: %s", spec.Name)
	}

	if len(errs) > 0 {
		diags := make([]Diagnostic, len(errs))
		for i, err := range errs {
			diags[i] = diagnose(err)
		}
		// A catalog that does not compile is a command error, unlike validate.
		_ = outputValidationErrors(formatter, diags)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(diags)))
	}

	result := CompilationResult{Entities: res.Entities}
	var artifact []byte
	if opts.DDL {
		artifact = []byte(strings.Join(store.DDL(res.Entities), ";\n\n") + ";\n")
	} else {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitFailure, "marshal IR", err)
		}
		artifact = append(data, '\n')
	}

	if opts.Output != "" {
		if err := atomic.WriteFile(opts.Output, bytes.NewReader(artifact)); err != nil {
			_ = formatter.Error(catalog.ErrCodeGeneric, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
	}

	return outputCompileSuccess(formatter, opts, result, artifact)
}

func outputCompileSuccess(formatter *OutputFormatter, opts *CompileOptions, result CompilationResult, artifact []byte) error {
	if formatter.JSON() {
		if opts.DDL {
			return formatter.Success(map[string]string{"ddl": string(artifact)})
		}
		return formatter.Success(result)
	}

	if opts.Output == "" && opts.DDL {
		_, err := formatter.Writer.Write(artifact)
		return err
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d entity spec(s)\n\n", len(result.Entities))
	for _, spec := range result.Entities {
		fmt.Fprintf(formatter.Writer, "  %s (%s): %d field(s)", spec.Name, spec.Table, len(spec.Fields))
		if len(spec.Links) > 0 {
			fmt.Fprintf(formatter.Writer, ", %d link(s)", len(spec.Links))
		}
		fmt.Fprintln(formatter.Writer)
	}
	if opts.Output != "" {
		kind := "IR"
		if opts.DDL {
			kind = "DDL"
		}
		fmt.Fprintf(formatter.Writer, "\nWrote %s to %s\n", kind, opts.Output)
	}
	return nil
}
