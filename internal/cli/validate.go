package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/compiler"
)

// Diagnostic is one problem found in a specs directory.
type Diagnostic struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Entities []string     `json:"entities,omitempty"`
	Errors   []Diagnostic `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate entity specs without touching a database",
		Long: `Validate the CUE entity specs in a directory.

Checks CUE syntax, field types, constraints, references and link targets
across the whole catalog. Every problem is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	res, errs := catalog.LoadDir(specsDir)
	if res == nil {
		d := diagnose(errs[0])
		_ = formatter.Error(d.Code, d.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", d.Code, d.Message))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, specsDir)

	if len(errs) > 0 {
		diags := make([]Diagnostic, len(errs))
		for i, err := range errs {
			diags[i] = diagnose(err)
		}
		return outputValidationErrors(formatter, diags)
	}

	names := make([]string, len(res.Entities))
	for i, spec := range res.Entities {
		names[i] = spec.Name
		formatter.VerboseLog("Validated entity: %s (%d fields)", spec.Name, len(spec.Fields))
	}
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Entities: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d entities)\n", len(names))
	return nil
}

// diagnose flattens catalog and compiler errors into one shape.
func diagnose(err error) Diagnostic {
	var loadErr *catalog.LoadError
	if errors.As(err, &loadErr) {
		d := Diagnostic{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			d.File, d.Line = loadErr.Pos.Filename(), loadErr.Pos.Line()
		}
		return d
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return Diagnostic{Code: verr.Code, Field: verr.Field, Message: verr.Message}
	}
	return Diagnostic{Code: catalog.ErrCodeGeneric, Message: err.Error()}
}

func outputValidationErrors(formatter *OutputFormatter, diags []Diagnostic) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(diags)))

	if formatter.JSON() {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: diags},
			Error:  &CLIError{Code: diags[0].Code, Message: diags[0].Message},
		}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, d := range diags {
		if d.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", d.File, d.Line)
		}
		if d.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", d.Code, d.Field, d.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", d.Code, d.Message)
		}
	}
	return failed
}
