// Package catalog loads entity specs written in CUE.
//
// The binary embeds a default catalog covering the four demo apps
// (inventory, bookmarks, expenses, habits). A directory of .cue files can
// replace it at startup via LoadDir.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/crudkit/internal/compiler"
	"github.com/roach88/crudkit/internal/ir"
)

//go:embed cue/*.cue
var defaultFS embed.FS

// Error code constants shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
)

// Result contains the compiled catalog.
type Result struct {
	Entities  []ir.EntitySpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred while loading specs.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Default compiles and validates the embedded catalog.
func Default() (*Result, error) {
	entries, err := fs.ReadDir(defaultFS, "cue")
	if err != nil {
		return nil, fmt.Errorf("catalog: read embedded specs: %w", err)
	}

	ctx := cuecontext.New()
	value := ctx.CompileString("{}")
	count := 0
	for _, e := range entries {
		name := path.Join("cue", e.Name())
		data, err := defaultFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", name, err)
		}
		value = value.Unify(ctx.CompileBytes(data, cue.Filename(name)))
		count++
	}

	res, errs := compile(value, count)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res, nil
}

// MustDefault is Default for tests and static initialisation.
func MustDefault() []ir.EntitySpec {
	res, err := Default()
	if err != nil {
		panic(err)
	}
	return res.Entities
}

// LoadDir loads, compiles and validates every .cue file in dir.
// All compile and validation errors are returned together.
func LoadDir(dir string) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	return compile(value, len(cueFiles))
}

func compile(value cue.Value, fileCount int) (*Result, []error) {
	specs, compileErrs := compiler.CompileCatalog(value)

	var errs []error
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err))
	}
	for _, verr := range compiler.Validate(specs) {
		errs = append(errs, verr)
	}

	return &Result{
		Entities:  specs,
		CUEValue:  value,
		FileCount: fileCount,
	}, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) error {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeGeneric,
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// ByName indexes specs by entity name.
func ByName(specs []ir.EntitySpec) map[string]*ir.EntitySpec {
	out := make(map[string]*ir.EntitySpec, len(specs))
	for i := range specs {
		out[specs[i].Name] = &specs[i]
	}
	return out
}
