package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/treecep/internal/compiler"
)

// LoadMode controls how errors are handled during pattern loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the patterns loaded from a file or directory.
type LoadResult struct {
	Definitions []*compiler.Definition
	Values      []cue.Value // One built CUE value per directory
	FileCount   int         // Number of CUE files found
}

// LoadError represents an error that occurred during pattern loading.
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

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadPatterns loads and compiles CUE pattern definitions from a .cue file
// or a directory of them.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadPatterns(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("patterns path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing patterns path: %v", err)}}
	}

	var cueFiles []string
	if info.IsDir() {
		cueFiles, err = FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}}
		}
		cueFiles = []string{path}
	}

	result := &LoadResult{FileCount: len(cueFiles)}
	ctx := cuecontext.New()

	// Files of one directory load as a single instance; named files must
	// share a directory.
	var errs []error
	for _, group := range groupByDir(cueFiles) {
		instances := load.Instances(group.files, &load.Config{Dir: group.dir})
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
		result.Values = append(result.Values, value)

		defs, compileErrs := compiler.CompileAll(value)
		result.Definitions = append(result.Definitions, defs...)
		for _, compileErr := range compileErrs {
			errs = append(errs, convertCompileError(compileErr))
			if mode == LoadModeFailFast {
				return result, errs
			}
		}
	}
	return result, errs
}

type fileGroup struct {
	dir   string
	files []string
}

// groupByDir splits paths by parent directory, keeping first-seen order.
// Files are given relative to their directory.
func groupByDir(paths []string) []fileGroup {
	var groups []fileGroup
	index := make(map[string]int)
	for _, p := range paths {
		dir := filepath.Dir(p)
		i, ok := index[dir]
		if !ok {
			i = len(groups)
			index[dir] = i
			groups = append(groups, fileGroup{dir: dir})
		}
		groups[i].files = append(groups[i].files, "./"+filepath.Base(p))
	}
	return groups
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
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := compiler.CodeFor(err)
		if code == "" {
			code = ErrCodeGeneric
			if compileErr.Field == "pattern" {
				code = compiler.ErrNoPattern
			}
		}
		// Keep the "pattern <name>: " context added by CompileAll.
		prefix := strings.TrimSuffix(err.Error(), compileErr.Error())
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s%s: %s", prefix, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// firstLoadError returns errs[0] as a LoadError.
func firstLoadError(errs []error) *LoadError {
	var loadErr *LoadError
	if errors.As(errs[0], &loadErr) {
		return loadErr
	}
	return &LoadError{Code: ErrCodeGeneric, Message: errs[0].Error()}
}

// Error code constants - unified across all CLI commands.
// Pattern definition codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Match store error
	ErrCodeEngine      = "E009" // Engine setup or evaluation error
)
