package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Patterns []string                   `json:"patterns,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <patterns>",
		Short: "Validate pattern definitions without evaluating",
		Long: `Validate CUE pattern definitions without evaluating a stream.

Compiles every pattern, checks explicit topologies and predicate placement
by building each pattern's tree, and rejects duplicate names. Every error
is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadPatterns(path, LoadModeCollectAll)

	// Handle load errors (path not found, no files, etc.)
	if loadResult == nil {
		loadErr := firstLoadError(loadErrors)
		return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		loadErr := firstLoadError([]error{err})
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    loadErr.Line(),
		})
	}
	for _, def := range loadResult.Definitions {
		formatter.VerboseLog("Validating pattern: %s", def.Pattern.Name)
	}
	validationErrors = append(validationErrors, compiler.ValidateAll(loadResult.Definitions)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	names := make([]string, len(loadResult.Definitions))
	for i, def := range loadResult.Definitions {
		names[i] = def.Pattern.Name
	}
	return outputValidateSuccess(formatter, names)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, names []string) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Patterns: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All patterns valid (%d)\n", len(names))
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.IsJSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		if err.Pattern != "" {
			fmt.Fprintf(formatter.Writer, "  %s: pattern %s: %s\n\n", err.Code, err.Pattern, err.Message)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// loadDefinitions loads, compiles and validates patterns, failing on the
// first problem. Used by commands that evaluate patterns.
func loadDefinitions(path string) ([]*compiler.Definition, error) {
	loadResult, loadErrors := LoadPatterns(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		loadErr := firstLoadError(loadErrors)
		if loadResult == nil {
			return nil, WrapExitError(ExitCommandError, "failed to load patterns", loadErr)
		}
		return nil, WrapExitError(ExitFailure, "invalid patterns", loadErr)
	}
	if verrs := compiler.ValidateAll(loadResult.Definitions); len(verrs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid patterns", verrs[0])
	}
	return loadResult.Definitions, nil
}
