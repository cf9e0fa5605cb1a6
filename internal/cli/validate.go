package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/ir"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Hash     string                     `json:"hash,omitempty"`
	Stores   int                        `json:"stores"`
	Views    int                        `json:"views"`
	Joins    int                        `json:"joins"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.Warning         `json:"warnings,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <catalog>",
		Short: "Check a catalog and report lint warnings",
		Long: `Compile a CUE catalog (a .cue file or a directory of them) and check
store field kinds, view and join references, and where clauses.

Lint warnings flag legal but suspicious declarations, such as two views
selecting the same entities. With --strict, warnings fail validation.

Examples:
  livestore validate ./catalog.cue
  livestore validate ./catalog --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat lint warnings as failures")
	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, err := LoadCatalog(path)
	if err != nil {
		var verrs compiler.ValidationErrors
		if errors.As(err, &verrs) {
			return outputValidationErrors(formatter, verrs)
		}
		return commandError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s: %d store(s), %d view(s), %d join(s)",
		path, len(cat.Stores), len(cat.Views), len(cat.Joins))

	result := ValidationResult{
		Valid:    true,
		Hash:     ir.MustCatalogHash(cat),
		Stores:   len(cat.Stores),
		Views:    len(cat.Views),
		Joins:    len(cat.Joins),
		Warnings: compiler.Lint(cat),
	}
	failed := opts.Strict && hasLevel(result.Warnings, "warning")
	result.Valid = !failed

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeGeneric, Message: "lint warnings in strict mode"}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		if failed {
			formatter.Printf("✗ Catalog has lint warnings\n")
		} else {
			formatter.Printf("✓ Catalog valid (%d stores, %d views, %d joins)\n", result.Stores, result.Views, result.Joins)
		}
		for _, w := range result.Warnings {
			formatter.Printf("  %s %s\n", levelMark(w.Level), w.Message)
		}
		if opts.Verbose {
			formatter.Printf("  hash: %s\n", result.Hash)
		}
	}

	if failed {
		return NewExitError(ExitFailure, "validation failed: lint warnings in strict mode")
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs compiler.ValidationErrors) error {
	if formatter.JSON() {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
	} else {
		formatter.Printf("✗ Validation failed\n\n")
		for _, e := range errs {
			formatter.Printf("  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func hasLevel(ws []compiler.Warning, level string) bool {
	for _, w := range ws {
		if w.Level == level {
			return true
		}
	}
	return false
}

func levelMark(level string) string {
	if level == "warning" {
		return "⚠"
	}
	return "ℹ"
}
