package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fluxr/internal/scenario"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	File  string `json:"file"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file>...",
		Short: "Validate scenarios without running them",
		Long: `Parse and validate YAML or CUE scenario files.

Checks field names, reaction ops, debug commands, assertion types and that
every store and action reference is declared. Nothing is executed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		fv := FileValidation{File: file, Valid: true}
		sc, err := scenario.Load(file)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		} else {
			fv.Name = sc.Name
			f.VerboseLog("validated %s (%d stores, %d steps)", file, len(sc.Stores), len(sc.Steps))
		}
		result.Files = append(result.Files, fv)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeInvalid, Message: "validation failed"}
		}
		if err := f.Respond(resp); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(f.Writer, "✓ %s\n", fv.File)
				continue
			}
			fmt.Fprintf(f.Writer, "✗ %s\n  %s\n", fv.File, fv.Error)
		}
	}

	if !result.Valid {
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
