package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/config"
	"github.com/roach88/xqflow/internal/message"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid             bool                `json:"valid"`
	ExternalVariables []string            `json:"external_variables,omitempty"`
	Errors            []ValidationProblem `json:"errors,omitempty"`
}

// ValidationProblem is one problem found in a definition.
type ValidationProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Validate a definition without running it",
		Long: `Validate a YAML, TOML, CUE or JSON definition.

Reports every structural problem at once. A structurally valid definition
is then prepared: the query is loaded and compiled and every external
variable must have a parameter.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	def, err := config.Load(path)
	if err != nil {
		_ = formatter.Error(errorCode(err), problemMessage(err), nil)
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}
	formatter.VerboseLog("loaded %s", path)

	if err := def.Validate(); err != nil {
		return outputValidationErrors(formatter, splitErrors(err))
	}

	exec, err := def.NewExecutor(zap.NewNop())
	if err != nil {
		return outputValidationErrors(formatter, []error{err})
	}

	externals := exec.ExternalVariables()
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, ExternalVariables: externals})
	}

	fmt.Fprintln(formatter.Writer, "✓ Definition valid")
	if len(externals) == 0 {
		fmt.Fprintln(formatter.Writer, "  external variables: none")
	} else {
		fmt.Fprintf(formatter.Writer, "  external variables: $%s\n", strings.Join(externals, ", $"))
	}
	return nil
}

// outputValidationErrors outputs every problem and returns a failure.
func outputValidationErrors(formatter *OutputFormatter, errs []error) error {
	problems := make([]ValidationProblem, len(errs))
	for i, err := range errs {
		problems[i] = ValidationProblem{Code: errorCode(err), Message: problemMessage(err)}
	}

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: problems},
			Error:  &CLIError{Code: problems[0].Code, Message: problems[0].Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", p.Code, p.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
}

// splitErrors flattens errors.Join results.
func splitErrors(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// problemMessage drops the messaging code prefix, which errorCode already
// reports.
func problemMessage(err error) string {
	var me *message.Error
	if errors.As(err, &me) && me == err {
		if me.Err != nil {
			return fmt.Sprintf("%s: %v", me.Message, me.Err)
		}
		return me.Message
	}
	return err.Error()
}
