package cmd

import (
	"fmt"
	"os"

	"settlement-matching-service/pkg/errors"
	"settlement-matching-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints a user-facing message for err and returns the
// process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if matchErr, ok := errors.AsMatchError(err); ok {
		return h.handleMatchError(matchErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleMatchError(err *errors.MatchError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "Run with --verbose for more details\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.Category) string {
	switch category {
	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'matchd run --help' to see all available options
• Environment variables use the MATCHD_ prefix (e.g. MATCHD_DATABASE_URL)`

	case errors.CategoryPersistence:
		return `Database error help:
• Verify the database URL and that PostgreSQL is reachable
• Check credentials and network connectivity
• Confirm the matching schema has been migrated
• Any links applied before the failure were committed and are safe`

	case errors.CategoryVerification:
		return `Verification error help:
• Check the verification service endpoint and API key
• The run continues without verification when batches fail
• Consider raising --verify-timeout for a slow service`

	case errors.CategoryData:
		return `Data error help:
• Malformed records and transactions are skipped, not fatal
• Check the skipped IDs in the logs and repair the source rows
• Re-run matching after the data is fixed`

	default:
		return `For more details, check the logs or run with --verbose`
	}
}
