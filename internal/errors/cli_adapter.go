package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if me, ok := err.(*MonitorError); ok {
		return a.exitCodeFromMonitor(me)
	}

	return 1
}

// exitCodeFromMonitor maps MonitorError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromMonitor(err *MonitorError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryNotFound:
		return 3 // Unknown session
	case CategoryConflict:
		return 4 // Conflicting build activity
	case CategoryConfig:
		return 7 // Configuration error
	case CategorySpawn, CategoryProcess:
		return 8 // Process error
	case CategoryClassify, CategoryStorage:
		return 11 // Pipeline error
	case CategoryDaemon, CategoryRuntime, CategoryTermination:
		return 12 // Runtime error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if me, ok := err.(*MonitorError); ok {
		return a.formatMonitor(me)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatMonitor formats a MonitorError for display.
func (a *CLIErrorAdapter) formatMonitor(err *MonitorError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if me, ok := err.(*MonitorError); ok {
		return me.Category == CategoryInternal ||
			me.Category == CategoryRuntime ||
			me.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if me, ok := err.(*MonitorError); ok {
		level := a.slogLevelFromSeverity(me.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(me.Category)),
		}
		if me.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(nil, level, me.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts MonitorError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
