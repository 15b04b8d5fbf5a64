package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Constructors below wrap one of these so callers can use errors.Is.
var (
	// ErrConfig marks a missing or invalid setting; raised before any network call.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound marks a named project, view, bucket or task that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks a bad flag combination or value.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrMissingSetting returns a configuration error for a required setting.
func ErrMissingSetting(setting, envVar, flag string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: missing required setting %s", ErrConfig, setting),
		Suggestion: fmt.Sprintf("set %s or pass %s", envVar, flag),
	}
}

// ErrInvalidSetting returns a configuration error for a malformed setting.
func ErrInvalidSetting(setting, value, reason string) error {
	return fmt.Errorf("%w: invalid %s %q: %s", ErrConfig, setting, value, reason)
}

// ErrProjectNotFound returns an error for when a project does not exist.
func ErrProjectNotFound(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("project %w: %s", ErrNotFound, name),
		Suggestion: "check --project or VIKUNJA_PROJECT_NAME",
	}
}

// ErrViewNotFound returns an error for when a view does not exist in the project.
func ErrViewNotFound(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("view %w: %s", ErrNotFound, name),
		Suggestion: "check --view or VIKUNJA_VIEW_NAME",
	}
}

// ErrBucketNotFound returns an error for when a bucket does not exist in the view.
func ErrBucketNotFound(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("bucket %w: %s", ErrNotFound, name),
		Suggestion: "buckets are never created automatically; use 'kanbansync board' to list them",
	}
}

// ErrTaskNotFound returns an error for when no task matches the given hints.
func ErrTaskNotFound(purpose string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task %w for %s", ErrNotFound, purpose),
		Suggestion: "pass --task-id, or run ensure-task first with the same --pr-number/--branch/--title",
	}
}

// ErrInvalidArg returns an error for an invalid flag value or combination.
func ErrInvalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// OneLine renders an error as a single line, folding embedded newlines.
func OneLine(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

// Category classifies an error for analytics.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "validation"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "http 401"), strings.Contains(errStr, "http 403"):
		return "auth"
	case strings.Contains(errStr, "http "):
		return "transport"
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return "network"
	default:
		return "unknown"
	}
}
