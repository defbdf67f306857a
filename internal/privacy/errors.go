package privacy

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid pattern, locale, precedence or provider.
// It is raised at configuration time and is always fatal to that configuration step.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error: %s %q", e.Field, e.Value)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// GuardUnavailableError reports a guard that could not produce spans: transport
// failure, missing credentials, timeout or a malformed provider response.
// The Protector recovers from it by continuing with rule matches only.
type GuardUnavailableError struct {
	Guard string
	Err   error
}

func (e *GuardUnavailableError) Error() string {
	return fmt.Sprintf("guard %s unavailable: %v", e.Guard, e.Err)
}

func (e *GuardUnavailableError) Unwrap() error { return e.Err }

// DetectionError reports a rule that could not finish matching, e.g. a custom
// backtracking pattern that hit its match timeout.
type DetectionError struct {
	Rule string
	Err  error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// NewGuardUnavailable wraps err for the named guard.
func NewGuardUnavailable(guard string, err error) error {
	return &GuardUnavailableError{Guard: guard, Err: err}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsGuardUnavailable reports whether err is or wraps a GuardUnavailableError.
func IsGuardUnavailable(err error) bool {
	var ge *GuardUnavailableError
	return errors.As(err, &ge)
}
