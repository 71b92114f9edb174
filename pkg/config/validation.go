package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

// ValidationError is one bad setting, keyed by its environment variable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors reports every bad setting at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Validator checks one group of settings.
type Validator func() ValidationErrors

// Validate runs every validator and returns the combined errors, or nil.
func Validate(validators ...Validator) error {
	var all ValidationErrors
	for _, v := range validators {
		all = append(all, v()...)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// CollectErrors drops the nil results of the Require helpers.
func CollectErrors(errs ...*ValidationError) ValidationErrors {
	var result ValidationErrors
	for _, err := range errs {
		if err != nil {
			result = append(result, *err)
		}
	}
	return result
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func RequireNonEmpty(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func RequirePositive(field string, value int) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be positive, got %d", value)
	}
	return nil
}

func RequirePositiveDuration(field string, value time.Duration) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be positive, got %v", value)
	}
	return nil
}

// RequireNotShorter checks that value is at least as long as other, e.g. the
// remembered session lifetime against the default one.
func RequireNotShorter(field string, value time.Duration, otherField string, other time.Duration) *ValidationError {
	if value < other {
		return invalid(field, "must not be shorter than %s (%v < %v)", otherField, value, other)
	}
	return nil
}

// RequireSiteURL checks for an absolute http or https URL. Its scheme decides
// whether cookies are marked Secure, so anything else is rejected.
func RequireSiteURL(field, value string) *ValidationError {
	if value == "" {
		return invalid(field, "is required")
	}
	u, err := url.Parse(value)
	if err != nil {
		return invalid(field, "invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(field, "must use http:// or https://, got %q", value)
	}
	if u.Host == "" {
		return invalid(field, "must include a host, got %q", value)
	}
	return nil
}

// RequireLocalPath checks for a same-site path such as a redirect target,
// mount prefix or cookie path.
func RequireLocalPath(field, value string) *ValidationError {
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") || strings.Contains(value, "\\") {
		return invalid(field, "must be a path starting with a single /, got %q", value)
	}
	return nil
}

// RequireSecret checks a signing secret's length and, in production, that it
// is not the built-in development value.
func RequireSecret(field, value, devDefault string, env Environment) *ValidationError {
	if len(value) < minSecretLength {
		return invalid(field, "must be at least %d characters, got %d", minSecretLength, len(value))
	}
	if env == Production && value == devDefault {
		return invalid(field, "must be changed in production")
	}
	return nil
}

func RequireValidEmail(field, value string) *ValidationError {
	if value == "" {
		return invalid(field, "is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return invalid(field, "invalid email address %q", value)
	}
	return nil
}

func RequireValidPort(field string, value uint16) *ValidationError {
	if value == 0 {
		return invalid(field, "port must be between 1 and 65535")
	}
	return nil
}

func RequireOneOf(field, value string, allowed ...string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid(field, "must be one of %s, got %q", strings.Join(allowed, "|"), value)
}

const minSecretLength = 16
