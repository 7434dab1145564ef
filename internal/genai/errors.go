package genai

import (
	"errors"
	"fmt"
	"strings"

	"guardbot/internal/domain"
)

var (
	ErrAuth          = errors.New("credential rejected")
	ErrQuota         = errors.New("quota exhausted")
	ErrUnavailable   = errors.New("service unavailable")
	ErrBadRequest    = errors.New("request rejected")
	ErrEmptyResponse = errors.New("empty response")

	ErrNoCredentials  = fmt.Errorf("no generation credentials configured: %w", domain.ErrConfiguration)
	ErrChainExhausted = errors.New("all credentials failed")
)

// APIError is a non-200 answer from the generation API.
type APIError struct {
	StatusCode int
	Kind       error
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("generation api: status %d: %v: %s", e.StatusCode, e.Kind, strings.TrimSpace(body))
}

func (e *APIError) Unwrap() []error {
	return []error{e.Kind, domain.ErrTransient}
}

func kindForStatus(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 400 && strings.Contains(body, "API_KEY_INVALID"):
		return ErrAuth
	case status == 429:
		return ErrQuota
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}

// ExhaustedError is returned by Chain.Try when no slot produced a result.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Label, a.Err))
	}
	return fmt.Sprintf("%v (%s)", ErrChainExhausted, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrChainExhausted)
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
