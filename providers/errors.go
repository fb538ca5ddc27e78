package providers

import (
	"errors"
	"fmt"
)

// FailureCode classifies why a provider call failed.
type FailureCode string

const (
	CodeNotConfigured FailureCode = "not_configured"
	CodeRateLimited   FailureCode = "rate_limited"
	CodeNotFound      FailureCode = "not_found"
	CodeTransient     FailureCode = "transient_error"
)

// Sentinel targets for errors.Is.
var (
	ErrNotConfigured = errors.New("provider not configured")
	ErrRateLimited   = errors.New("provider rate limited")
	ErrNotFound      = errors.New("symbol not found")
	ErrTransient     = errors.New("transient provider error")
)

var codeSentinels = map[FailureCode]error{
	CodeNotConfigured: ErrNotConfigured,
	CodeRateLimited:   ErrRateLimited,
	CodeNotFound:      ErrNotFound,
	CodeTransient:     ErrTransient,
}

// FetchError is the typed failure a provider returns. Code drives fallback
// behavior: not_configured is skipped without counting as an attempt.
type FetchError struct {
	Provider string
	Code     FailureCode
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel error for the failure code.
func (e *FetchError) Is(target error) bool {
	return codeSentinels[e.Code] == target
}

func newFetchError(provider string, code FailureCode, err error) *FetchError {
	return &FetchError{Provider: provider, Code: code, Err: err}
}

// ExhaustedError reports that every provider in the chain failed or was
// unavailable for one symbol. Last carries the reason from the last attempted
// provider.
type ExhaustedError struct {
	Symbol string
	Last   *FetchError
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("all providers exhausted for %s (last: %v)", e.Symbol, e.Last)
	}
	return fmt.Sprintf("all providers exhausted for %s (none available)", e.Symbol)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last != nil {
		return e.Last
	}
	return nil
}
