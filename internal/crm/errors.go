package crm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates the principal has no usable CRM
	// configuration. It must surface before any provider call is made.
	ErrNotConfigured = errors.New("crm: integration not configured")
	// ErrProviderUnavailable indicates the provider call never completed
	// (DNS, connect, timeout). Transient by definition.
	ErrProviderUnavailable = errors.New("crm: provider unavailable")
	// ErrInvalidPayload indicates a 2xx response whose shape deviates enough
	// that no contacts can be extracted.
	ErrInvalidPayload = errors.New("crm: unexpected provider payload")
)

const maxErrorBodyLength = 512

// ProviderHTTPError reports a non-2xx provider response. The body is
// untrusted text echoed for diagnostics, truncated and never re-interpreted.
type ProviderHTTPError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("crm: %s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the failure is safe to retry. Provider fetches
// are read-only, so 5xx responses qualify; 4xx never do.
func (e *ProviderHTTPError) Transient() bool {
	return e.StatusCode >= 500
}

func newProviderHTTPError(provider Provider, statusCode int, body []byte) *ProviderHTTPError {
	text := string(body)
	if len(text) > maxErrorBodyLength {
		text = text[:maxErrorBodyLength]
	}
	return &ProviderHTTPError{Provider: provider, StatusCode: statusCode, Body: text}
}
