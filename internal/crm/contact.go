package crm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies one of the supported CRM backends. The set is closed:
// dispatch happens by typed constant, never by raw string comparison.
type Provider string

const (
	ProviderHubSpot    Provider = "hubspot"
	ProviderSalesforce Provider = "salesforce"
	ProviderPipedrive  Provider = "pipedrive"
)

// ErrUnsupportedProvider indicates a CRM tag outside the supported set.
var ErrUnsupportedProvider = errors.New("crm: unsupported provider")

// ParseProvider normalizes a raw CRM tag into a Provider. Comparison is
// case-insensitive and surrounding whitespace is ignored.
func ParseProvider(raw string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ProviderHubSpot):
		return ProviderHubSpot, nil
	case string(ProviderSalesforce):
		return ProviderSalesforce, nil
	case string(ProviderPipedrive):
		return ProviderPipedrive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, raw)
	}
}

// String returns the canonical lowercase tag.
func (p Provider) String() string {
	return string(p)
}

// Contact is the canonical, provider-agnostic record returned to callers.
// Every optional field normalizes to the empty string, never to a missing
// value, and every contact in one response carries the same Source.
type Contact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// Credentials carries one principal's CRM selection for the lifetime of a
// single request. Settings is an opaque per-provider map; unrecognized keys
// are ignored and missing keys fall back to adapter defaults.
type Credentials struct {
	Provider Provider
	APIKey   APIKey
	Settings map[string]string
}

// Setting returns the named settings value or the provided fallback.
func (c Credentials) Setting(key, fallback string) string {
	if value, ok := c.Settings[key]; ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// joinName trims the concatenation of given and family name parts. Both
// absent yields the empty string.
func joinName(given, family string) string {
	return strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(family))
}

// fallbackTimestamp formats the fetch time used when a provider payload
// omits a creation date.
func fallbackTimestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// firstNonEmpty returns the first value that is non-empty after trimming.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
