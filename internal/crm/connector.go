package crm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxResponseSize caps how much of a provider response body is read (4MB).
const maxResponseSize = 4 * 1024 * 1024

// maxProviderPageSize is the largest page requested from a provider in one
// round trip. Only the first provider page is fetched; slicing into caller
// pages happens in memory afterwards.
const maxProviderPageSize = 100

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 2
	defaultRetryInterval  = 500 * time.Millisecond
)

// Connector is the per-provider adapter contract: a single read-only fetch
// of the provider's first contact page, normalized to canonical Contacts in
// provider-native recency order.
type Connector interface {
	Provider() Provider
	FetchContacts(ctx context.Context, creds Credentials) ([]Contact, error)
}

// AdapterConfig carries the transport knobs shared by all adapters.
// The zero value is usable: every field has a built-in default.
type AdapterConfig struct {
	// BaseURL overrides the provider endpoint, primarily for tests.
	BaseURL string
	// Timeout bounds each outbound round trip.
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures (network errors and
	// 5xx responses). 4xx responses are never retried.
	MaxRetries uint64
	// RetryInterval seeds the exponential backoff between attempts.
	RetryInterval time.Duration
	HTTPClient    *http.Client
	Clock         func() time.Time
}

func (c AdapterConfig) withDefaults() AdapterConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// fetchBody performs one provider call with bounded retries. The request is
// rebuilt per attempt, each attempt carries its own timeout, and the caller's
// context cancels both in-flight requests and backoff waits.
func fetchBody(ctx context.Context, cfg AdapterConfig, provider Provider, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	attempt := func() ([]byte, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		request, err := build(attemptCtx)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("crm: %s request build failed: %w", provider, err))
		}

		response, err := cfg.HTTPClient.Do(request)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, redactTransportError(err))
		}
		defer response.Body.Close()

		body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, redactTransportError(err))
		}

		if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
			httpErr := newProviderHTTPError(provider, response.StatusCode, body)
			if !httpErr.Transient() {
				return nil, backoff.Permanent(httpErr)
			}
			return nil, httpErr
		}

		return body, nil
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, cfg.MaxRetries), ctx)

	return backoff.RetryWithData(attempt, policy)
}

// redactTransportError rebuilds a url.Error message with the request query
// string removed. Query-authenticated providers put the api token in the URL,
// and url.Error echoes the full URL, so the raw error must never reach logs
// or callers.
func redactTransportError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	target := urlErr.URL
	if parsed, parseErr := url.Parse(target); parseErr == nil {
		parsed.RawQuery = ""
		parsed.Fragment = ""
		target = parsed.String()
	} else if index := strings.IndexByte(target, '?'); index >= 0 {
		target = target[:index]
	}
	return fmt.Errorf("%s %q: %v", urlErr.Op, target, urlErr.Err)
}
