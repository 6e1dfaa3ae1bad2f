package crm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	errMissingResolver    = errors.New("credential resolver is required")
	errMissingConnectors  = errors.New("at least one connector is required")
	errDuplicateConnector = errors.New("duplicate connector for provider")
	errMissingPrincipal   = errors.New("principal identifier is required")
	noOpLogger            = zap.NewNop()
)

// ServiceError tags orchestration failures with an operation.reason code
// while preserving the wrapped cause for errors.Is checks.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "crm.service.new"
	opFetchContacts = "crm.fetch_contacts"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// DefaultPageLimit is applied when a caller omits or zeroes the limit.
const DefaultPageLimit = 100

// CredentialResolver yields a principal's CRM selection from the profile
// store. Implementations return ErrNotConfigured when the principal has no
// usable crm_type or api_key.
type CredentialResolver interface {
	Resolve(ctx context.Context, principalID string) (Credentials, error)
}

// Page is one caller-facing slice of a single provider's contact list.
type Page struct {
	Provider   Provider
	Contacts   []Contact
	TotalCount int
	HasMore    bool
}

// ServiceConfig bundles the aggregator's dependencies.
type ServiceConfig struct {
	Resolver   CredentialResolver
	Connectors []Connector
	Logger     *zap.Logger
}

// Service orchestrates one stateless pipeline per request: resolve the
// principal's credentials, dispatch to exactly one provider adapter, and
// paginate the normalized result in memory. No state is shared between
// invocations.
type Service struct {
	resolver   CredentialResolver
	connectors map[Provider]Connector
	logger     *zap.Logger
}

// NewService validates dependencies and builds the provider dispatch table.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, newServiceError(opServiceNew, "missing_resolver", errMissingResolver)
	}
	if len(cfg.Connectors) == 0 {
		return nil, newServiceError(opServiceNew, "missing_connectors", errMissingConnectors)
	}

	connectors := make(map[Provider]Connector, len(cfg.Connectors))
	for _, connector := range cfg.Connectors {
		if _, exists := connectors[connector.Provider()]; exists {
			return nil, newServiceError(opServiceNew, "duplicate_connector",
				fmt.Errorf("%w: %s", errDuplicateConnector, connector.Provider()))
		}
		connectors[connector.Provider()] = connector
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		resolver:   cfg.Resolver,
		connectors: connectors,
		logger:     logger,
	}, nil
}

// FetchContacts runs the aggregation pipeline for one principal. Resolution
// failures surface before any provider call; the selected adapter is invoked
// exactly once.
func (s *Service) FetchContacts(ctx context.Context, principalID string, limit, offset int) (Page, error) {
	if principalID == "" {
		return Page{}, newServiceError(opFetchContacts, "missing_principal", errMissingPrincipal)
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	creds, err := s.resolver.Resolve(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			s.logger.Info("crm not configured", zap.String("principal_id", principalID))
			return Page{}, newServiceError(opFetchContacts, "not_configured", err)
		}
		s.logError("resolve_failed", err, zap.String("principal_id", principalID))
		return Page{}, newServiceError(opFetchContacts, "resolve_failed", err)
	}

	connector, ok := s.connectors[creds.Provider]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnsupportedProvider, creds.Provider)
		s.logError("unsupported_provider", err, zap.String("principal_id", principalID))
		return Page{}, newServiceError(opFetchContacts, "unsupported_provider", err)
	}

	contacts, err := connector.FetchContacts(ctx, creds)
	if err != nil {
		s.logError("fetch_failed", err,
			zap.String("principal_id", principalID),
			zap.String("provider", creds.Provider.String()))
		return Page{}, newServiceError(opFetchContacts, "fetch_failed", err)
	}

	total := len(contacts)
	start := offset
	if start > total {
		start = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	s.logger.Debug("contacts fetched",
		zap.String("principal_id", principalID),
		zap.String("provider", creds.Provider.String()),
		zap.Int("total", total))

	return Page{
		Provider:   creds.Provider,
		Contacts:   contacts[start:end],
		TotalCount: total,
		HasMore:    offset+limit < total,
	}, nil
}

func (s *Service) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opFetchContacts),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("crm service error", attrs...)
}
