package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultPipedriveDomain = "api"
	pipedriveDomainSuffix  = ".pipedrive.com"
	// settingCompanyDomain selects the tenant's Pipedrive subdomain.
	settingCompanyDomain = "company_domain"
)

type pipedrivePersonsResponse struct {
	Success bool              `json:"success"`
	Data    []pipedrivePerson `json:"data"`
}

type pipedrivePerson struct {
	ID      json.Number            `json:"id"`
	Name    string                 `json:"name"`
	Email   []pipedriveContactInfo `json:"email"`
	Phone   []pipedriveContactInfo `json:"phone"`
	AddTime string                 `json:"add_time"`
}

type pipedriveContactInfo struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// primaryValue picks the entry marked primary, falling back to the first
// non-empty value.
func primaryValue(entries []pipedriveContactInfo) string {
	for _, entry := range entries {
		if entry.Primary && strings.TrimSpace(entry.Value) != "" {
			return strings.TrimSpace(entry.Value)
		}
	}
	for _, entry := range entries {
		if trimmed := strings.TrimSpace(entry.Value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// PipedriveAdapter fetches persons from the Pipedrive v1 API. Pipedrive
// authenticates through an api_token query parameter rather than a header,
// so request URLs must never be logged.
type PipedriveAdapter struct {
	cfg AdapterConfig
}

// NewPipedriveAdapter constructs a Pipedrive adapter with defaults applied.
func NewPipedriveAdapter(cfg AdapterConfig) *PipedriveAdapter {
	return &PipedriveAdapter{cfg: cfg.withDefaults()}
}

// Provider returns the provider tag this adapter handles.
func (a *PipedriveAdapter) Provider() Provider {
	return ProviderPipedrive
}

// FetchContacts retrieves the first page of persons, newest first, and
// normalizes them into canonical Contacts.
func (a *PipedriveAdapter) FetchContacts(ctx context.Context, creds Credentials) ([]Contact, error) {
	base := a.cfg.BaseURL
	if base == "" {
		base = "https://" + creds.Setting(settingCompanyDomain, defaultPipedriveDomain) + pipedriveDomainSuffix
	}
	base = strings.TrimSuffix(base, "/")

	body, err := fetchBody(ctx, a.cfg, ProviderPipedrive, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/persons", nil)
		if err != nil {
			return nil, err
		}
		query := request.URL.Query()
		query.Set("limit", strconv.Itoa(maxProviderPageSize))
		query.Set("sort", "add_time DESC")
		query.Set("api_token", creds.APIKey.Reveal())
		request.URL.RawQuery = query.Encode()
		request.Header.Set("Accept", "application/json")
		return request, nil
	})
	if err != nil {
		return nil, err
	}

	var payload pipedrivePersonsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: pipedrive: %v", ErrInvalidPayload, err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("%w: pipedrive: success flag not set", ErrInvalidPayload)
	}

	// Pipedrive reports an empty person list as data: null.
	fetchedAt := a.cfg.Clock()
	contacts := make([]Contact, 0, len(payload.Data))
	for _, person := range payload.Data {
		contacts = append(contacts, Contact{
			ID:        person.ID.String(),
			Name:      strings.TrimSpace(person.Name),
			Email:     primaryValue(person.Email),
			Phone:     primaryValue(person.Phone),
			Source:    ProviderPipedrive.String(),
			CreatedAt: firstNonEmpty(person.AddTime, fallbackTimestamp(fetchedAt)),
		})
	}
	return contacts, nil
}

var _ Connector = (*PipedriveAdapter)(nil)
