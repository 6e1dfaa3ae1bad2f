package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const defaultHubSpotBaseURL = "https://api.hubapi.com"

// hubspotContactsResponse mirrors the HubSpot CRM v3 contact listing.
type hubspotContactsResponse struct {
	Results []hubspotContact `json:"results"`
}

type hubspotContact struct {
	ID         string            `json:"id"`
	CreatedAt  string            `json:"createdAt"`
	Properties hubspotProperties `json:"properties"`
}

type hubspotProperties struct {
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	CreateDate string `json:"createdate"`
}

// HubSpotAdapter fetches contacts from the HubSpot CRM v3 API using a
// bearer private-app token.
type HubSpotAdapter struct {
	cfg AdapterConfig
}

// NewHubSpotAdapter constructs a HubSpot adapter with defaults applied.
func NewHubSpotAdapter(cfg AdapterConfig) *HubSpotAdapter {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHubSpotBaseURL
	}
	return &HubSpotAdapter{cfg: cfg}
}

// Provider returns the provider tag this adapter handles.
func (a *HubSpotAdapter) Provider() Provider {
	return ProviderHubSpot
}

// FetchContacts retrieves the first page of HubSpot contacts and normalizes
// them into canonical Contacts.
func (a *HubSpotAdapter) FetchContacts(ctx context.Context, creds Credentials) ([]Contact, error) {
	body, err := fetchBody(ctx, a.cfg, ProviderHubSpot, func(ctx context.Context) (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/crm/v3/objects/contacts", nil)
		if err != nil {
			return nil, err
		}
		query := request.URL.Query()
		query.Set("limit", strconv.Itoa(maxProviderPageSize))
		query.Set("properties", "firstname,lastname,email,phone,createdate")
		request.URL.RawQuery = query.Encode()
		request.Header.Set("Authorization", "Bearer "+creds.APIKey.Reveal())
		request.Header.Set("Accept", "application/json")
		return request, nil
	})
	if err != nil {
		return nil, err
	}

	var payload hubspotContactsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: hubspot: %v", ErrInvalidPayload, err)
	}
	if payload.Results == nil {
		return nil, fmt.Errorf("%w: hubspot: results missing", ErrInvalidPayload)
	}

	fetchedAt := a.cfg.Clock()
	contacts := make([]Contact, 0, len(payload.Results))
	for _, raw := range payload.Results {
		contacts = append(contacts, Contact{
			ID:        strings.TrimSpace(raw.ID),
			Name:      joinName(raw.Properties.FirstName, raw.Properties.LastName),
			Email:     strings.TrimSpace(raw.Properties.Email),
			Phone:     strings.TrimSpace(raw.Properties.Phone),
			Source:    ProviderHubSpot.String(),
			CreatedAt: firstNonEmpty(raw.Properties.CreateDate, raw.CreatedAt, fallbackTimestamp(fetchedAt)),
		})
	}
	return contacts, nil
}

var _ Connector = (*HubSpotAdapter)(nil)
