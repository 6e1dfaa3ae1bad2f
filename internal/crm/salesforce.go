package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultSalesforceInstanceURL = "https://na1.salesforce.com"
	salesforceAPIVersion         = "v59.0"
	// settingInstanceURL selects the tenant's Salesforce instance.
	settingInstanceURL = "instance_url"
)

// salesforceLeadQuery fetches the most recent leads first; the provider
// order is passed through unchanged.
const salesforceLeadQuery = "SELECT Id, FirstName, LastName, Email, Phone, CreatedDate " +
	"FROM Lead ORDER BY CreatedDate DESC LIMIT 100"

type salesforceQueryResponse struct {
	Records []salesforceLead `json:"records"`
}

type salesforceLead struct {
	ID          string `json:"Id"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Email       string `json:"Email"`
	Phone       string `json:"Phone"`
	CreatedDate string `json:"CreatedDate"`
}

// SalesforceAdapter fetches leads through the Salesforce REST query API
// using a bearer access token against the tenant's instance URL.
type SalesforceAdapter struct {
	cfg AdapterConfig
}

// NewSalesforceAdapter constructs a Salesforce adapter with defaults applied.
func NewSalesforceAdapter(cfg AdapterConfig) *SalesforceAdapter {
	return &SalesforceAdapter{cfg: cfg.withDefaults()}
}

// Provider returns the provider tag this adapter handles.
func (a *SalesforceAdapter) Provider() Provider {
	return ProviderSalesforce
}

// FetchContacts runs the lead SOQL query and normalizes the records.
func (a *SalesforceAdapter) FetchContacts(ctx context.Context, creds Credentials) ([]Contact, error) {
	instance := a.cfg.BaseURL
	if instance == "" {
		instance = creds.Setting(settingInstanceURL, defaultSalesforceInstanceURL)
	}
	instance = strings.TrimSuffix(instance, "/")

	body, err := fetchBody(ctx, a.cfg, ProviderSalesforce, func(ctx context.Context) (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/services/data/%s/query", instance, salesforceAPIVersion)
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		query := request.URL.Query()
		query.Set("q", salesforceLeadQuery)
		request.URL.RawQuery = query.Encode()
		request.Header.Set("Authorization", "Bearer "+creds.APIKey.Reveal())
		request.Header.Set("Accept", "application/json")
		return request, nil
	})
	if err != nil {
		return nil, err
	}

	var payload salesforceQueryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: salesforce: %v", ErrInvalidPayload, err)
	}
	if payload.Records == nil {
		return nil, fmt.Errorf("%w: salesforce: records missing", ErrInvalidPayload)
	}

	fetchedAt := a.cfg.Clock()
	contacts := make([]Contact, 0, len(payload.Records))
	for _, record := range payload.Records {
		contacts = append(contacts, Contact{
			ID:        strings.TrimSpace(record.ID),
			Name:      joinName(record.FirstName, record.LastName),
			Email:     strings.TrimSpace(record.Email),
			Phone:     strings.TrimSpace(record.Phone),
			Source:    ProviderSalesforce.String(),
			CreatedAt: firstNonEmpty(record.CreatedDate, fallbackTimestamp(fetchedAt)),
		})
	}
	return contacts, nil
}

var _ Connector = (*SalesforceAdapter)(nil)
