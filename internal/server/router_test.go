package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/leadcopy/backend/internal/crm"
	"github.com/leadcopy/backend/internal/profile"
)

type stubVerifier struct {
	principal string
	err       error
}

func (v stubVerifier) ValidateToken(token string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return v.principal, nil
}

type stubAggregator struct {
	page      crm.Page
	err       error
	calls     int
	gotLimit  int
	gotOffset int
}

func (a *stubAggregator) FetchContacts(ctx context.Context, principalID string, limit, offset int) (crm.Page, error) {
	a.calls++
	a.gotLimit = limit
	a.gotOffset = offset
	if a.err != nil {
		return crm.Page{}, a.err
	}
	return a.page, nil
}

type stubProfileWriter struct {
	err       error
	gotTag    string
	gotAPIKey string
}

func (w *stubProfileWriter) Upsert(ctx context.Context, principalID, rawProvider, apiKey string, settings map[string]string) error {
	w.gotTag = rawProvider
	w.gotAPIKey = apiKey
	return w.err
}

func newTestRouter(t *testing.T, verifier TokenVerifier, aggregator ContactAggregator, profiles ProfileWriter) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler, err := NewHTTPHandler(Dependencies{
		TokenVerifier: verifier,
		Aggregator:    aggregator,
		ProfileStore:  profiles,
	})
	if err != nil {
		t.Fatalf("NewHTTPHandler failed: %v", err)
	}
	return handler
}

func doFetch(t *testing.T, handler http.Handler, authorization, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	request := httptest.NewRequest(http.MethodPost, "/api/contacts/fetch", reader)
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

type failureEnvelope struct {
	Error    string        `json:"error"`
	Details  string        `json:"details"`
	Contacts []crm.Contact `json:"contacts"`
}

func decodeFailure(t *testing.T, recorder *httptest.ResponseRecorder) failureEnvelope {
	t.Helper()
	var envelope failureEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding failure envelope: %v (%s)", err, recorder.Body.String())
	}
	return envelope
}

func TestFetchContactsRequiresBearerToken(t *testing.T) {
	aggregator := &stubAggregator{}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "", `{}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if aggregator.calls != 0 {
		t.Fatalf("unauthenticated request must not reach the aggregator")
	}
}

func TestFetchContactsRejectsInvalidToken(t *testing.T) {
	handler := newTestRouter(t, stubVerifier{err: fmt.Errorf("bad signature")}, &stubAggregator{}, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer nope", `{}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	envelope := decodeFailure(t, recorder)
	if envelope.Error == "" {
		t.Fatalf("expected error message in envelope")
	}
	if envelope.Contacts == nil || len(envelope.Contacts) != 0 {
		t.Fatalf("failure envelope must carry an empty contacts array")
	}
}

func TestFetchContactsSuccessEnvelope(t *testing.T) {
	aggregator := &stubAggregator{page: crm.Page{
		Provider: crm.ProviderHubSpot,
		Contacts: []crm.Contact{
			{ID: "1", Name: "Jane Doe", Email: "jane@example.com", Phone: "", Source: "hubspot", CreatedAt: "2026-04-01T10:00:00Z"},
		},
		TotalCount: 2,
		HasMore:    true,
	}}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", `{"limit": 1, "offset": 0}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response fetchResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !response.Success || response.CRMType != "hubspot" {
		t.Fatalf("unexpected envelope: %+v", response)
	}
	if len(response.Contacts) != 1 || response.TotalCount != 2 || !response.HasMore {
		t.Fatalf("unexpected pagination fields: %+v", response)
	}
	if aggregator.gotLimit != 1 || aggregator.gotOffset != 0 {
		t.Fatalf("pagination parameters not forwarded: limit=%d offset=%d", aggregator.gotLimit, aggregator.gotOffset)
	}
}

func TestFetchContactsEmptyBodyUsesDefaults(t *testing.T) {
	aggregator := &stubAggregator{page: crm.Page{Provider: crm.ProviderSalesforce, Contacts: []crm.Contact{}}}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if aggregator.gotLimit != crm.DefaultPageLimit || aggregator.gotOffset != 0 {
		t.Fatalf("expected defaults, got limit=%d offset=%d", aggregator.gotLimit, aggregator.gotOffset)
	}

	var response fetchResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.Contacts == nil {
		t.Fatalf("empty result must serialize as [], not null")
	}
	if response.TotalCount != 0 || response.HasMore {
		t.Fatalf("unexpected empty-result envelope: %+v", response)
	}
}

func TestFetchContactsNotConfiguredReturns400(t *testing.T) {
	aggregator := &stubAggregator{err: fmt.Errorf("crm.fetch_contacts.not_configured: %w", crm.ErrNotConfigured)}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", `{}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	envelope := decodeFailure(t, recorder)
	if !strings.Contains(envelope.Error, "profile settings") {
		t.Fatalf("expected instruction-style message, got %q", envelope.Error)
	}
	if len(envelope.Contacts) != 0 || envelope.Contacts == nil {
		t.Fatalf("expected empty contacts array, got %+v", envelope.Contacts)
	}
}

func TestFetchContactsProviderHTTPErrorReturns500(t *testing.T) {
	cause := &crm.ProviderHTTPError{Provider: crm.ProviderPipedrive, StatusCode: http.StatusForbidden, Body: "forbidden"}
	aggregator := &stubAggregator{err: fmt.Errorf("crm.fetch_contacts.fetch_failed: %w", cause)}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", `{}`)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	envelope := decodeFailure(t, recorder)
	if envelope.Error == "" {
		t.Fatalf("expected non-empty error message")
	}
	if !strings.Contains(envelope.Details, "403") {
		t.Fatalf("expected provider status in details, got %q", envelope.Details)
	}
	if len(envelope.Contacts) != 0 || envelope.Contacts == nil {
		t.Fatalf("expected empty contacts array")
	}
}

func TestFetchContactsUnsupportedProviderReturns500(t *testing.T) {
	aggregator := &stubAggregator{err: fmt.Errorf("crm.fetch_contacts.unsupported_provider: %w", crm.ErrUnsupportedProvider)}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", `{}`)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	if envelope := decodeFailure(t, recorder); envelope.Error == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestFetchContactsMalformedBodyReturns400(t *testing.T) {
	aggregator := &stubAggregator{}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, aggregator, &stubProfileWriter{})

	recorder := doFetch(t, handler, "Bearer good", `{"limit": "ten"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if aggregator.calls != 0 {
		t.Fatalf("malformed body must not reach the aggregator")
	}
}

func TestUpsertProfileRoundTrip(t *testing.T) {
	profiles := &stubProfileWriter{}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, &stubAggregator{}, profiles)

	body := `{"crm_type": "pipedrive", "api_key": "pd-key", "crm_settings": {"company_domain": "acme"}}`
	request := httptest.NewRequest(http.MethodPut, "/api/profile/crm", strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer good")
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if profiles.gotTag != "pipedrive" || profiles.gotAPIKey != "pd-key" {
		t.Fatalf("upsert payload not forwarded: %+v", profiles)
	}
	if strings.Contains(recorder.Body.String(), "pd-key") {
		t.Fatalf("response must not echo the api key")
	}
}

func TestUpsertProfileRejectsInvalidInput(t *testing.T) {
	profiles := &stubProfileWriter{err: fmt.Errorf("%w: unsupported tag", profile.ErrInvalidInput)}
	handler := newTestRouter(t, stubVerifier{principal: "agent-1"}, &stubAggregator{}, profiles)

	body := `{"crm_type": "zoho", "api_key": "k"}`
	request := httptest.NewRequest(http.MethodPut, "/api/profile/crm", strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer good")
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}
