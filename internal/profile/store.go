package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadcopy/backend/internal/crm"
)

var (
	// ErrInvalidInput indicates an upsert with an unusable field.
	ErrInvalidInput = errors.New("profile: invalid input")

	errMissingDatabase = errors.New("profile: database connection required")
)

// StoreConfig describes the dependencies of the profile store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store reads and writes per-principal CRM profiles and implements the
// credential resolver consumed by the aggregation service.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs the profile store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, now: clock}, nil
}

// Resolve returns the principal's CRM credentials. A missing row, crm_type,
// or api_key yields crm.ErrNotConfigured so the caller fails before any
// provider call is attempted. The stored tag is normalized but not
// validated here; dispatch rejects tags outside the supported set.
func (s *Store) Resolve(ctx context.Context, principalID string) (crm.Credentials, error) {
	if strings.TrimSpace(principalID) == "" {
		return crm.Credentials{}, fmt.Errorf("%w: empty principal id", ErrInvalidInput)
	}

	var record CRMProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", principalID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return crm.Credentials{}, crm.ErrNotConfigured
	}
	if err != nil {
		return crm.Credentials{}, fmt.Errorf("profile: lookup failed: %w", err)
	}

	crmType := strings.ToLower(strings.TrimSpace(record.CRMType))
	if crmType == "" || strings.TrimSpace(record.APIKey) == "" {
		return crm.Credentials{}, crm.ErrNotConfigured
	}

	return crm.Credentials{
		Provider: crm.Provider(crmType),
		APIKey:   crm.NewAPIKey(record.APIKey),
		Settings: decodeSettings(record.SettingsJSON),
	}, nil
}

// Upsert stores or replaces the principal's CRM selection. The provider tag
// is validated here so unsupported tags are rejected at write time.
func (s *Store) Upsert(ctx context.Context, principalID, rawProvider, apiKey string, settings map[string]string) error {
	if strings.TrimSpace(principalID) == "" {
		return fmt.Errorf("%w: empty principal id", ErrInvalidInput)
	}
	provider, err := crm.ParseProvider(rawProvider)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("%w: empty api key", ErrInvalidInput)
	}

	settingsJSON, err := encodeSettings(settings)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var record CRMProfile
	err = s.db.WithContext(ctx).Where("user_id = ?", principalID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = CRMProfile{
			ID:           uuid.NewString(),
			UserID:       principalID,
			CRMType:      provider.String(),
			APIKey:       apiKey,
			SettingsJSON: settingsJSON,
			CreatedAt:    s.now(),
			UpdatedAt:    s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			return fmt.Errorf("profile: create failed: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("profile: lookup failed: %w", err)
	}

	updates := map[string]interface{}{
		"crm_type":     provider.String(),
		"api_key":      apiKey,
		"crm_settings": settingsJSON,
		"updated_at":   s.now(),
	}
	if err := s.db.WithContext(ctx).Model(&CRMProfile{}).
		Where("user_id = ?", principalID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("profile: update failed: %w", err)
	}
	return nil
}

func decodeSettings(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}
	}
	settings := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return map[string]string{}
	}
	return settings
}

func encodeSettings(settings map[string]string) (string, error) {
	if len(settings) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

var _ crm.CredentialResolver = (*Store)(nil)
