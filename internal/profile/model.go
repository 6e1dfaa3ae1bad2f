package profile

import (
	"time"
)

// CRMProfile persists one principal's CRM selection. The api_key column is
// an opaque secret written by the settings UI; it is loaded into a redacting
// handle and never logged.
type CRMProfile struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	UserID       string    `gorm:"column:user_id;size:190;uniqueIndex;not null"`
	CRMType      string    `gorm:"column:crm_type;size:32"`
	APIKey       string    `gorm:"column:api_key;size:512"`
	SettingsJSON string    `gorm:"column:crm_settings;size:4096"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing CRM profiles.
func (CRMProfile) TableName() string {
	return "crm_profiles"
}
