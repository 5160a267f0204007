package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	VendorOpenAI    = "openai"
	VendorAnthropic = "anthropic"
	VendorGoogle    = "google"
)

// CatalogVendor is an AI vendor a user may bring their own key for.
type CatalogVendor struct {
	Vendor      string `json:"vendor"`
	DisplayName string `json:"display_name"`
}

func Catalog() []CatalogVendor {
	return []CatalogVendor{
		{Vendor: VendorAnthropic, DisplayName: "Anthropic"},
		{Vendor: VendorGoogle, DisplayName: "Google Gemini"},
		{Vendor: VendorOpenAI, DisplayName: "OpenAI"},
	}
}

func SupportedVendor(vendor string) bool {
	switch vendor {
	case VendorOpenAI, VendorAnthropic, VendorGoogle:
		return true
	default:
		return false
	}
}

// VendorOf maps a cost-table provider id such as "openai-gpt5" to its vendor.
func VendorOf(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if idx := strings.Index(provider, "-"); idx > 0 {
		return provider[:idx]
	}
	return provider
}

// ProviderKey is a user's private API key, stored encrypted.
type ProviderKey struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID   `json:"user_id" gorm:"not null;uniqueIndex:ux_provider_keys_user_vendor,priority:1"`
	Vendor    string         `json:"vendor" gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_keys_user_vendor,priority:2"`
	Secret    datatypes.JSON `json:"-" gorm:"not null"`
	Hint      string         `json:"hint" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (ProviderKey) TableName() string { return "provider_keys" }
