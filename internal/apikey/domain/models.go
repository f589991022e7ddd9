// Package domain contains persistence models for organization API keys.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores hashed API credentials scoped to an organization. Keys are
// deactivated on rotation, never physically deleted.
type APIKey struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	KeyHash   string       `gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_api_keys_key_hash" json:"-"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt *time.Time   `gorm:"column:expires_at" json:"expires_at,omitempty"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Expired reports whether the key has an elapsed expiry.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
