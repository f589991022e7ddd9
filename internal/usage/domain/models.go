// Package domain contains the append-only usage ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageLog is one ledger row per metered proxied call. Rows are never
// mutated or deleted; organization quota checks count this table.
type UsageLog struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID      `gorm:"column:org_id;index" json:"org_id"`
	APIKeyID         snowflake.ID      `gorm:"column:api_key_id" json:"api_key_id,omitempty"`
	Endpoint         string            `gorm:"type:text;not null" json:"endpoint"`
	RequestData      datatypes.JSONMap `gorm:"column:request_data;type:json" json:"request_data"`
	ResponseStatus   int               `gorm:"column:response_status;not null" json:"response_status"`
	ProcessingTimeMS int64             `gorm:"column:processing_time_ms" json:"processing_time_ms"`
	Timestamp        time.Time         `gorm:"not null;index" json:"timestamp"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageLog) TableName() string { return "usage_logs" }

// TryonSession is the analytics row derived from one try-on interaction.
// Written alongside a UsageLog when an active user exists for the tenant.
type TryonSession struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID `gorm:"column:user_id;not null" json:"user_id"`
	OrgID           snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	ImageURL        string       `gorm:"column:image_url;type:text" json:"image_url,omitempty"`
	DurationSeconds int64        `gorm:"column:duration_seconds;not null" json:"duration_seconds"`
	DeviceType      string       `gorm:"column:device_type;type:text" json:"device_type"`
	Country         string       `gorm:"type:text" json:"country,omitempty"`
	ProductName     string       `gorm:"column:product_name;type:text" json:"product_name"`
	Category        string       `gorm:"type:text" json:"category"`
	Converted       bool         `gorm:"not null;default:false" json:"converted"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TryonSession) TableName() string { return "tryon_sessions" }
