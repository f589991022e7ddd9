// Package domain contains the persistence model for anonymous guest usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// GuestUsage is the rolling usage record for one fingerprinted anonymous
// caller. Records are matched by fingerprint hash with an IP fallback and are
// never deleted.
type GuestUsage struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	FingerprintHash string       `gorm:"column:fingerprint_hash;type:varchar(64);index" json:"fingerprint_hash"`
	IPAddress       string       `gorm:"column:ip_address;type:varchar(45);index" json:"ip_address"`
	UserAgentHash   string       `gorm:"column:user_agent_hash;type:varchar(64)" json:"user_agent_hash"`
	UsageCount      int          `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	FirstVisit      time.Time    `gorm:"column:first_visit;not null" json:"first_visit"`
	LastVisit       time.Time    `gorm:"column:last_visit;not null" json:"last_visit"`
	IsBlocked       bool         `gorm:"column:is_blocked;not null;default:false" json:"is_blocked"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (GuestUsage) TableName() string { return "guest_usage" }
