// Package domain contains persistence models for subscription plans.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Plan is a subscription tier an organization can attach to.
type Plan struct {
	ID            snowflake.ID                 `gorm:"primaryKey" json:"id"`
	PlanName      string                       `gorm:"column:plan_name;type:text;not null;uniqueIndex:ux_subscriptions_plan_name" json:"plan_name"`
	Price         float64                      `gorm:"not null" json:"price"`
	APILimit      int64                        `gorm:"column:api_limit;not null" json:"api_limit"`
	BillingPeriod string                       `gorm:"column:billing_period;type:text;not null" json:"billing_period"`
	Features      datatypes.JSONMap            `gorm:"type:json" json:"features"`
	Services      datatypes.JSONSlice[string]  `gorm:"type:json" json:"services"`
	CreatedAt     time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "subscriptions" }
