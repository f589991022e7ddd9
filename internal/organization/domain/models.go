// Package domain contains persistence models for tenants and their users.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a tenant.
type Organization struct {
	ID             snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name           string                      `gorm:"type:text;not null;uniqueIndex:ux_organizations_name" json:"name"`
	Slug           string                      `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	ContactEmail   string                      `gorm:"column:contact_email;type:text;not null" json:"contact_email"`
	Domain         string                      `gorm:"type:text" json:"domain"`
	SubscriptionID snowflake.ID                `gorm:"column:subscription_id;index" json:"subscription_id"`
	Services       datatypes.JSONSlice[string] `gorm:"type:json" json:"services"`
	CreatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// HasService reports whether the tenant is subscribed to a service capability.
func (o Organization) HasService(service string) bool {
	for _, s := range o.Services {
		if s == service {
			return true
		}
	}
	return false
}

// User is a human member of an organization. Try-on sessions are attributed
// to the first active user of the calling tenant.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)
