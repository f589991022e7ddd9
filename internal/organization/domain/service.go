package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, id string) (*Summary, error)
	RotateKey(ctx context.Context, id string) (*RotateKeyResponse, error)
}

type CreateRequest struct {
	Name           string   `json:"name"`
	ContactEmail   string   `json:"contact_email"`
	Domain         string   `json:"domain"`
	SubscriptionID string   `json:"subscription_id"`
	Services       []string `json:"services"`
	AdminName      string   `json:"admin_name"`
}

// CreateResponse carries the raw API key. It is shown exactly once.
type CreateResponse struct {
	Organization Organization `json:"organization"`
	APIKey       string       `json:"api_key"`
	AdminUserID  snowflake.ID `json:"admin_user_id"`
}

type Summary struct {
	Organization
	PlanName   string       `json:"plan_name"`
	APILimit   int64        `json:"api_limit"`
	UsageCount int64        `json:"usage_count"`
	APIKeyID   snowflake.ID `json:"api_key_id,omitempty"`
	KeyIssued  *time.Time   `json:"key_issued_at,omitempty"`
}

type RotateKeyResponse struct {
	OrgID  snowflake.ID `json:"org_id"`
	KeyID  snowflake.ID `json:"key_id"`
	APIKey string       `json:"api_key"`
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrOrgExists    = errors.New("organization_exists")
	ErrNotFound     = errors.New("organization_not_found")
)
