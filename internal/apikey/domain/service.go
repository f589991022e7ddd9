package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Issue mints a fresh key for the organization and returns the raw
	// material once. Any previously active key stays active; use Rotate to
	// replace it.
	Issue(ctx context.Context, orgID snowflake.ID) (*Secret, error)
	// Rotate deactivates the organization's active keys and issues a new one.
	Rotate(ctx context.Context, orgID snowflake.ID) (*Secret, error)
	// Revoke deactivates a single key.
	Revoke(ctx context.Context, keyID snowflake.ID) error
	// ActiveForOrg returns the organization's active key record, nil if none.
	ActiveForOrg(ctx context.Context, orgID snowflake.ID) (*APIKey, error)
}

type Secret struct {
	KeyID  snowflake.ID `json:"key_id"`
	OrgID  snowflake.ID `json:"org_id"`
	APIKey string       `json:"api_key"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrKeyNotFound         = errors.New("key_not_found")
)
