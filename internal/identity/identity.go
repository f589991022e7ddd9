// Package identity classifies inbound credentials into caller identities.
package identity

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/optimosight/vto-gateway/internal/guest"
)

// Kind discriminates the caller classes.
type Kind string

const (
	// KindSuperAdmin is the unrestricted operator identity. Never metered.
	KindSuperAdmin Kind = "super_admin"
	// KindOrganizationKey is a paying tenant. Metered against its plan.
	KindOrganizationKey Kind = "organization_key"
	// KindGuest is an anonymous fingerprinted caller on the rolling quota.
	KindGuest Kind = "guest"
)

// Identity is the resolved caller for one request. Exactly one kind is
// produced per request and resolution is deterministic for a credential.
type Identity struct {
	Kind Kind

	// OrgID carries the scoping organization. For super-admin it is only
	// proxy context (attributed to an arbitrary organization), never used
	// for metering.
	OrgID snowflake.ID

	// KeyID is set for organization-key callers only.
	KeyID snowflake.ID

	// Guest is set for guest callers only.
	Guest *guest.Resolution
}

// Metered reports whether usage for this caller is written to the ledger.
// Only paying organizations are metered.
func (id *Identity) Metered() bool {
	return id.Kind == KindOrganizationKey
}

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrNoOrganizations   = errors.New("no_organizations")
)
