package identity

import (
	"context"
	"crypto/subtle"
	"time"

	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	apikeyrepo "github.com/optimosight/vto-gateway/internal/apikey/repository"
	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Keys    *apikeyrepo.Repository
	Tracker *guest.Tracker
}

// Resolver turns a raw credential into a caller identity.
type Resolver struct {
	db      *gorm.DB
	log     *zap.Logger
	tracker *guest.Tracker
	keys    *apikeyrepo.Repository

	superAdminKey string
	guestKey      string
}

func NewResolver(p ResolverParam) *Resolver {
	return &Resolver{
		db:            p.DB,
		log:           p.Log.Named("identity.resolver"),
		tracker:       p.Tracker,
		keys:          p.Keys,
		superAdminKey: p.Cfg.SuperAdminAPIKey,
		guestKey:      p.Cfg.GuestAPIKey,
	}
}

// Resolve classifies the credential. meta is only consulted for guest
// callers. The empty credential fails ErrUnauthenticated; anything unknown,
// inactive, expired, or orphaned fails ErrInvalidCredential.
func (r *Resolver) Resolve(ctx context.Context, credential string, meta guest.Metadata) (*Identity, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	if r.isGuestKey(credential) {
		res, err := r.tracker.ResolveOrCreate(ctx, meta)
		if err != nil {
			return nil, err
		}
		return &Identity{Kind: KindGuest, Guest: res}, nil
	}

	if r.isSuperAdminKey(credential) {
		// Super-admin calls are attributed to an arbitrary organization so
		// downstream proxying has a scoping context. They are never metered.
		org, err := r.firstOrganization(ctx)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, ErrNoOrganizations
		}
		return &Identity{Kind: KindSuperAdmin, OrgID: org.ID}, nil
	}

	key, err := r.keys.FindActiveByHash(ctx, apikeydomain.HashAPIKey(credential), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if key == nil {
		r.log.Warn("invalid api key attempt")
		return nil, ErrInvalidCredential
	}

	org, err := r.organizationByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if org == nil {
		r.log.Warn("api key references missing organization",
			zap.String("key_id", key.ID.String()),
			zap.String("org_id", key.OrgID.String()),
		)
		return nil, ErrInvalidCredential
	}

	return &Identity{Kind: KindOrganizationKey, OrgID: org.ID, KeyID: key.ID}, nil
}

func (r *Resolver) isGuestKey(credential string) bool {
	return r.guestKey != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(r.guestKey)) == 1
}

func (r *Resolver) isSuperAdminKey(credential string) bool {
	return r.superAdminKey != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(r.superAdminKey)) == 1
}

func (r *Resolver) firstOrganization(ctx context.Context) (*orgdomain.Organization, error) {
	var orgs []orgdomain.Organization
	err := r.db.WithContext(ctx).Order("id").Limit(1).Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (r *Resolver) organizationByID(ctx context.Context, key *apikeydomain.APIKey) (*orgdomain.Organization, error) {
	var orgs []orgdomain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", key.OrgID).Limit(1).Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

// Module wires the identity resolver.
var Module = fx.Module("identity.resolver",
	fx.Provide(NewResolver),
)
