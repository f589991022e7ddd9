package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	apikeyrepo "github.com/optimosight/vto-gateway/internal/apikey/repository"
	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest"
	guestdomain "github.com/optimosight/vto-gateway/internal/guest/domain"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
)

const (
	testSuperAdminKey = "test-super-admin-key"
	testGuestKey      = "test-guest-key"
)

func setupResolver(t *testing.T) (*Resolver, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&apikeydomain.APIKey{},
		&guestdomain.GuestUsage{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		SuperAdminAPIKey: testSuperAdminKey,
		GuestAPIKey:      testGuestKey,
		GuestLimit:       200,
		GuestResetAfter:  24 * time.Hour,
	}

	tracker := guest.NewTracker(guest.TrackerParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg:   cfg,
	})

	resolver := NewResolver(ResolverParam{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     cfg,
		Keys:    apikeyrepo.Provide(db),
		Tracker: tracker,
	})
	return resolver, db, node
}

func testMeta() guest.Metadata {
	return guest.Metadata{
		IP:             "203.0.113.7",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
	}
}

func seedOrg(t *testing.T, db *gorm.DB, node *snowflake.Node, name string) orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:   node.Generate(),
		Name: name,
		Slug: name,
	}
	require.NoError(t, db.Create(&org).Error)
	return org
}

func seedKey(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, raw string, active bool, expires *time.Time) apikeydomain.APIKey {
	t.Helper()
	key := apikeydomain.APIKey{
		ID:        node.Generate(),
		OrgID:     orgID,
		KeyHash:   apikeydomain.HashAPIKey(raw),
		IsActive:  active,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	}
	require.NoError(t, db.Create(&key).Error)
	return key
}

func TestResolveMissingCredential(t *testing.T) {
	resolver, _, _ := setupResolver(t)

	_, err := resolver.Resolve(context.Background(), "", testMeta())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveGuestKey(t *testing.T) {
	resolver, _, _ := setupResolver(t)

	id, err := resolver.Resolve(context.Background(), testGuestKey, testMeta())
	require.NoError(t, err)
	assert.Equal(t, KindGuest, id.Kind)
	require.NotNil(t, id.Guest)
	assert.True(t, id.Guest.Created)
	assert.False(t, id.Metered())
}

func TestResolveSuperAdmin(t *testing.T) {
	resolver, db, node := setupResolver(t)

	// No organizations yet.
	_, err := resolver.Resolve(context.Background(), testSuperAdminKey, testMeta())
	assert.ErrorIs(t, err, ErrNoOrganizations)

	first := seedOrg(t, db, node, "acme")
	seedOrg(t, db, node, "globex")

	id, err := resolver.Resolve(context.Background(), testSuperAdminKey, testMeta())
	require.NoError(t, err)
	assert.Equal(t, KindSuperAdmin, id.Kind)
	assert.Equal(t, first.ID, id.OrgID)
	assert.False(t, id.Metered())
}

func TestResolveOrganizationKey(t *testing.T) {
	resolver, db, node := setupResolver(t)
	org := seedOrg(t, db, node, "acme")
	key := seedKey(t, db, node, org.ID, "raw-org-key", true, nil)

	id, err := resolver.Resolve(context.Background(), "raw-org-key", testMeta())
	require.NoError(t, err)
	assert.Equal(t, KindOrganizationKey, id.Kind)
	assert.Equal(t, org.ID, id.OrgID)
	assert.Equal(t, key.ID, id.KeyID)
	assert.True(t, id.Metered())
}

func TestResolveRejectsUnknownKey(t *testing.T) {
	resolver, db, node := setupResolver(t)
	org := seedOrg(t, db, node, "acme")
	seedKey(t, db, node, org.ID, "raw-org-key", true, nil)

	_, err := resolver.Resolve(context.Background(), "not-a-key", testMeta())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveRejectsInactiveAndExpiredKeys(t *testing.T) {
	resolver, db, node := setupResolver(t)
	org := seedOrg(t, db, node, "acme")

	seedKey(t, db, node, org.ID, "inactive-key", false, nil)
	_, err := resolver.Resolve(context.Background(), "inactive-key", testMeta())
	assert.ErrorIs(t, err, ErrInvalidCredential)

	past := time.Now().UTC().Add(-time.Hour)
	seedKey(t, db, node, org.ID, "expired-key", true, &past)
	_, err = resolver.Resolve(context.Background(), "expired-key", testMeta())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveRejectsOrphanedKey(t *testing.T) {
	resolver, db, node := setupResolver(t)
	seedKey(t, db, node, node.Generate(), "orphan-key", true, nil)

	_, err := resolver.Resolve(context.Background(), "orphan-key", testMeta())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
