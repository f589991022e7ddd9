package quota

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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest"
	guestdomain "github.com/optimosight/vto-gateway/internal/guest/domain"
	"github.com/optimosight/vto-gateway/internal/identity"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	usagedomain "github.com/optimosight/vto-gateway/internal/usage/domain"
)

func setupEnforcer(t *testing.T, guestLimit int) (*Enforcer, *guest.Tracker, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&subscriptiondomain.Plan{},
		&usagedomain.UsageLog{},
		&guestdomain.GuestUsage{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		GuestLimit:      guestLimit,
		GuestResetAfter: 24 * time.Hour,
		RequiredService: "vto_makeup",
		DefaultAPILimit: 10000,
	}

	tracker := guest.NewTracker(guest.TrackerParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg:   cfg,
	})

	enforcer := NewEnforcer(EnforcerParam{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     cfg,
		Tracker: tracker,
	})
	return enforcer, tracker, db, node
}

func planWithLimit(t *testing.T, db *gorm.DB, node *snowflake.Node, limit int64) subscriptiondomain.Plan {
	t.Helper()
	plan := subscriptiondomain.Plan{
		ID:            node.Generate(),
		PlanName:      fmt.Sprintf("plan-%d", limit),
		APILimit:      limit,
		BillingPeriod: "monthly",
	}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

func orgWithPlan(t *testing.T, db *gorm.DB, node *snowflake.Node, planID snowflake.ID, services []string) orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:             node.Generate(),
		Name:           fmt.Sprintf("org-%d", node.Generate()),
		SubscriptionID: planID,
		Services:       datatypes.NewJSONSlice(services),
	}
	require.NoError(t, db.Create(&org).Error)
	return org
}

func appendUsage(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		row := usagedomain.UsageLog{
			ID:             node.Generate(),
			OrgID:          orgID,
			Endpoint:       "/api/vto/upload",
			ResponseStatus: 200,
			Timestamp:      time.Now().UTC(),
		}
		require.NoError(t, db.Create(&row).Error)
	}
}

func orgIdentity(org orgdomain.Organization, node *snowflake.Node) *identity.Identity {
	return &identity.Identity{
		Kind:  identity.KindOrganizationKey,
		OrgID: org.ID,
		KeyID: node.Generate(),
	}
}

func TestCheckSuperAdminAlwaysAllowed(t *testing.T) {
	enforcer, _, _, _ := setupEnforcer(t, 200)

	err := enforcer.Check(context.Background(), &identity.Identity{Kind: identity.KindSuperAdmin})
	assert.NoError(t, err)
}

func TestCheckOrganizationUnderLimit(t *testing.T) {
	enforcer, _, db, node := setupEnforcer(t, 200)
	plan := planWithLimit(t, db, node, 3)
	org := orgWithPlan(t, db, node, plan.ID, []string{"vto_makeup"})
	appendUsage(t, db, node, org.ID, 2)

	err := enforcer.Check(context.Background(), orgIdentity(org, node))
	assert.NoError(t, err)
}

func TestCheckOrganizationAtLimit(t *testing.T) {
	enforcer, _, db, node := setupEnforcer(t, 200)
	plan := planWithLimit(t, db, node, 3)
	org := orgWithPlan(t, db, node, plan.ID, []string{"vto_makeup"})
	appendUsage(t, db, node, org.ID, 3)

	err := enforcer.Check(context.Background(), orgIdentity(org, node))
	exceeded := AsExceeded(err)
	require.NotNil(t, exceeded)
	assert.Equal(t, int64(3), exceeded.UsageCount)
	assert.Equal(t, int64(3), exceeded.Limit)
	assert.Equal(t, int64(0), exceeded.Remaining())
	assert.Nil(t, exceeded.ResetTime)
	assert.Equal(t, "API rate limit exceeded", exceeded.Message)
}

func TestCheckOrganizationMissingService(t *testing.T) {
	enforcer, _, db, node := setupEnforcer(t, 200)
	plan := planWithLimit(t, db, node, 100)
	org := orgWithPlan(t, db, node, plan.ID, []string{"analytics"})

	err := enforcer.Check(context.Background(), orgIdentity(org, node))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckOrganizationMissingOrg(t *testing.T) {
	enforcer, _, _, node := setupEnforcer(t, 200)

	err := enforcer.Check(context.Background(), &identity.Identity{
		Kind:  identity.KindOrganizationKey,
		OrgID: node.Generate(),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckOrganizationDefaultLimitWithoutPlan(t *testing.T) {
	enforcer, _, db, node := setupEnforcer(t, 200)
	org := orgWithPlan(t, db, node, 0, []string{"vto_makeup"})
	appendUsage(t, db, node, org.ID, 5)

	// Falls back to the generous default limit, so 5 events pass.
	err := enforcer.Check(context.Background(), orgIdentity(org, node))
	assert.NoError(t, err)
}

func guestResolution(t *testing.T, tracker *guest.Tracker, db *gorm.DB) *guest.Resolution {
	t.Helper()
	res, err := tracker.ResolveOrCreate(context.Background(), guest.Metadata{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	return res
}

func TestCheckGuestUnderLimit(t *testing.T) {
	enforcer, tracker, db, _ := setupEnforcer(t, 200)
	res := guestResolution(t, tracker, db)
	res.Record.UsageCount = 199

	err := enforcer.Check(context.Background(), &identity.Identity{Kind: identity.KindGuest, Guest: res})
	assert.NoError(t, err)
}

func TestCheckGuestAtLimit(t *testing.T) {
	enforcer, tracker, db, _ := setupEnforcer(t, 200)
	res := guestResolution(t, tracker, db)
	res.Record.UsageCount = 200
	res.SeenAt = time.Now().UTC().Add(-time.Hour)
	res.Created = false

	err := enforcer.Check(context.Background(), &identity.Identity{Kind: identity.KindGuest, Guest: res})
	exceeded := AsExceeded(err)
	require.NotNil(t, exceeded)
	assert.Equal(t, int64(200), exceeded.UsageCount)
	assert.Equal(t, int64(0), exceeded.Remaining())
	require.NotNil(t, exceeded.ResetTime)
	assert.WithinDuration(t, res.Record.LastVisit.Add(24*time.Hour), *exceeded.ResetTime, time.Second)
}

func TestCheckGuestStaleWindowResets(t *testing.T) {
	enforcer, tracker, db, _ := setupEnforcer(t, 200)
	res := guestResolution(t, tracker, db)
	res.Record.UsageCount = 200
	res.SeenAt = time.Now().UTC().Add(-25 * time.Hour)
	res.Created = false

	err := enforcer.Check(context.Background(), &identity.Identity{Kind: identity.KindGuest, Guest: res})
	assert.NoError(t, err)
	assert.Equal(t, 0, res.Record.UsageCount)

	var stored guestdomain.GuestUsage
	require.NoError(t, db.First(&stored, "id = ?", res.Record.ID).Error)
	assert.Equal(t, 0, stored.UsageCount)
}

func TestCheckGuestBlocked(t *testing.T) {
	enforcer, tracker, db, _ := setupEnforcer(t, 200)
	res := guestResolution(t, tracker, db)
	res.Record.IsBlocked = true

	err := enforcer.Check(context.Background(), &identity.Identity{Kind: identity.KindGuest, Guest: res})
	assert.ErrorIs(t, err, ErrForbidden)
}
