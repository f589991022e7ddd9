package usage

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

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/identity"
	"github.com/optimosight/vto-gateway/internal/observability/metrics"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/usage/domain"
)

func setupRecorder(t *testing.T) (*Recorder, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.User{},
		&domain.UsageLog{},
		&domain.TryonSession{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	recorder := NewRecorder(RecorderParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Endpoints: config.NewStaticEndpointsHolder(config.DefaultMonitoredEndpoints()),
		Metrics:   metrics.New(nil),
	})
	return recorder, db, node
}

func seedActiveUser(t *testing.T, db *gorm.DB, node *snowflake.Node, orgID snowflake.ID) orgdomain.User {
	t.Helper()
	user := orgdomain.User{
		ID:       node.Generate(),
		OrgID:    orgID,
		Name:     "Admin",
		Email:    fmt.Sprintf("admin+%d@example.com", node.Generate()),
		Role:     orgdomain.RoleAdmin,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func orgEvent(orgID, keyID snowflake.ID, endpoint string, data map[string]any) Event {
	return Event{
		Identity: identity.Identity{
			Kind:  identity.KindOrganizationKey,
			OrgID: orgID,
			KeyID: keyID,
		},
		Endpoint:       endpoint,
		RequestData:    data,
		ResponseStatus: 200,
		ProcessingTime: 2500 * time.Millisecond,
		UserAgent:      "Mozilla/5.0 (Macintosh)",
		Country:        "DE",
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func TestRecordWritesLedgerAndSession(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	user := seedActiveUser(t, db, node, orgID)

	recorder.Record(context.Background(), orgEvent(orgID, node.Generate(), "/api/vto/upload", map[string]any{
		"filename": "selfie.jpg",
		"category": "lipstick",
	}))

	var logRow domain.UsageLog
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, orgID, logRow.OrgID)
	assert.Equal(t, "/api/vto/upload", logRow.Endpoint)
	assert.Equal(t, 200, logRow.ResponseStatus)
	assert.Equal(t, int64(2500), logRow.ProcessingTimeMS)

	var session domain.TryonSession
	require.NoError(t, db.First(&session).Error)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, orgID, session.OrgID)
	assert.Equal(t, "selfie.jpg", session.ImageURL)
	assert.Equal(t, int64(2), session.DurationSeconds)
	assert.Equal(t, "desktop", session.DeviceType)
	assert.Equal(t, "DE", session.Country)
	assert.Equal(t, "Image Upload", session.ProductName)
	assert.Equal(t, "lipstick", session.Category)
	assert.False(t, session.Converted)
}

func TestRecordSkipsUnmeteredCallers(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	seedActiveUser(t, db, node, orgID)

	recorder.Record(context.Background(), Event{
		Identity: identity.Identity{Kind: identity.KindSuperAdmin, OrgID: orgID},
		Endpoint: "/api/vto/upload",
	})
	recorder.Record(context.Background(), Event{
		Identity: identity.Identity{Kind: identity.KindGuest},
		Endpoint: "/api/vto/upload",
	})

	assert.Zero(t, countRows(t, db, &domain.UsageLog{}))
	assert.Zero(t, countRows(t, db, &domain.TryonSession{}))
}

func TestRecordSkipsUnmonitoredEndpoint(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	seedActiveUser(t, db, node, orgID)

	recorder.Record(context.Background(), orgEvent(orgID, node.Generate(), "/api/vto/unknown", nil))

	assert.Zero(t, countRows(t, db, &domain.UsageLog{}))
}

func TestRecordSkipsSessionWithoutActiveUser(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()

	recorder.Record(context.Background(), orgEvent(orgID, node.Generate(), "/api/vto/upload", nil))

	assert.Equal(t, int64(1), countRows(t, db, &domain.UsageLog{}))
	assert.Zero(t, countRows(t, db, &domain.TryonSession{}))
}

func TestRecordSkipsSessionForInactiveUser(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	user := seedActiveUser(t, db, node, orgID)
	require.NoError(t, db.Model(&orgdomain.User{}).
		Where("id = ?", user.ID).
		Update("is_active", false).Error)

	recorder.Record(context.Background(), orgEvent(orgID, node.Generate(), "/api/vto/upload", nil))

	assert.Equal(t, int64(1), countRows(t, db, &domain.UsageLog{}))
	assert.Zero(t, countRows(t, db, &domain.TryonSession{}))
}

func TestRecordBestEffortOnPersistenceFailure(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	seedActiveUser(t, db, node, orgID)
	require.NoError(t, db.Migrator().DropTable(&domain.UsageLog{}))

	// Must not panic or surface the failure.
	recorder.Record(context.Background(), orgEvent(orgID, node.Generate(), "/api/vto/upload", nil))

	assert.Zero(t, countRows(t, db, &domain.TryonSession{}))
}

func TestRecordMinimumDuration(t *testing.T) {
	recorder, db, node := setupRecorder(t)
	orgID := node.Generate()
	seedActiveUser(t, db, node, orgID)

	ev := orgEvent(orgID, node.Generate(), "/api/vto/upload", nil)
	ev.ProcessingTime = 120 * time.Millisecond
	recorder.Record(context.Background(), ev)

	var session domain.TryonSession
	require.NoError(t, db.First(&session).Error)
	assert.Equal(t, int64(1), session.DurationSeconds)
}

func TestClassifyDevice(t *testing.T) {
	assert.Equal(t, "mobile", classifyDevice("Mozilla/5.0 (iPhone; CPU iPhone OS)"))
	assert.Equal(t, "mobile", classifyDevice("Mozilla/5.0 (Linux; Android 14) Mobile"))
	assert.Equal(t, "desktop", classifyDevice("Mozilla/5.0 (Macintosh; Intel Mac OS X)"))
	assert.Equal(t, "desktop", classifyDevice(""))
}

func TestProductNameDerivation(t *testing.T) {
	cases := []struct {
		endpoint string
		data     map[string]any
		want     string
	}{
		{"/api/vto/upload", nil, "Image Upload"},
		{"/api/vto/apply_lipstick", map[string]any{"product_name": "Velvet Matte", "color": "#AA2233"}, "Velvet Matte #AA2233"},
		{"/api/vto/apply_blush", nil, "Blush Unknown"},
		{"/api/vto/live_makeup", map[string]any{"color": "#112233"}, "Live Makeup #112233"},
		{"/api/vto/live_makeup", nil, "Live Makeup Unknown"},
		{"/api/vto/live_makeup_apply", map[string]any{"category": "eyeliner", "color": "#000"}, "eyeliner - #000"},
		{"/api/vto/live_makeup_page/foundation", map[string]any{"color": "#FFEEDD"}, "Live Foundation - #FFEEDD"},
		{"/api/vto/track_color_update", map[string]any{"category": "blush", "color": "#F08"}, "Color Update: blush - #F08"},
		{"/api/vto/track_makeup_application", nil, "Makeup Try-On: Makeup - Unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, productName(tc.endpoint, tc.data), tc.endpoint)
	}
}
