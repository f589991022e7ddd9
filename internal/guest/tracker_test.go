package guest

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest/domain"
)

func setupTracker(t *testing.T, limit int, window time.Duration) (*Tracker, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.GuestUsage{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	tracker := NewTracker(TrackerParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Cfg: config.Config{
			GuestLimit:      limit,
			GuestResetAfter: window,
		},
	})
	return tracker, db
}

func sampleMeta() Metadata {
	return Metadata{
		IP:             "203.0.113.7",
		UserAgent:      "Mozilla/5.0 (Macintosh)",
		AcceptLanguage: "en-US",
		AcceptEncoding: "gzip",
	}
}

func TestMetadataFromRequestIPPrecedence(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/vto/upload", nil)
	req.RemoteAddr = "192.0.2.1:4711"

	meta := MetadataFromRequest(req)
	assert.Equal(t, "192.0.2.1", meta.IP)

	req.Header.Set("X-Real-Ip", "198.51.100.2")
	meta = MetadataFromRequest(req)
	assert.Equal(t, "198.51.100.2", meta.IP)

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	meta = MetadataFromRequest(req)
	assert.Equal(t, "203.0.113.9", meta.IP)
}

func TestFingerprintDeterministic(t *testing.T) {
	a1, ua1 := Fingerprint(sampleMeta())
	a2, ua2 := Fingerprint(sampleMeta())
	assert.Equal(t, a1, a2)
	assert.Equal(t, ua1, ua2)
	assert.Len(t, a1, 64)

	changed := sampleMeta()
	changed.AcceptLanguage = "fr-FR"
	b1, _ := Fingerprint(changed)
	assert.NotEqual(t, a1, b1)
}

func TestResolveOrCreateIdempotent(t *testing.T) {
	tracker, db := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	first, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 0, first.Record.UsageCount)

	second, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	var count int64
	require.NoError(t, db.Model(&domain.GuestUsage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveOrCreateIPFallback(t *testing.T) {
	tracker, db := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	first, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)

	// Same device, different user agent: the fingerprint changes but the
	// recent IP match reuses the record and refreshes its fingerprint.
	changed := sampleMeta()
	changed.UserAgent = "Mozilla/5.0 (iPhone)"
	second, err := tracker.ResolveOrCreate(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	newHash, _ := Fingerprint(changed)
	var stored domain.GuestUsage
	require.NoError(t, db.First(&stored, "id = ?", first.Record.ID).Error)
	assert.Equal(t, newHash, stored.FingerprintHash)

	var count int64
	require.NoError(t, db.Model(&domain.GuestUsage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveOrCreateStaleIPNoFallback(t *testing.T) {
	tracker, db := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	first, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)

	// Age the record past the window so an IP-only match is rejected.
	old := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, db.Model(&domain.GuestUsage{}).
		Where("id = ?", first.Record.ID).
		Update("last_visit", old).Error)

	changed := sampleMeta()
	changed.UserAgent = "Mozilla/5.0 (iPhone)"
	second, err := tracker.ResolveOrCreate(ctx, changed)
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestResolutionSeenAtSurvivesRefresh(t *testing.T) {
	tracker, db := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	first, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)

	old := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, db.Model(&domain.GuestUsage{}).
		Where("id = ?", first.Record.ID).
		Updates(map[string]any{"last_visit": old, "usage_count": 200}).Error)

	res, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)
	require.False(t, res.Created)

	// last_visit was heartbeat-refreshed in the store, but the resolution
	// still reports the pre-refresh visit for staleness decisions.
	assert.WithinDuration(t, old, res.SeenAt, time.Second)
	assert.True(t, res.Stale(tracker.Window(), time.Now().UTC()))

	var stored domain.GuestUsage
	require.NoError(t, db.First(&stored, "id = ?", first.Record.ID).Error)
	assert.WithinDuration(t, time.Now().UTC(), stored.LastVisit, 5*time.Second)
}

func TestIncrementResetsStaleWindow(t *testing.T) {
	tracker, db := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	res, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)
	require.NoError(t, tracker.Increment(ctx, res))
	require.NoError(t, tracker.Increment(ctx, res))
	assert.Equal(t, 2, res.Record.UsageCount)

	res.Record.UsageCount = 150
	res.SeenAt = time.Now().UTC().Add(-25 * time.Hour)
	res.Created = false
	require.NoError(t, tracker.Increment(ctx, res))
	assert.Equal(t, 1, res.Record.UsageCount)

	var stored domain.GuestUsage
	require.NoError(t, db.First(&stored, "id = ?", res.Record.ID).Error)
	assert.Equal(t, 1, stored.UsageCount)
}

func TestStatusAppliesWindowReset(t *testing.T) {
	tracker, _ := setupTracker(t, 200, 24*time.Hour)
	ctx := context.Background()

	res, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)

	res.Record.UsageCount = 200
	res.SeenAt = time.Now().UTC().Add(-25 * time.Hour)
	res.Created = false

	status, err := tracker.Status(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 0, status.UsageCount)
	assert.Equal(t, 200, status.Remaining)
	assert.False(t, status.LimitReached)
}

func TestStatusLimitReached(t *testing.T) {
	tracker, _ := setupTracker(t, 5, 24*time.Hour)
	ctx := context.Background()

	res, err := tracker.ResolveOrCreate(ctx, sampleMeta())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Increment(ctx, res))
	}

	status, err := tracker.Status(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 5, status.UsageCount)
	assert.Equal(t, 0, status.Remaining)
	assert.True(t, status.LimitReached)
	assert.WithinDuration(t, res.Record.LastVisit.Add(24*time.Hour), status.ResetTime, time.Second)
}
