package guest

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolution is the outcome of matching a request against the guest store.
// SeenAt is the record's last_visit BEFORE this resolution refreshed it, so
// staleness decisions are not defeated by the heartbeat update. Zero for
// freshly created records.
type Resolution struct {
	Record  *domain.GuestUsage
	SeenAt  time.Time
	Created bool
}

// Stale reports whether the record's previous visit fell outside the reset
// window at the given instant.
func (r *Resolution) Stale(window time.Duration, now time.Time) bool {
	if r.Created || r.SeenAt.IsZero() {
		return false
	}
	return r.SeenAt.Before(now.Add(-window))
}

// Status is the client-facing quota snapshot for a guest record.
type Status struct {
	UsageCount   int       `json:"usage_count"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	LimitReached bool      `json:"limit_reached"`
	ResetTime    time.Time `json:"reset_time"`
}

type TrackerParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
}

// Tracker owns the guest_usage table: resolution, heartbeat refresh, and the
// rolling counter.
type Tracker struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	limit  int
	window time.Duration
}

func NewTracker(p TrackerParam) *Tracker {
	return &Tracker{
		db:     p.DB,
		log:    p.Log.Named("guest.tracker"),
		genID:  p.GenID,
		limit:  p.Cfg.GuestLimit,
		window: p.Cfg.GuestResetAfter,
	}
}

// Limit returns the fixed per-window guest call cap.
func (t *Tracker) Limit() int { return t.limit }

// Window returns the rolling reset window.
func (t *Tracker) Window() time.Duration { return t.window }

// ResolveOrCreate finds the guest record for the request metadata, creating
// one when neither the fingerprint nor the recent-IP fallback matches. On a
// match the fingerprint, user-agent hash, and last_visit are refreshed
// unconditionally; the usage counter is only touched by Increment and Reset.
func (t *Tracker) ResolveOrCreate(ctx context.Context, meta Metadata) (*Resolution, error) {
	fingerprintHash, userAgentHash := Fingerprint(meta)
	now := time.Now().UTC()

	record, err := t.findByFingerprint(ctx, fingerprintHash)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Fallback for minor header variation from the same device.
		record, err = t.findByRecentIP(ctx, meta.IP, now)
		if err != nil {
			return nil, err
		}
	}

	if record == nil {
		record = &domain.GuestUsage{
			ID:              t.genID.Generate(),
			FingerprintHash: fingerprintHash,
			IPAddress:       meta.IP,
			UserAgentHash:   userAgentHash,
			UsageCount:      0,
			FirstVisit:      now,
			LastVisit:       now,
			CreatedAt:       now,
		}
		if err := t.db.WithContext(ctx).Create(record).Error; err != nil {
			return nil, err
		}
		return &Resolution{Record: record, Created: true}, nil
	}

	seenAt := record.LastVisit
	record.FingerprintHash = fingerprintHash
	record.UserAgentHash = userAgentHash
	record.LastVisit = now
	if err := t.db.WithContext(ctx).
		Model(&domain.GuestUsage{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"fingerprint_hash": fingerprintHash,
			"user_agent_hash":  userAgentHash,
			"last_visit":       now,
		}).Error; err != nil {
		return nil, err
	}
	return &Resolution{Record: record, SeenAt: seenAt}, nil
}

// Increment bumps the rolling counter, zeroing it first when the previous
// visit fell outside the reset window. This makes the guest cap a true
// per-window rolling limit rather than a lifetime one.
func (t *Tracker) Increment(ctx context.Context, res *Resolution) error {
	now := time.Now().UTC()
	if res.Stale(t.window, now) {
		res.Record.UsageCount = 0
	}
	res.Record.UsageCount++
	res.Record.LastVisit = now
	err := t.db.WithContext(ctx).
		Model(&domain.GuestUsage{}).
		Where("id = ?", res.Record.ID).
		Updates(map[string]any{
			"usage_count": res.Record.UsageCount,
			"last_visit":  now,
		}).Error
	if err != nil {
		return err
	}
	t.log.Debug("guest usage incremented",
		zap.Int("usage_count", res.Record.UsageCount),
		zap.Int("limit", t.limit),
		zap.String("ip", res.Record.IPAddress),
	)
	return nil
}

// ResetCount zeroes the rolling counter, refreshing last_visit.
func (t *Tracker) ResetCount(ctx context.Context, res *Resolution) error {
	now := time.Now().UTC()
	res.Record.UsageCount = 0
	res.Record.LastVisit = now
	return t.db.WithContext(ctx).
		Model(&domain.GuestUsage{}).
		Where("id = ?", res.Record.ID).
		Updates(map[string]any{
			"usage_count": 0,
			"last_visit":  now,
		}).Error
}

// Status reports the quota snapshot, applying the window reset when the
// previous visit is stale.
func (t *Tracker) Status(ctx context.Context, res *Resolution) (Status, error) {
	now := time.Now().UTC()
	if res.Stale(t.window, now) && res.Record.UsageCount != 0 {
		if err := t.ResetCount(ctx, res); err != nil {
			return Status{}, err
		}
		t.log.Info("guest usage reset", zap.String("ip", res.Record.IPAddress))
	}
	count := res.Record.UsageCount
	remaining := t.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		UsageCount:   count,
		Limit:        t.limit,
		Remaining:    remaining,
		LimitReached: count >= t.limit,
		ResetTime:    res.Record.LastVisit.Add(t.window),
	}, nil
}

func (t *Tracker) findByFingerprint(ctx context.Context, hash string) (*domain.GuestUsage, error) {
	var records []domain.GuestUsage
	err := t.db.WithContext(ctx).
		Where("fingerprint_hash = ?", hash).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (t *Tracker) findByRecentIP(ctx context.Context, ip string, now time.Time) (*domain.GuestUsage, error) {
	if ip == "" {
		return nil, nil
	}
	var records []domain.GuestUsage
	err := t.db.WithContext(ctx).
		Where("ip_address = ? AND last_visit > ?", ip, now.Add(-t.window)).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Module wires the guest fingerprint tracker.
var Module = fx.Module("guest.tracker",
	fx.Provide(NewTracker),
)
