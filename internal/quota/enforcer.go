// Package quota enforces per-caller-class call limits.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest"
	"github.com/optimosight/vto-gateway/internal/identity"
	obsmetrics "github.com/optimosight/vto-gateway/internal/observability/metrics"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	usagedomain "github.com/optimosight/vto-gateway/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EnforcerParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Tracker *guest.Tracker
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Enforcer decides whether the next call is permitted under the resolved
// identity's policy.
type Enforcer struct {
	db      *gorm.DB
	log     *zap.Logger
	tracker *guest.Tracker
	metrics *obsmetrics.Metrics

	requiredService string
	defaultAPILimit int64
}

func NewEnforcer(p EnforcerParam) *Enforcer {
	return &Enforcer{
		db:              p.DB,
		log:             p.Log.Named("quota.enforcer"),
		tracker:         p.Tracker,
		metrics:         p.Metrics,
		requiredService: p.Cfg.RequiredService,
		defaultAPILimit: p.Cfg.DefaultAPILimit,
	}
}

// Check validates the next call against the identity's quota policy. It
// never mutates counters; guest increments are a separate step. Organization
// checks count the usage ledger, so check-then-record is not atomic: two
// concurrent calls can both pass before either event commits. Limits are
// soft advisory caps, not billing boundaries.
func (e *Enforcer) Check(ctx context.Context, id *identity.Identity) error {
	switch id.Kind {
	case identity.KindSuperAdmin:
		return nil
	case identity.KindOrganizationKey:
		return e.checkOrganization(ctx, id)
	case identity.KindGuest:
		return e.checkGuest(ctx, id.Guest)
	default:
		return fmt.Errorf("%w: unknown caller kind %q", ErrForbidden, id.Kind)
	}
}

func (e *Enforcer) checkOrganization(ctx context.Context, id *identity.Identity) error {
	var orgs []orgdomain.Organization
	if err := e.db.WithContext(ctx).Where("id = ?", id.OrgID).Limit(1).Find(&orgs).Error; err != nil {
		return err
	}
	if len(orgs) == 0 {
		return fmt.Errorf("%w: organization not found", ErrForbidden)
	}
	org := orgs[0]

	if !org.HasService(e.requiredService) {
		return fmt.Errorf("%w: organization not subscribed to %s service", ErrForbidden, e.requiredService)
	}

	limit := e.defaultAPILimit
	if org.SubscriptionID != 0 {
		var plans []subscriptiondomain.Plan
		if err := e.db.WithContext(ctx).Where("id = ?", org.SubscriptionID).Limit(1).Find(&plans).Error; err != nil {
			return err
		}
		if len(plans) > 0 {
			limit = plans[0].APILimit
		}
	}

	var count int64
	if err := e.db.WithContext(ctx).
		Model(&usagedomain.UsageLog{}).
		Where("org_id = ?", org.ID).
		Count(&count).Error; err != nil {
		return err
	}

	if count >= limit {
		e.rejected("organization")
		e.log.Warn("organization quota exceeded",
			zap.String("org_id", org.ID.String()),
			zap.Int64("usage_count", count),
			zap.Int64("limit", limit),
		)
		return &ExceededError{
			Message:    "API rate limit exceeded",
			UsageCount: count,
			Limit:      limit,
		}
	}
	return nil
}

func (e *Enforcer) checkGuest(ctx context.Context, res *guest.Resolution) error {
	if res.Record.IsBlocked {
		return fmt.Errorf("%w: guest blocked", ErrForbidden)
	}

	limit := e.tracker.Limit()
	if res.Record.UsageCount < limit {
		return nil
	}

	now := time.Now().UTC()
	if res.Stale(e.tracker.Window(), now) {
		if err := e.tracker.ResetCount(ctx, res); err != nil {
			return err
		}
		e.log.Info("guest usage reset after window",
			zap.String("ip", res.Record.IPAddress),
		)
		return nil
	}

	e.rejected("guest")
	resetTime := res.Record.LastVisit.Add(e.tracker.Window())
	e.log.Warn("guest quota exceeded",
		zap.Int("usage_count", res.Record.UsageCount),
		zap.Int("limit", limit),
	)
	return &ExceededError{
		Message:    "Guest usage limit reached. Please subscribe to continue.",
		UsageCount: int64(res.Record.UsageCount),
		Limit:      int64(limit),
		ResetTime:  &resetTime,
	}
}

func (e *Enforcer) rejected(caller string) {
	if e.metrics == nil {
		return
	}
	e.metrics.QuotaRejected.WithLabelValues(caller).Inc()
}

// Module wires the quota enforcer.
var Module = fx.Module("quota.enforcer",
	fx.Provide(NewEnforcer),
)
