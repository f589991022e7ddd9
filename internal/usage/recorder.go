// Package usage persists the metering ledger and try-on analytics rows.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/identity"
	"github.com/optimosight/vto-gateway/internal/observability/metrics"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/usage/domain"
)

// Event describes one completed proxied call to be recorded.
type Event struct {
	Identity       identity.Identity
	Endpoint       string
	RequestData    map[string]any
	ResponseStatus int
	ProcessingTime time.Duration
	UserAgent      string
	Country        string
}

// Recorder writes UsageLog and TryonSession rows after a proxied call
// finishes. Recording is best effort: persistence failures are logged and
// counted but never surfaced to the caller.
type Recorder struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	endpoints *config.EndpointsHolder
	metrics   *metrics.Metrics
}

type RecorderParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Endpoints *config.EndpointsHolder
	Metrics   *metrics.Metrics
}

func NewRecorder(p RecorderParam) *Recorder {
	return &Recorder{
		db:        p.DB,
		log:       p.Log.Named("usage.recorder"),
		genID:     p.GenID,
		endpoints: p.Endpoints,
		metrics:   p.Metrics,
	}
}

// Record persists the ledger row and, when possible, the analytics session
// for one proxied call. Super admin and guest traffic is never recorded, and
// endpoints outside the monitored set are ignored. The ledger row and the
// session row are committed independently so a session failure cannot lose
// the metered event.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if !ev.Identity.Metered() {
		r.log.Debug("skipping usage record for unmetered caller",
			zap.String("kind", string(ev.Identity.Kind)),
			zap.String("endpoint", ev.Endpoint))
		return
	}
	if !r.endpoints.Monitored(ev.Endpoint) {
		return
	}

	processingMS := ev.ProcessingTime.Milliseconds()

	logRow := domain.UsageLog{
		ID:               r.genID.Generate(),
		OrgID:            ev.Identity.OrgID,
		APIKeyID:         ev.Identity.KeyID,
		Endpoint:         ev.Endpoint,
		RequestData:      datatypes.JSONMap(ev.RequestData),
		ResponseStatus:   ev.ResponseStatus,
		ProcessingTimeMS: processingMS,
		Timestamp:        time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&logRow).Error; err != nil {
		r.metrics.RecordFailures.Inc()
		r.log.Error("failed to persist usage log",
			zap.String("endpoint", ev.Endpoint),
			zap.Int64("org_id", int64(ev.Identity.OrgID)),
			zap.Error(err))
		return
	}
	r.metrics.UsageRecorded.Inc()
	r.log.Debug("usage recorded",
		zap.String("endpoint", ev.Endpoint),
		zap.Int64("org_id", int64(ev.Identity.OrgID)),
		zap.Int64("api_key_id", int64(ev.Identity.KeyID)))

	r.recordSession(ctx, ev, processingMS)
}

func (r *Recorder) recordSession(ctx context.Context, ev Event, processingMS int64) {
	var user orgdomain.User
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", ev.Identity.OrgID, true).
		Order("id").
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.log.Warn("no active user for organization, skipping tryon session",
				zap.Int64("org_id", int64(ev.Identity.OrgID)))
			return
		}
		r.metrics.RecordFailures.Inc()
		r.log.Error("failed to look up active user", zap.Error(err))
		return
	}

	duration := processingMS / 1000
	if duration == 0 {
		duration = 1
	}

	session := domain.TryonSession{
		ID:              r.genID.Generate(),
		UserID:          user.ID,
		OrgID:           ev.Identity.OrgID,
		ImageURL:        stringField(ev.RequestData, "filename"),
		DurationSeconds: duration,
		DeviceType:      classifyDevice(ev.UserAgent),
		Country:         ev.Country,
		ProductName:     productName(ev.Endpoint, ev.RequestData),
		Category:        stringFieldDefault(ev.RequestData, "category", "makeup"),
		Converted:       false,
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&session).Error; err != nil {
		r.metrics.RecordFailures.Inc()
		r.log.Error("failed to persist tryon session",
			zap.Int64("org_id", int64(ev.Identity.OrgID)),
			zap.Error(err))
		return
	}
	r.log.Debug("tryon session recorded",
		zap.Int64("org_id", int64(ev.Identity.OrgID)),
		zap.Int64("user_id", int64(user.ID)),
		zap.String("product_name", session.ProductName))
}

// productName derives a human readable product label from the endpoint
// family and the request payload.
func productName(endpoint string, data map[string]any) string {
	switch {
	case strings.HasPrefix(endpoint, "/api/vto/live_makeup_page/"):
		category := strings.TrimPrefix(endpoint, "/api/vto/live_makeup_page/")
		return fmt.Sprintf("Live %s - %s", capitalize(category), stringFieldDefault(data, "color", "Unknown"))
	case strings.HasPrefix(endpoint, "/api/vto/apply_"):
		category := strings.TrimPrefix(endpoint, "/api/vto/apply_")
		name := stringFieldDefault(data, "product_name", capitalize(category))
		return fmt.Sprintf("%s %s", name, stringFieldDefault(data, "color", "Unknown"))
	case endpoint == "/api/vto/upload":
		return "Image Upload"
	case endpoint == "/api/vto/live_makeup":
		return "Live Makeup " + stringFieldDefault(data, "color", "Unknown")
	case endpoint == "/api/vto/live_makeup_apply":
		return fmt.Sprintf("%s - %s",
			stringFieldDefault(data, "category", "Makeup"),
			stringFieldDefault(data, "color", "Unknown"))
	case endpoint == "/api/vto/track_color_update":
		return fmt.Sprintf("Color Update: %s - %s",
			stringFieldDefault(data, "category", "Makeup"),
			stringFieldDefault(data, "color", "Unknown"))
	case endpoint == "/api/vto/track_makeup_application":
		return fmt.Sprintf("Makeup Try-On: %s - %s",
			stringFieldDefault(data, "category", "Makeup"),
			stringFieldDefault(data, "color", "Unknown"))
	}
	return stringFieldDefault(data, "product_name", "Virtual Try-On")
}

// classifyDevice buckets the caller as mobile or desktop from its user agent.
func classifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	return "desktop"
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func stringFieldDefault(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
