package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/optimosight/vto-gateway/internal/apikey"
	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/guest"
	"github.com/optimosight/vto-gateway/internal/identity"
	obslogger "github.com/optimosight/vto-gateway/internal/observability/logger"
	obsmetrics "github.com/optimosight/vto-gateway/internal/observability/metrics"
	"github.com/optimosight/vto-gateway/internal/organization"
	organizationdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/quota"
	"github.com/optimosight/vto-gateway/internal/ratelimit"
	"github.com/optimosight/vto-gateway/internal/subscription"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	"github.com/optimosight/vto-gateway/internal/usage"
	"github.com/optimosight/vto-gateway/internal/vto"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	apikey.Module,
	organization.Module,
	subscription.Module,
	guest.Module,
	identity.Module,
	quota.Module,
	usage.Module,
	vto.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	resolver *identity.Resolver
	quota    *quota.Enforcer
	tracker  *guest.Tracker
	recorder *usage.Recorder
	vto      *vto.Client
	orgSvc   organizationdomain.Service
	subSvc   subscriptiondomain.Service
	keySvc   apikeydomain.Service
	limiter  *ratelimit.IngressLimiter
	metrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Resolver *identity.Resolver
	Quota    *quota.Enforcer
	Tracker  *guest.Tracker
	Recorder *usage.Recorder
	VTO      *vto.Client
	OrgSvc   organizationdomain.Service
	SubSvc   subscriptiondomain.Service
	KeySvc   apikeydomain.Service
	Limiter  *ratelimit.IngressLimiter `optional:"true"`
	Metrics  *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		db:       p.DB,
		log:      p.Log.Named("http.server"),
		resolver: p.Resolver,
		quota:    p.Quota,
		tracker:  p.Tracker,
		recorder: p.Recorder,
		vto:      p.VTO,
		orgSvc:   p.OrgSvc,
		subSvc:   p.SubSvc,
		keySvc:   p.KeySvc,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	proxied := api.Group("/vto", s.Authenticated(), s.QuotaEnforced())
	proxied.POST("/upload", s.vtoUpload)
	for _, category := range config.MakeupCategories {
		proxied.POST("/apply_"+category, s.vtoApply(category))
	}
	proxied.POST("/live_makeup", s.vtoLiveMakeup)
	proxied.POST("/live_makeup_apply", s.vtoLiveMakeupApply)
	proxied.GET("/live_makeup_page/:category", s.vtoLiveMakeupPage)
	proxied.POST("/live_makeup_page/update", s.vtoLiveMakeupPageUpdate)
	proxied.POST("/track_color_update", s.vtoTrackColorUpdate)
	proxied.POST("/track_makeup_application", s.vtoTrackMakeupApplication)

	// Admin and status endpoints skip quota and the guest counter.
	status := api.Group("/vto", s.Authenticated())
	status.GET("/guest-usage-status", s.guestUsageStatus)
	status.POST("/reset-guest-usage", s.resetGuestUsage)

	guests := api.Group("/guest", s.Authenticated())
	guests.GET("/usage", s.guestUsage)
	guests.POST("/increment", s.guestIncrement)
	guests.POST("/reset", s.guestReset)

	api.GET("/subscriptions", s.listSubscriptions)
	subs := api.Group("/subscriptions", s.SuperAdminKeyRequired())
	subs.POST("", s.createSubscription)

	orgs := api.Group("/organizations", s.SuperAdminKeyRequired())
	orgs.POST("", s.createOrganization)
	orgs.GET("", s.listOrganizations)
	orgs.GET("/:id", s.getOrganization)
	orgs.POST("/:id/rotate-key", s.rotateOrganizationKey)
	orgs.POST("/:id/subscribe/:plan_id", s.subscribeOrganization)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
