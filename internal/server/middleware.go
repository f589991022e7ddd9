package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/optimosight/vto-gateway/internal/guest"
	"github.com/optimosight/vto-gateway/internal/identity"
	"github.com/optimosight/vto-gateway/internal/usage"
)

const (
	contextIdentityKey      = "caller_identity"
	contextUsageRecordedKey = "usage_recorded"
)

// credentialFrom pulls the API key from the X-API-Key header, falling back
// to the api_key query parameter for browser-embedded callers.
func credentialFrom(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(c.Query("api_key"))
}

// Authenticated resolves the caller identity and stores it on the request.
func (s *Server) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := guest.MetadataFromRequest(c.Request)
		id, err := s.resolver.Resolve(c.Request.Context(), credentialFrom(c), meta)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextIdentityKey, id)
		c.Next()
	}
}

// QuotaEnforced applies the optional ingress limiter, checks the caller's
// quota, and charges guest callers one unit on admission. Runs after
// Authenticated.
func (s *Server) QuotaEnforced() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			AbortWithError(c, ErrInternal)
			return
		}

		ctx := c.Request.Context()

		if s.limiter.Enabled() {
			res, err := s.limiter.AllowCaller(ctx, callerKey(id))
			switch {
			case err != nil:
				// Fail open: a limiter outage must not take down the gateway.
				s.log.Warn("ingress limiter unavailable", zap.Error(err))
			case !res.Allowed:
				retryAfter := int(res.RetryAfter.Round(time.Second) / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.Itoa(retryAfter))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"message":     "Too many requests",
					"retry_after": retryAfter,
				})
				return
			}
		}

		if err := s.quota.Check(ctx, id); err != nil {
			AbortWithError(c, err)
			return
		}

		if id.Kind == identity.KindGuest {
			if err := s.tracker.Increment(ctx, id.Guest); err != nil {
				AbortWithError(c, err)
				return
			}
		}

		c.Next()
	}
}

// SuperAdminKeyRequired gates management routes on the operator key itself,
// independent of organization state, so the first organization can be
// created on an empty database.
func (s *Server) SuperAdminKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := credentialFrom(c)
		key := s.cfg.SuperAdminAPIKey
		if credential == "" || key == "" ||
			subtle.ConstantTimeCompare([]byte(credential), []byte(key)) != 1 {
			AbortWithError(c, identity.ErrInvalidCredential)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (*identity.Identity, bool) {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := value.(*identity.Identity)
	return id, ok
}

// callerKey is the ingress limiter bucket identifier for an identity.
func callerKey(id *identity.Identity) string {
	switch id.Kind {
	case identity.KindGuest:
		if id.Guest != nil && id.Guest.Record != nil {
			return "guest:" + id.Guest.Record.FingerprintHash
		}
		return "guest:unknown"
	case identity.KindSuperAdmin:
		return "super_admin"
	default:
		return "org:" + id.OrgID.String()
	}
}

// recordUsage forwards the finished call to the usage recorder at most once
// per request.
func (s *Server) recordUsage(c *gin.Context, endpoint string, data map[string]any, status int, started time.Time) {
	if c.GetBool(contextUsageRecordedKey) {
		return
	}
	id, ok := identityFrom(c)
	if !ok {
		return
	}
	c.Set(contextUsageRecordedKey, true)

	s.recorder.Record(c.Request.Context(), usage.Event{
		Identity:       *id,
		Endpoint:       endpoint,
		RequestData:    data,
		ResponseStatus: status,
		ProcessingTime: time.Since(started),
		UserAgent:      c.GetHeader("User-Agent"),
		Country:        c.GetHeader("X-Geo-Country"),
	})
}
