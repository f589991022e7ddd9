package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/optimosight/vto-gateway/internal/guest"
	"github.com/optimosight/vto-gateway/internal/identity"
)

// guestUsage returns the caller's quota snapshot, applying the rolling
// window reset if it is due.
func (s *Server) guestUsage(c *gin.Context) {
	res, ok := s.requireGuest(c)
	if !ok {
		return
	}

	status, err := s.tracker.Status(c.Request.Context(), res)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody(status))
}

// guestIncrement charges one unit unless the limit is already reached.
func (s *Server) guestIncrement(c *gin.Context) {
	res, ok := s.requireGuest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	status, err := s.tracker.Status(ctx, res)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if status.LimitReached {
		c.JSON(http.StatusOK, gin.H{
			"success":       false,
			"limit_reached": true,
			"usage_count":   status.UsageCount,
			"limit":         status.Limit,
			"message":       "Guest usage limit reached",
		})
		return
	}

	if err := s.tracker.Increment(ctx, res); err != nil {
		AbortWithError(c, err)
		return
	}

	count := status.UsageCount + 1
	remaining := status.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"usage_count":   count,
		"limit":         status.Limit,
		"remaining":     remaining,
		"limit_reached": count >= status.Limit,
	})
}

// guestReset zeroes the counter of whichever guest record matches the
// request fingerprint. Operator key only.
func (s *Server) guestReset(c *gin.Context) {
	res, ok := s.resolveRequestGuest(c, identity.KindSuperAdmin)
	if !ok {
		return
	}

	if err := s.tracker.ResetCount(c.Request.Context(), res); err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("guest usage reset",
		zap.String("ip", res.Record.IPAddress),
		zap.String("fingerprint", shortFingerprint(res.Record.FingerprintHash)))

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"usage_count": 0,
		"limit":       s.tracker.Limit(),
		"message":     "Guest usage reset",
	})
}

// guestUsageStatus is the detailed variant exposed under /api/vto.
func (s *Server) guestUsageStatus(c *gin.Context) {
	res, ok := s.requireGuest(c)
	if !ok {
		return
	}

	status, err := s.tracker.Status(c.Request.Context(), res)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := statusBody(status)
	body["fingerprint"] = shortFingerprint(res.Record.FingerprintHash)
	body["ip_address"] = res.Record.IPAddress
	c.JSON(http.StatusOK, body)
}

func (s *Server) resetGuestUsage(c *gin.Context) {
	s.guestReset(c)
}

// requireGuest extracts the guest resolution from the authenticated
// identity. Anything else gets 401, matching the key-gated behavior of the
// guest API.
func (s *Server) requireGuest(c *gin.Context) (*guest.Resolution, bool) {
	id, ok := identityFrom(c)
	if !ok || id.Kind != identity.KindGuest || id.Guest == nil {
		AbortWithError(c, identity.ErrInvalidCredential)
		return nil, false
	}
	return id.Guest, true
}

// resolveRequestGuest requires the given caller kind, then resolves the
// guest record for the request's own fingerprint.
func (s *Server) resolveRequestGuest(c *gin.Context, kind identity.Kind) (*guest.Resolution, bool) {
	id, ok := identityFrom(c)
	if !ok || id.Kind != kind {
		AbortWithError(c, identity.ErrInvalidCredential)
		return nil, false
	}

	res, err := s.tracker.ResolveOrCreate(c.Request.Context(), guest.MetadataFromRequest(c.Request))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return res, true
}

func statusBody(status guest.Status) gin.H {
	return gin.H{
		"usage_count":   status.UsageCount,
		"limit":         status.Limit,
		"remaining":     status.Remaining,
		"limit_reached": status.LimitReached,
		"reset_time":    status.ResetTime.UTC().Format(time.RFC3339),
	}
}

func shortFingerprint(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8] + "..."
}
