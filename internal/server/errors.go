package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	"github.com/optimosight/vto-gateway/internal/identity"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/quota"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	"github.com/optimosight/vto-gateway/internal/vto"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// quotaExceededBody is the flat 429 body. reset_time is present only for
// rolling-window quotas.
type quotaExceededBody struct {
	Message    string `json:"message"`
	UsageCount int64  `json:"usage_count"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	ResetTime  string `json:"reset_time,omitempty"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last attached error once the handler
// chain finishes without writing a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, any) {
	if exceeded := quota.AsExceeded(err); exceeded != nil {
		body := quotaExceededBody{
			Message:    exceeded.Message,
			UsageCount: exceeded.UsageCount,
			Limit:      exceeded.Limit,
			Remaining:  exceeded.Remaining(),
		}
		if exceeded.ResetTime != nil {
			body.ResetTime = exceeded.ResetTime.UTC().Format(time.RFC3339)
		}
		return http.StatusTooManyRequests, body
	}

	var upstream *vto.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status, errorResponse{Error: errorPayload{
			Type:    "upstream_error",
			Message: upstream.Body,
		}}
	}

	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{Error: errorPayload{
			Type:    "unauthorized",
			Message: "API key required",
		}}
	case errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, identity.ErrNoOrganizations):
		return http.StatusUnauthorized, errorResponse{Error: errorPayload{
			Type:    "unauthorized",
			Message: "invalid API key",
		}}
	case errors.Is(err, quota.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}}
	case errors.Is(err, vto.ErrServiceUnreachable):
		return http.StatusServiceUnavailable, errorResponse{Error: errorPayload{
			Type:    "service_unavailable",
			Message: "Virtual try-on service is not reachable. Please try again later.",
		}}
	case errors.Is(err, vto.ErrServiceTimeout):
		return http.StatusGatewayTimeout, errorResponse{Error: errorPayload{
			Type:    "gateway_timeout",
			Message: "Virtual try-on service timeout. Please try again.",
		}}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidEmail),
		errors.Is(err, subscriptiondomain.ErrInvalidPlanName),
		errors.Is(err, subscriptiondomain.ErrInvalidAPILimit):
		return http.StatusBadRequest, errorResponse{Error: errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}}
	case errors.Is(err, orgdomain.ErrOrgExists),
		errors.Is(err, subscriptiondomain.ErrPlanExists):
		return http.StatusConflict, errorResponse{Error: errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}}
	case errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrPlanNotFound),
		errors.Is(err, subscriptiondomain.ErrOrgNotFound),
		errors.Is(err, apikeydomain.ErrKeyNotFound):
		return http.StatusNotFound, errorResponse{Error: errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}}
	default:
		return http.StatusInternalServerError, errorResponse{Error: errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}}
	}
}
