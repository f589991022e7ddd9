package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/identity"
	"github.com/optimosight/vto-gateway/internal/vto"
)

func (s *Server) vtoUpload(c *gin.Context) {
	started := time.Now()

	file, err := c.FormFile("image")
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	category := c.PostForm("category")
	if !slices.Contains(config.MakeupCategories, category) {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	orgID := c.PostForm("org_id")

	upload, err := readUpload(file)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	processed, err := s.vto.UploadImage(c.Request.Context(), upload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.proxied(c, "/api/vto/upload")
	s.recordUsage(c, "/api/vto/upload", map[string]any{
		"filename": file.Filename,
		"org_id":   orgID,
		"category": category,
	}, http.StatusOK, started)

	c.JSON(http.StatusOK, gin.H{"processed_image": processed})
}

// vtoApply builds the handler for one makeup category. Categories are bound
// as explicit routes so the path segment stays a closed set.
func (s *Server) vtoApply(category string) gin.HandlerFunc {
	endpoint := "/api/vto/apply_" + category
	return func(c *gin.Context) {
		started := time.Now()

		file, err := c.FormFile("image")
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		color := c.PostForm("color")
		productName := c.PostForm("product_name")
		if color == "" || productName == "" {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		orgID := c.PostForm("org_id")

		upload, err := readUpload(file)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		content, err := s.vto.ApplyMakeup(c.Request.Context(), upload, category, productName, color)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		s.proxied(c, endpoint)
		s.recordUsage(c, endpoint, map[string]any{
			"filename":     file.Filename,
			"color":        color,
			"org_id":       orgID,
			"category":     category,
			"product_name": productName,
		}, http.StatusOK, started)

		c.Data(http.StatusOK, "image/jpeg", content)
	}
}

func (s *Server) vtoLiveMakeup(c *gin.Context) {
	started := time.Now()

	payload, ok := s.bindLivePayload(c, "frame", "color", "category")
	if !ok {
		return
	}

	raw, err := s.vto.LiveMakeup(c.Request.Context(), payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.proxied(c, "/api/vto/live_makeup")
	s.recordUsage(c, "/api/vto/live_makeup", payload, http.StatusOK, started)

	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) vtoLiveMakeupApply(c *gin.Context) {
	started := time.Now()

	payload, ok := s.bindLivePayload(c, "category", "color")
	if !ok {
		return
	}

	raw, err := s.vto.LiveMakeupApply(c.Request.Context(), payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.proxied(c, "/api/vto/live_makeup_apply")
	s.recordUsage(c, "/api/vto/live_makeup_apply", payload, http.StatusOK, started)

	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) vtoLiveMakeupPage(c *gin.Context) {
	started := time.Now()

	category := c.Param("category")
	if !slices.Contains(config.MakeupCategories, category) {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	color := c.Query("color")
	if color == "" {
		color = "default"
	}

	endpoint := "/api/vto/live_makeup_page/" + category
	data := map[string]any{"action": "page_view", "category": category, "color": color}

	s.proxied(c, endpoint)
	s.recordUsage(c, endpoint, data, http.StatusOK, started)

	c.JSON(http.StatusOK, gin.H{
		"status":   "page_view_tracked",
		"category": category,
		"color":    color,
	})
}

// vtoLiveMakeupPageUpdate attributes an in-page color change to the page
// endpoint the viewer is on.
func (s *Server) vtoLiveMakeupPageUpdate(c *gin.Context) {
	started := time.Now()

	payload, ok := s.bindLivePayload(c, "category", "color")
	if !ok {
		return
	}
	category, _ := payload["category"].(string)

	endpoint := "/api/vto/live_makeup_page/" + category
	s.proxied(c, endpoint)
	s.recordUsage(c, endpoint, payload, http.StatusOK, started)

	id, _ := identityFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"status":            "update_logged",
		"usage_incremented": id != nil && id.Kind == identity.KindGuest,
	})
}

func (s *Server) vtoTrackColorUpdate(c *gin.Context) {
	s.track(c, "/api/vto/track_color_update", "color_update_tracked")
}

func (s *Server) vtoTrackMakeupApplication(c *gin.Context) {
	s.track(c, "/api/vto/track_makeup_application", "makeup_application_tracked")
}

func (s *Server) track(c *gin.Context, endpoint, status string) {
	started := time.Now()

	payload, ok := s.bindLivePayload(c, "category", "color")
	if !ok {
		return
	}

	s.proxied(c, endpoint)
	s.recordUsage(c, endpoint, payload, http.StatusOK, started)

	id, _ := identityFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"category":          payload["category"],
		"color":             payload["color"],
		"usage_incremented": id != nil && id.Kind == identity.KindGuest,
	})
}

// bindLivePayload decodes the JSON body and validates required fields.
// Organization callers must additionally supply org_id.
func (s *Server) bindLivePayload(c *gin.Context, required ...string) (map[string]any, bool) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return nil, false
	}

	if id, ok := identityFrom(c); ok && id.Kind == identity.KindOrganizationKey {
		required = append(required, "org_id")
	}
	for _, field := range required {
		if value, ok := payload[field]; !ok || value == nil {
			AbortWithError(c, ErrInvalidRequest)
			return nil, false
		}
	}
	return payload, true
}

func (s *Server) proxied(c *gin.Context, endpoint string) {
	id, ok := identityFrom(c)
	if !ok {
		return
	}
	s.metrics.ProxiedCalls.WithLabelValues(endpoint, string(id.Kind)).Inc()
}

func readUpload(header *multipart.FileHeader) (vto.FileUpload, error) {
	file, err := header.Open()
	if err != nil {
		return vto.FileUpload{}, err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return vto.FileUpload{}, err
	}
	return vto.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
