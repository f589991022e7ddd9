package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	organizationdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
)

func (s *Server) createOrganization(c *gin.Context) {
	var req organizationdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.orgSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) listOrganizations(c *gin.Context) {
	summaries, err := s.orgSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": summaries})
}

func (s *Server) getOrganization(c *gin.Context) {
	summary, err := s.orgSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) rotateOrganizationKey(c *gin.Context) {
	resp, err := s.orgSvc.RotateKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) subscribeOrganization(c *gin.Context) {
	err := s.subSvc.Subscribe(c.Request.Context(), c.Param("id"), c.Param("plan_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "subscribed"})
}
