// Package projects implements the project CRUD endpoints. Projects
// hard-delete, so unlike clients and invoices there is no restore route.
package projects

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/db/models"
	"github.com/gestio-hq/gestio/internal/db/repositories"
	"github.com/gestio-hq/gestio/internal/middleware"
)

// Handler serves project CRUD requests.
type Handler struct {
	repo *repositories.ProjectRepository
}

// NewHandler creates a project handler.
func NewHandler(repo *repositories.ProjectRepository) *Handler {
	return &Handler{repo: repo}
}

type projectRequest struct {
	ClientID        string `json:"client_id" binding:"required"`
	Name            string `json:"name" binding:"required"`
	Status          string `json:"status"`
	HourlyRateCents int64  `json:"hourly_rate_cents"`
}

var validStatuses = map[string]bool{
	models.ProjectStatusActive:   true,
	models.ProjectStatusOnHold:   true,
	models.ProjectStatusDone:     true,
	models.ProjectStatusArchived: true,
}

// Create handles POST /api/v1/projects.
func (h *Handler) Create(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Status != "" && !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of active, on_hold, done, archived"})
		return
	}

	project := &models.Project{
		ClientID:        req.ClientID,
		Name:            req.Name,
		Status:          req.Status,
		HourlyRateCents: req.HourlyRateCents,
	}

	if err := h.repo.Create(c.Request.Context(), middleware.GetRequestContext(c), project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, project)
}

// Get handles GET /api/v1/projects/:id.
func (h *Handler) Get(c *gin.Context) {
	project, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.JSON(http.StatusOK, project)
}

// List handles GET /api/v1/projects.
func (h *Handler) List(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v >= 1 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}

	projects, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list projects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects, "limit": limit, "offset": offset})
}

// Update handles PUT /api/v1/projects/:id.
func (h *Handler) Update(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Status != "" && !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of active, on_hold, done, archived"})
		return
	}

	project := &models.Project{
		ID:              c.Param("id"),
		ClientID:        req.ClientID,
		Name:            req.Name,
		Status:          req.Status,
		HourlyRateCents: req.HourlyRateCents,
	}

	found, err := h.repo.Update(c.Request.Context(), middleware.GetRequestContext(c), project)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.JSON(http.StatusOK, project)
}

// Delete handles DELETE /api/v1/projects/:id (permanent).
func (h *Handler) Delete(c *gin.Context) {
	found, err := h.repo.Delete(c.Request.Context(), middleware.GetRequestContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
