// Package clients implements the client CRUD endpoints. Every write endpoint
// passes the request-scoped audit context into the repository layer, which
// is what ties the HTTP surface to the audit trail.
package clients

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/db/models"
	"github.com/gestio-hq/gestio/internal/db/repositories"
	"github.com/gestio-hq/gestio/internal/middleware"
)

// Handler serves client CRUD requests.
type Handler struct {
	repo *repositories.ClientRepository
}

// NewHandler creates a client handler.
func NewHandler(repo *repositories.ClientRepository) *Handler {
	return &Handler{repo: repo}
}

type clientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Notes   string `json:"notes"`
}

// Create handles POST /api/v1/clients.
func (h *Handler) Create(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	client := &models.Client{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Notes:   req.Notes,
	}

	if err := h.repo.Create(c.Request.Context(), middleware.GetRequestContext(c), client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
		return
	}

	c.JSON(http.StatusCreated, client)
}

// Get handles GET /api/v1/clients/:id.
func (h *Handler) Get(c *gin.Context) {
	client, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
		return
	}
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	c.JSON(http.StatusOK, client)
}

// List handles GET /api/v1/clients.
func (h *Handler) List(c *gin.Context) {
	limit, offset := pagination(c)

	clients, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clients"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clients": clients, "limit": limit, "offset": offset})
}

// Update handles PUT /api/v1/clients/:id.
func (h *Handler) Update(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	client := &models.Client{
		ID:      c.Param("id"),
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Notes:   req.Notes,
	}

	found, err := h.repo.Update(c.Request.Context(), middleware.GetRequestContext(c), client)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	c.JSON(http.StatusOK, client)
}

// Delete handles DELETE /api/v1/clients/:id (soft delete).
func (h *Handler) Delete(c *gin.Context) {
	found, err := h.repo.SoftDelete(c.Request.Context(), middleware.GetRequestContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete client"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Restore handles POST /api/v1/clients/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	found, err := h.repo.Restore(c.Request.Context(), middleware.GetRequestContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore client"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found or not deleted"})
		return
	}

	c.Status(http.StatusNoContent)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v >= 1 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
