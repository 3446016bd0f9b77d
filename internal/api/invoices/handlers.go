// Package invoices implements the invoice CRUD endpoints.
package invoices

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/db/models"
	"github.com/gestio-hq/gestio/internal/db/repositories"
	"github.com/gestio-hq/gestio/internal/middleware"
)

// Handler serves invoice CRUD requests.
type Handler struct {
	repo *repositories.InvoiceRepository
}

// NewHandler creates an invoice handler.
func NewHandler(repo *repositories.InvoiceRepository) *Handler {
	return &Handler{repo: repo}
}

type invoiceRequest struct {
	ClientID   string `json:"client_id" binding:"required"`
	Number     string `json:"number" binding:"required"`
	Status     string `json:"status"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
	DueOn      string `json:"due_on"` // YYYY-MM-DD
	Notes      string `json:"notes"`
}

var validStatuses = map[string]bool{
	models.InvoiceStatusDraft:     true,
	models.InvoiceStatusSent:      true,
	models.InvoiceStatusPaid:      true,
	models.InvoiceStatusCancelled: true,
}

// toModel validates the request and converts it. It returns a user-facing
// error message when validation fails.
func (req *invoiceRequest) toModel(id string) (*models.Invoice, string) {
	if req.Status != "" && !validStatuses[req.Status] {
		return nil, "status must be one of draft, sent, paid, cancelled"
	}

	inv := &models.Invoice{
		ID:         id,
		ClientID:   req.ClientID,
		Number:     req.Number,
		Status:     req.Status,
		TotalCents: req.TotalCents,
		Currency:   req.Currency,
		Notes:      req.Notes,
	}
	if inv.Currency == "" {
		inv.Currency = "EUR"
	}
	if req.DueOn != "" {
		due, err := time.Parse("2006-01-02", req.DueOn)
		if err != nil {
			return nil, "due_on must be a YYYY-MM-DD date"
		}
		inv.DueOn = &due
	}

	return inv, ""
}

// Create handles POST /api/v1/invoices.
func (h *Handler) Create(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	inv, msg := req.toModel("")
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if err := h.repo.Create(c.Request.Context(), middleware.GetRequestContext(c), inv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice"})
		return
	}

	c.JSON(http.StatusCreated, inv)
}

// Get handles GET /api/v1/invoices/:id.
func (h *Handler) Get(c *gin.Context) {
	inv, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice"})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	c.JSON(http.StatusOK, inv)
}

// List handles GET /api/v1/invoices with optional client_id filter.
func (h *Handler) List(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v >= 1 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}

	var clientID *string
	if v := c.Query("client_id"); v != "" {
		clientID = &v
	}

	invoices, err := h.repo.List(c.Request.Context(), clientID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "limit": limit, "offset": offset})
}

// Update handles PUT /api/v1/invoices/:id.
func (h *Handler) Update(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	inv, msg := req.toModel(c.Param("id"))
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	found, err := h.repo.Update(c.Request.Context(), middleware.GetRequestContext(c), inv)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update invoice"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	c.JSON(http.StatusOK, inv)
}

// Delete handles DELETE /api/v1/invoices/:id (soft delete).
func (h *Handler) Delete(c *gin.Context) {
	found, err := h.repo.SoftDelete(c.Request.Context(), middleware.GetRequestContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete invoice"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Restore handles POST /api/v1/invoices/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	found, err := h.repo.Restore(c.Request.Context(), middleware.GetRequestContext(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore invoice"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found or not deleted"})
		return
	}

	c.Status(http.StatusNoContent)
}
