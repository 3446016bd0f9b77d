// Package auditlogs exposes the read-only compliance query surface over the
// audit trail. There are deliberately no write endpoints: records enter the
// trail only through the audit recorder, and nothing removes them.
package auditlogs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/db/repositories"
)

// Handler serves audit record queries.
type Handler struct {
	repo *repositories.AuditRepository
}

// NewHandler creates an audit log handler.
func NewHandler(repo *repositories.AuditRepository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /api/v1/audit-logs with optional filters: user_id,
// action, entity_type, entity_id, start_date, end_date (RFC 3339), plus
// limit/offset pagination.
func (h *Handler) List(c *gin.Context) {
	filters := repositories.AuditFilters{}

	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("action"); v != "" {
		filters.Action = &v
	}
	if v := c.Query("entity_type"); v != "" {
		filters.EntityType = &v
	}
	if v := c.Query("entity_id"); v != "" {
		filters.EntityID = &v
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC 3339"})
			return
		}
		filters.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC 3339"})
			return
		}
		filters.EndDate = &t
	}

	limit := parseIntDefault(c.Query("limit"), 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := parseIntDefault(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.repo.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get handles GET /api/v1/audit-logs/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit record"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit record not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
