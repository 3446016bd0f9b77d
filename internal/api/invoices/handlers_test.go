package invoices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-hq/gestio/internal/audit"
	"github.com/gestio-hq/gestio/internal/db/repositories"
	"github.com/gestio-hq/gestio/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var invoiceCols = []string{
	"id", "client_id", "number", "status", "total_cents", "currency",
	"due_on", "notes", "created_at", "updated_at", "deleted_at",
}

type captureWriter struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (w *captureWriter) Write(_ context.Context, rec *audit.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

func (w *captureWriter) written() []*audit.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*audit.Record(nil), w.records...)
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, *captureWriter) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	writer := &captureWriter{}
	repo := repositories.NewInvoiceRepository(
		sqlx.NewDb(db, "postgres"), audit.NewRecorder(writer, nil, nil))
	h := NewHandler(repo)

	r := gin.New()
	r.Use(middleware.RequestContext())
	r.POST("/api/v1/invoices", h.Create)
	r.GET("/api/v1/invoices/:id", h.Get)
	return r, mock, writer
}

func TestCreate_DefaultsAndDueOn(t *testing.T) {
	r, mock, writer := newTestRouter(t)

	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"client_id":"client-1","number":"INV-42","total_cents":50000,"due_on":"2026-09-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"draft"`)
	assert.Contains(t, w.Body.String(), `"currency":"EUR"`)

	recs := writer.written()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.ActionCreated, recs[0].Action)
	assert.Equal(t, "invoices", recs[0].EntityType)
	require.NotNil(t, recs[0].UserID)
	assert.Equal(t, "user-7", *recs[0].UserID)
	assert.Equal(t, "2026-09-30", recs[0].NewValues["due_on"])
}

func TestCreate_InvalidStatus(t *testing.T) {
	r, _, writer := newTestRouter(t)

	body := `{"client_id":"client-1","number":"INV-42","status":"overdue"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "status must be one of")
	assert.Empty(t, writer.written())
}

func TestCreate_BadDueOn(t *testing.T) {
	r, _, writer := newTestRouter(t)

	body := `{"client_id":"client-1","number":"INV-42","due_on":"30/09/2026"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "due_on must be a YYYY-MM-DD date")
	assert.Empty(t, writer.written())
}

func TestCreate_MissingNumber(t *testing.T) {
	r, _, _ := newTestRouter(t)

	body := `{"client_id":"client-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGet(t *testing.T) {
	r, mock, _ := newTestRouter(t)

	now := time.Now().UTC()
	due := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT \\* FROM invoices WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(invoiceCols).
			AddRow("inv-1", "client-1", "INV-42", "sent", int64(50000), "EUR",
				due, "", now, now, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/inv-1", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"number":"INV-42"`)
}

func TestGet_NotFound(t *testing.T) {
	r, mock, _ := newTestRouter(t)

	mock.ExpectQuery("SELECT \\* FROM invoices").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(invoiceCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
