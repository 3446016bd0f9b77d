package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/audit"
)

// newRequestContextRouter captures the audit.RequestContext the middleware
// stored for the handler.
func newRequestContextRouter(captured *audit.RequestContext) *gin.Engine {
	r := gin.New()
	r.Use(RequestContext())
	r.GET("/api/v1/invoices/:id", func(c *gin.Context) {
		*captured = GetRequestContext(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestContext_AuthenticatedRequest(t *testing.T) {
	var rc audit.RequestContext
	r := newRequestContextRouter(&rc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/42?fields=all", nil)
	req.Host = "gestio.test"
	req.Header.Set(UserIDHeader, "user-7")
	req.Header.Set(UserRoleHeader, "admin")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile Safari")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if rc.UserID == nil || *rc.UserID != "user-7" {
		t.Errorf("UserID = %v, want user-7", rc.UserID)
	}
	if rc.UserRole == nil || *rc.UserRole != "admin" {
		t.Errorf("UserRole = %v, want admin", rc.UserRole)
	}
	if rc.UserAgent != "Mozilla/5.0 (iPhone) Mobile Safari" {
		t.Errorf("UserAgent = %q", rc.UserAgent)
	}
	if rc.URL != "http://gestio.test/api/v1/invoices/42?fields=all" {
		t.Errorf("URL = %q, want the full request URL with query", rc.URL)
	}
	if rc.IPAddress == "" {
		t.Error("IPAddress not captured")
	}
}

func TestRequestContext_AnonymousRequest(t *testing.T) {
	var rc audit.RequestContext
	r := newRequestContextRouter(&rc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if rc.UserID != nil {
		t.Errorf("UserID = %v, want nil for anonymous request", *rc.UserID)
	}
	if rc.UserRole != nil {
		t.Errorf("UserRole = %v, want nil for anonymous request", *rc.UserRole)
	}
}

func TestRequestContext_RoleWithoutUserIgnored(t *testing.T) {
	var rc audit.RequestContext
	r := newRequestContextRouter(&rc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/42", nil)
	req.Header.Set(UserRoleHeader, "admin") // role with no principal
	r.ServeHTTP(httptest.NewRecorder(), req)

	if rc.UserRole != nil {
		t.Errorf("UserRole = %v, want nil when no user ID accompanies it", *rc.UserRole)
	}
}

func TestRequestContext_ForwardedProtoScheme(t *testing.T) {
	var rc audit.RequestContext
	r := newRequestContextRouter(&rc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/42", nil)
	req.Host = "gestio.test"
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if rc.URL != "https://gestio.test/api/v1/invoices/42" {
		t.Errorf("URL = %q, want the forwarded https scheme", rc.URL)
	}
}

func TestGetRequestContext_FallsBackToSystemContext(t *testing.T) {
	// A handler invoked without the middleware sees the system context.
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	rc := GetRequestContext(c)
	if rc.UserID != nil || rc.IPAddress != "" {
		t.Errorf("GetRequestContext without middleware = %+v, want zero-value system context", rc)
	}
}
