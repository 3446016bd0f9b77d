package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gestio-hq/gestio/internal/audit"
)

const (
	// UserIDHeader and UserRoleHeader carry the authenticated principal,
	// forwarded by the upstream auth gateway after it has validated the
	// session. This service never validates credentials itself; it trusts
	// these headers the same way it trusts X-Forwarded-For from the
	// configured proxies. Absent headers mean an unauthenticated or
	// system-triggered request, which the audit trail records with null
	// principal fields rather than rejecting.
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"

	// RequestContextKey is the gin.Context key holding the audit.RequestContext.
	RequestContextKey = "audit_request_context"
)

// RequestContext returns a Gin handler that assembles the request-scoped
// audit context — acting principal, client IP, user agent, and full URL —
// once per request and stores it in gin.Context. Handlers fetch it with
// GetRequestContext and pass it explicitly into the repository layer; the
// audit pipeline never reads ambient request state on its own.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := audit.RequestContext{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			URL:       requestURL(c),
		}

		if id := c.GetHeader(UserIDHeader); id != "" {
			rc.UserID = &id
			if role := c.GetHeader(UserRoleHeader); role != "" {
				rc.UserRole = &role
			}
		}

		c.Set(RequestContextKey, rc)
		c.Next()
	}
}

// GetRequestContext retrieves the audit context stored by RequestContext.
// It returns a zero-value context when the middleware did not run (direct
// handler tests), which the audit trail treats as a system-triggered change.
func GetRequestContext(c *gin.Context) audit.RequestContext {
	if v, ok := c.Get(RequestContextKey); ok {
		if rc, ok := v.(audit.RequestContext); ok {
			return rc
		}
	}
	return audit.SystemContext()
}

// requestURL reconstructs the full URL of the request. Gin only stores the
// relative URI; scheme and host are recovered from the request itself.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}
