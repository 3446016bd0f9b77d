package audit

// RequestContext carries the request-scoped metadata attached to every audit
// record. It is built once per request (see middleware.RequestContext) and
// passed explicitly through the repository layer to the recorder — the
// pipeline never reads principal or request data from process-wide state.
type RequestContext struct {
	// UserID and UserRole identify the acting principal. Both are nil for
	// unauthenticated or system-triggered changes.
	UserID   *string
	UserRole *string

	// IPAddress is the client's origin network address.
	IPAddress string

	// UserAgent is the raw client user-agent string.
	UserAgent string

	// URL is the full request URL that triggered the change.
	URL string
}

// SystemContext returns the RequestContext used for changes with no
// originating HTTP request (migrations, background jobs).
func SystemContext() RequestContext {
	return RequestContext{}
}
