// Package deeplink repurposes go-chi/chi as a dispatch table for incoming
// app-link/QR/push-notification payloads, the one place chi's "route by
// path" pattern genuinely fits a client library with no inbound HTTP
// server of its own: a host OS hands this process a deep-link URI (from
// an app-link activation, a scanned QR code, or a push notification's
// embedded URL), and this package routes it to the right SessionCoordinator
// family by path prefix.
package deeplink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mpin-labs/mpinclient/internal/session"
)

// Handler resolves one deep-link URI to a SessionDetails.
type Handler func(ctx context.Context, rawURL string) (session.SessionDetails, error)

// Router dispatches a deep-link URI to the Handler registered for its
// path, based on the URI's path component (the fragment, which carries
// the session id, is left untouched for the handler to parse).
type Router struct {
	mux *chi.Mux
}

// NewRouter builds a Router wiring coordinator's three families to the
// conventional app-link paths a host project configures on its M-Pin
// platform: /auth for authentication sessions, /sign for signing
// sessions, /session for the unified cross-device variant.
func NewRouter(coordinator *session.Coordinator) *Router {
	r := chi.NewRouter()
	register := func(pattern string, family session.Family) {
		r.Get(pattern, func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			rawURL := req.Context().Value(rawURLKey{}).(string)
			details, err := coordinator.FromAppLink(ctx, family, rawURL)
			storeResult(req, details, err)
		})
	}
	register("/auth", session.FamilyAuthentication)
	register("/sign", session.FamilySigning)
	register("/session", session.FamilyCrossDevice)
	return &Router{mux: r}
}

type rawURLKey struct{}
type resultKey struct{}

type dispatchResult struct {
	details session.SessionDetails
	err     error
}

func storeResult(req *http.Request, details session.SessionDetails, err error) {
	if holder, ok := req.Context().Value(resultKey{}).(*dispatchResult); ok {
		holder.details = details
		holder.err = err
	}
}

// Dispatch parses rawURL's path to find the registered family and routes
// it through that family's FromAppLink extractor, returning whatever
// SessionDetails (or error) the extractor produced. Unregistered paths
// fall through to session.ErrInvalidAppLink.
func (r *Router) Dispatch(ctx context.Context, rawURL string) (session.SessionDetails, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return session.SessionDetails{}, session.ErrInvalidAppLink
	}

	result := &dispatchResult{}
	ctx = context.WithValue(ctx, rawURLKey{}, rawURL)
	ctx = context.WithValue(ctx, resultKey{}, result)

	req := httptest.NewRequest(http.MethodGet, u.Path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusNotFound {
		return session.SessionDetails{}, session.ErrInvalidAppLink
	}
	return result.details, result.err
}
