package authz

import (
	"log/slog"
	"net/http"

	"github.com/aegis-platform/aegis/internal/platform/httpx"
	"github.com/aegis-platform/aegis/internal/shared"
)

// Middleware wires access checks in front of HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require guards a route behind the given operations on one system-owned
// resource. The viewer comes from the request metadata; a missing viewer is
// checked as guest.
func (m Middleware) Require(resType, resData string, ops ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(ops) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			viewerID := shared.MetaFromContext(r.Context()).ActorID
			err := m.Resolver.Check(r.Context(), viewerID, nil, []CheckItem{{
				ResType: resType,
				ResData: resData,
				Ops:     ops,
			}})
			if err != nil {
				httpx.RespondError(m.Logger, w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
