package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/aegis-platform/aegis/internal/observability"
	"github.com/aegis-platform/aegis/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// requestMetaMiddleware lifts caller attribution headers into the request
// context. The viewer identity is established by the fronting gateway;
// this service trusts its headers.
func requestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := strconv.ParseInt(r.Header.Get("X-Viewer-ID"), 10, 64)
		meta := shared.RequestMeta{
			ActorID:   actorID,
			TokenFP:   r.Header.Get("X-Token-FP"),
			Device:    r.Header.Get("X-Device"),
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithMeta(r.Context(), meta)))
	})
}

// MiddlewareStack installs the platform middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		requestMetaMiddleware,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		middleware.Compress(5),
	}
	if !InTestMode() {
		middlewares = append(middlewares,
			httprate.Limit(600, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}
