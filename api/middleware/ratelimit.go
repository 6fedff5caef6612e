package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell-labs/inkwell-backend/api/responses"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type limiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per authenticated user on the wrapped routes using
// a fixed window counter in redis. Unauthenticated requests fall back to the
// remote address. A redis failure lets the request through; the limiter
// protects capacity, it is not an auth boundary.
func RateLimit(store limiter, scope string, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			subject := UserIDFromContext(ctx)
			if subject == "" {
				subject = r.RemoteAddr
			}

			allowed, count, err := store.FixedWindowAllow(ctx, scope+":"+subject, limit, window)
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("rate limit check failed, allowing request: %v", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("rate limit exceeded for %s (%d in window)", scope, count))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
