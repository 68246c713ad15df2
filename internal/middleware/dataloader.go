package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/propspec/internal/entityloader"
)

type ctxKey string

const entityLoaderKey ctxKey = "entityLoader"

// DataLoaderMiddleware attaches a fresh entity loader to every request, so
// batches and cached lookups never outlive the request.
func DataLoaderMiddleware(finder entityloader.PathFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithEntityLoader(r.Context(), entityloader.NewEntityLoader(finder))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithEntityLoader stores loader in ctx.
func WithEntityLoader(ctx context.Context, loader *entityloader.EntityLoader) context.Context {
	return context.WithValue(ctx, entityLoaderKey, loader)
}

// EntityLoaderFromContext retrieves the request's entity loader, or nil.
func EntityLoaderFromContext(ctx context.Context) *entityloader.EntityLoader {
	if l, ok := ctx.Value(entityLoaderKey).(*entityloader.EntityLoader); ok {
		return l
	}
	return nil
}
