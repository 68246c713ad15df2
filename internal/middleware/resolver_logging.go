package middleware

import (
	"context"
	"time"

	"github.com/99designs/gqlgen/graphql"

	"github.com/rpattn/propspec/internal/logger"
)

// ResolverLoggerExtension logs every resolver call with its duration.
// Failed resolvers are logged at warn level.
type ResolverLoggerExtension struct {
	Log logger.Logger
}

var (
	_ graphql.HandlerExtension = (*ResolverLoggerExtension)(nil)
	_ graphql.FieldInterceptor = (*ResolverLoggerExtension)(nil)
)

// ExtensionName implements graphql.HandlerExtension
func (e *ResolverLoggerExtension) ExtensionName() string {
	return "ResolverLogger"
}

// Validate implements graphql.HandlerExtension
func (e *ResolverLoggerExtension) Validate(graphql.ExecutableSchema) error {
	return nil
}

// InterceptField implements graphql.FieldInterceptor
func (e *ResolverLoggerExtension) InterceptField(ctx context.Context, next graphql.Resolver) (any, error) {
	start := time.Now()
	res, err := next(ctx)

	log := e.Log.WithContext(ctx)
	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	if fc := graphql.GetFieldContext(ctx); fc != nil && fc.Field.Field != nil {
		event = event.Str("object", fc.Object).Str("field", fc.Field.Name)
	}
	event.Dur("duration", time.Since(start)).Msg("graphql resolver")
	return res, err
}
