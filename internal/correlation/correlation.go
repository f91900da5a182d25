package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey struct{}

const (
	// FieldKey is the structured log field the line encoder renders in the correlation column.
	FieldKey = "traceid"
	// Missing is returned when no identifier was stored in the context.
	Missing = "miss_traceid"
)

// WithID returns a copy of ctx in which id is the current correlation identifier.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation identifier stored in ctx, or def if there is none.
func FromContext(ctx context.Context, def string) string {
	if ctx == nil {
		return def
	}
	id, ok := ctx.Value(contextKey{}).(string)
	if !ok {
		return def
	}
	return id
}

// ID returns the correlation identifier stored in ctx, or Missing.
func ID(ctx context.Context) string {
	return FromContext(ctx, Missing)
}

// NewID generates a random 128-bit identifier encoded as 32 lowercase hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Field returns the correlation identifier of ctx as a log field.
func Field(ctx context.Context) zap.Field {
	return zap.String(FieldKey, ID(ctx))
}
