package logging

import (
	"context"

	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

// WithCorrelationID stores the provided correlation identifier inside the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return ports.WithCorrelationID(ctx, id)
}

// GetCorrelationID retrieves the correlation identifier from the context.
func GetCorrelationID(ctx context.Context) string {
	return ports.GetCorrelationID(ctx)
}

// GenerateCorrelationID creates a new correlation identifier for one CLI invocation.
func GenerateCorrelationID() string {
	return ports.GenerateCorrelationID()
}
