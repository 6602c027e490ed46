package port

import (
	"context"
	"time"
)

// EffectivePermissionCache stores the encoded effective directive set per
// subject for low-latency authorization checks. Entries use the canonical
// directive string form so hits can be decoded without re-expansion.
type EffectivePermissionCache interface {
	Get(ctx context.Context, userID string) ([]string, error)
	Set(ctx context.Context, userID string, encoded []string, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}
