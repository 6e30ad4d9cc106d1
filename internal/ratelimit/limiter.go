// Package ratelimit bounds how often a key may perform an action within a window.
package ratelimit

import "context"

// Limiter decides whether the next request for key is allowed. Allowed
// requests are counted against the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
