package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims key for token, returns false if already claimed
	SetIdempotency(ctx context.Context, key, token string) (bool, error)

	// ReleaseIdempotency frees key if it is still held by token
	ReleaseIdempotency(ctx context.Context, key, token string) error
}
