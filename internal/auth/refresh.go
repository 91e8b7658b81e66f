package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRefreshRevoked is returned when a refresh token is syntactically
// valid but no longer on the allow-list (logged out or already rotated).
var ErrRefreshRevoked = errors.New("refresh token revoked")

// RefreshStore keeps an allow-list of outstanding refresh tokens in
// Redis. Only the SHA-256 of the token is stored; a dump of the store
// never yields usable tokens. Entries expire together with the token.
type RefreshStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRefreshStore(client *redis.Client, ttl time.Duration) *RefreshStore {
	return &RefreshStore{client: client, ttl: ttl}
}

// Save puts a freshly issued refresh token on the allow-list.
func (s *RefreshStore) Save(ctx context.Context, userID int64, token string) error {
	if err := s.client.Set(ctx, s.key(token), userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Validate checks that the token is still outstanding.
func (s *RefreshStore) Validate(ctx context.Context, token string) error {
	err := s.client.Get(ctx, s.key(token)).Err()
	if errors.Is(err, redis.Nil) {
		return ErrRefreshRevoked
	}
	if err != nil {
		return fmt.Errorf("validate refresh token: %w", err)
	}
	return nil
}

// Revoke removes the token from the allow-list. Revoking an unknown
// token is a no-op, so logout is idempotent.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Rotate swaps an old token for a new one. Both commands ride one
// MULTI/EXEC transaction, so no point in time observes the old token
// gone and the new one absent.
func (s *RefreshStore) Rotate(ctx context.Context, userID int64, oldToken, newToken string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(oldToken))
	pipe.Set(ctx, s.key(newToken), userID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

func (s *RefreshStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "refresh:" + hex.EncodeToString(sum[:])
}
