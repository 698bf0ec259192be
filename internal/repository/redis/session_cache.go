package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/client"
	"secmon-service/internal/util"
)

const (
	sessionActivityPrefix = "session_activity:"
	userSessionsPrefix    = "user_sessions:"
)

// SessionCache keeps a hot view of session activity so the validation path
// does not hit the durable store on every request. The durable store stays
// authoritative; cache misses and errors fall through to it.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

// TrackSession records a new session token under its user with the session TTL
func (c *SessionCache) TrackSession(ctx context.Context, userID, token string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := c.client.Pipeline()
	userKey := userSessionsPrefix + userID
	pipe.SAdd(ctx, userKey, token)
	pipe.Expire(ctx, userKey, ttl)
	pipe.Set(ctx, sessionActivityPrefix+token, strconv.FormatInt(time.Now().Unix(), 10), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to track session",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to track session: %w", err)
	}

	return nil
}

// TouchActivity refreshes the cached last-activity timestamp for a token
func (c *SessionCache) TouchActivity(ctx context.Context, token string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionActivityPrefix + token
	if err := c.client.Set(ctx, key, strconv.FormatInt(at.Unix(), 10), 0); err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}
	return nil
}

// Forget drops the cached entries for a token
func (c *SessionCache) Forget(ctx context.Context, userID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.Del(ctx, sessionActivityPrefix+token)
	if userID != "" {
		pipe.SRem(ctx, userSessionsPrefix+userID, token)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget session: %w", err)
	}
	return nil
}

// UserTokens returns the cached token set for a user
func (c *SessionCache) UserTokens(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tokens, err := c.client.SMembers(ctx, userSessionsPrefix+userID)
	if err != nil {
		util.Error("Failed to get cached user sessions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get cached user sessions: %w", err)
	}

	return tokens, nil
}
