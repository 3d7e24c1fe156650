// Package redisreg implements the live session registry: the shared,
// cross-call view of which CallSessions are currently active, grounded on
// the teacher's session.Manager Redis bookkeeping (HSet/SAdd/Expire per
// session, SRem/Del on teardown), generalized from a single in-process
// ClientSession map into a registry any process instance can query.
package redisreg

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "voxcore:active_sessions"

func sessionKey(callID string) string { return "voxcore:session:" + callID }

// Registry is a thin wrapper over a Redis client recording call liveness.
// A nil *redis.Client degrades gracefully to a no-op registry, matching the
// teacher's "continue without Redis if unavailable" posture.
type Registry struct {
	client *redis.Client
}

// New connects to addr. If the ping fails, it returns a Registry with a nil
// client so callers can keep operating without a live-session directory.
func New(addr, password string) *Registry {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return &Registry{client: nil}
	}
	return &Registry{client: client}
}

// Available reports whether the registry has a live Redis connection.
func (r *Registry) Available() bool { return r.client != nil }

// Register records a newly started call session, expiring automatically
// after ttl if the session is never explicitly removed (crash safety).
func (r *Registry) Register(ctx context.Context, callID string, isTwilio bool, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	now := time.Now().Format(time.RFC3339)
	if err := r.client.HSet(ctx, sessionKey(callID), map[string]any{
		"created_at":    now,
		"last_activity": now,
		"status":        "active",
		"is_twilio":     isTwilio,
	}).Err(); err != nil {
		return fmt.Errorf("redisreg: register %s: %w", callID, err)
	}
	if err := r.client.SAdd(ctx, activeSessionsKey, callID).Err(); err != nil {
		return fmt.Errorf("redisreg: sadd %s: %w", callID, err)
	}
	return r.client.Expire(ctx, sessionKey(callID), ttl).Err()
}

// Touch refreshes last_activity, extending the TTL so long-running calls
// are not evicted mid-conversation.
func (r *Registry) Touch(ctx context.Context, callID string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.HSet(ctx, sessionKey(callID), "last_activity", time.Now().Format(time.RFC3339)).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, sessionKey(callID), ttl).Err()
}

// Remove deregisters a completed call session.
func (r *Registry) Remove(ctx context.Context, callID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, sessionKey(callID)).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, activeSessionsKey, callID).Err()
}

// ActiveCount returns the number of currently registered sessions across
// every process instance sharing this Redis deployment.
func (r *Registry) ActiveCount(ctx context.Context) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	return r.client.SCard(ctx, activeSessionsKey).Result()
}

// Close releases the underlying client.
func (r *Registry) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
