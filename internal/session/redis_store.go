package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis with a per-key TTL, so expiry is
// enforced by the store itself and expired tokens are indistinguishable
// from absent ones. A per-user index set keeps DeleteByUser possible.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	userIndex string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "session:",
		userIndex: "user_sessions:",
	}
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

func (r *RedisStore) indexKey(userID uuid.UUID) string {
	return r.userIndex + userID.String()
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(s.Token), data, ttl)
	pipe.SAdd(ctx, r.indexKey(s.UserID), s.Token)
	// Keep the index alive at least as long as its longest session.
	pipe.ExpireGT(ctx, r.indexKey(s.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

// touchScript extends a still-present session in one atomic step. A
// plain read-modify-write would let the SET resurrect a key a concurrent
// revoke deleted in between.
var touchScript = redis.NewScript(`
local data = redis.call("GET", KEYS[1])
if not data then
	return false
end
local s = cjson.decode(data)
s["ExpiresAt"] = ARGV[1]
s["LastSeenAt"] = ARGV[2]
data = cjson.encode(s)
redis.call("SET", KEYS[1], data, "PX", ARGV[3])
return data
`)

func (r *RedisStore) Touch(ctx context.Context, token string, expiresAt time.Time) (*Session, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil, ErrNotFound
	}

	val, err := touchScript.Run(ctx, r.client,
		[]string{r.key(token)},
		expiresAt.Format(time.RFC3339Nano),
		time.Now().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: touch: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	s, err := r.Get(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(token))
	pipe.SRem(ctx, r.indexKey(s.UserID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	tokens, err := r.client.SMembers(ctx, r.indexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("session: delete by user: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, r.key(token))
	}
	pipe.Del(ctx, r.indexKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: delete by user: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (r *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
