package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modelgate/modelgate-go/pkg/logger"
)

// RedisStore keeps the token pair in Redis under fixed key names below a
// prefix. Meant for host applications that already run Redis and want the
// session shared across processes. Tokens are stored without TTL; lifecycle
// is driven entirely by SetTokens/Clear.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore creates a Redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "modelgate:session:"
	}
	return &RedisStore{client: client, prefix: prefix, timeout: 3 * time.Second}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *RedisStore) get(name string) string {
	ctx, cancel := s.ctx()
	defer cancel()
	v, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("session: redis read %s failed: %v", name, err)
		}
		return ""
	}
	return v
}

func (s *RedisStore) AccessToken() string {
	return s.get(accessTokenKey)
}

func (s *RedisStore) RefreshToken() string {
	return s.get(refreshTokenKey)
}

func (s *RedisStore) SetTokens(p TokenPair) {
	ctx, cancel := s.ctx()
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(accessTokenKey), p.AccessToken, 0)
	pipe.Set(ctx, s.key(refreshTokenKey), p.RefreshToken, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf("session: redis write failed: %v", err)
	}
}

func (s *RedisStore) Clear() {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Del(ctx, s.key(accessTokenKey), s.key(refreshTokenKey)).Err(); err != nil {
		logger.Warnf("session: redis clear failed: %v", err)
	}
}
