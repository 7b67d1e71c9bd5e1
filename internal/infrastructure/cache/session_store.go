package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps the active session id per user in a Redis hash.
// One session per user: issuing a new one replaces the previous sid.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func sessionKey(userID string) string {
	return "user:session:" + userID
}

func (s *SessionStore) Save(ctx context.Context, userID, email, sid string, ttl time.Duration) error {
	key := sessionKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"user_id":    userID,
		"email":      email,
		"sid":        sid,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Active reports whether sid is the current session of userID.
func (s *SessionStore) Active(ctx context.Context, userID, sid string) (bool, error) {
	got, err := s.rdb.HGet(ctx, sessionKey(userID), "sid").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "" && got == sid, nil
}

func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, sessionKey(userID)).Err()
}
