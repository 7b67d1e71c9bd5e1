package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// acceptStepScript stores ARGV[1] as the last accepted step unless an equal or newer step is recorded.
var acceptStepScript = redis.NewScript(`
local last = redis.call("GET", KEYS[1])
if last and tonumber(last) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// TOTPStepGuard remembers the last accepted TOTP time step per user so a code cannot be replayed.
type TOTPStepGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTOTPStepGuard keeps records for ttl, which must exceed the verification window.
func NewTOTPStepGuard(rdb *redis.Client, ttl time.Duration) *TOTPStepGuard {
	return &TOTPStepGuard{rdb: rdb, ttl: ttl}
}

func stepKey(userID string) string {
	return "totp:last_step:" + userID
}

// Accept records step for userID and reports false if it was already used.
func (g *TOTPStepGuard) Accept(ctx context.Context, userID string, step int64) (bool, error) {
	res, err := acceptStepScript.Run(ctx, g.rdb, []string{stepKey(userID)}, step, g.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Reset forgets the user's history; called when 2FA is disabled.
func (g *TOTPStepGuard) Reset(ctx context.Context, userID string) error {
	return g.rdb.Del(ctx, stepKey(userID)).Err()
}
