package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a record is absent or already expired.
var ErrNotFound = errors.New("session record not found")

const (
	pendingPrefix      = "session:"
	refreshPrefix      = "refresh_token:"
	refreshIndexPrefix = "refresh_tokens:"
)

// consumeRefreshScript reads and deletes a refresh record in one step so two
// concurrent callers presenting the same token cannot both observe it.
const consumeRefreshScript = `
local owner = redis.call("GET", KEYS[1])
if not owner then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. owner, ARGV[2])
return owner
`

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

const deleteRefreshScript = `
local owner = redis.call("GET", KEYS[1])
if not owner or owner ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[2])
return 1
`

var deleteRefreshLua = redis.NewScript(deleteRefreshScript)

const revokeAllScript = `
local tokens = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, t in ipairs(tokens) do
  removed = removed + redis.call("DEL", ARGV[1] .. t)
end
redis.call("DEL", KEYS[1])
return removed
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Store is the Redis-backed owner of every ephemeral authentication record:
// pending second-factor markers and refresh tokens. Records expire through
// Redis TTLs, so nothing needs sweeping.
type Store struct {
	redis redis.UniversalClient
}

// NewStore creates a [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

func pendingKey(accountID int64) string {
	return pendingPrefix + strconv.FormatInt(accountID, 10)
}

func refreshKey(token string) string {
	return refreshPrefix + token
}

func refreshIndexKey(accountID int64) string {
	return refreshIndexPrefix + strconv.FormatInt(accountID, 10)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

/*
====================================
PENDING SECOND FACTOR
====================================
*/

// SavePending stores the pending-2FA marker for accountID, replacing any
// earlier one.
func (s *Store) SavePending(ctx context.Context, accountID int64, marker *PendingTwoFactor, ttl time.Duration) error {
	data, err := Encode(marker)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, pendingKey(accountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetPending returns the marker for accountID or [ErrNotFound].
func (s *Store) GetPending(ctx context.Context, accountID int64) (*PendingTwoFactor, error) {
	data, err := s.redis.Get(ctx, pendingKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// DeletePending removes the marker. Deleting a missing marker is not an error.
func (s *Store) DeletePending(ctx context.Context, accountID int64) error {
	if err := s.redis.Del(ctx, pendingKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

/*
====================================
REFRESH TOKENS
====================================
*/

// SaveRefresh stores token -> accountID with ttl and adds the token to the
// account's index. The index TTL is pushed out to the newest token's expiry.
func (s *Store) SaveRefresh(ctx context.Context, accountID int64, token string, ttl time.Duration) error {
	if token == "" {
		return errors.New("empty refresh token")
	}
	indexKey := refreshIndexKey(accountID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshKey(token), strconv.FormatInt(accountID, 10), ttl)
		pipe.SAdd(ctx, indexKey, token)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LookupRefresh returns the owner of token without consuming it.
func (s *Store) LookupRefresh(ctx context.Context, token string) (int64, error) {
	raw, err := s.redis.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return parseOwner(raw)
}

// ConsumeRefresh atomically deletes token and returns its owner. Of any
// number of concurrent calls with the same token, at most one succeeds; the
// rest get [ErrNotFound].
func (s *Store) ConsumeRefresh(ctx context.Context, token string) (int64, error) {
	res, err := consumeRefreshLua.Run(ctx, s.redis, []string{refreshKey(token)}, refreshIndexPrefix, token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	raw, ok := res.(string)
	if !ok {
		return 0, ErrCorruptRecord
	}
	return parseOwner(raw)
}

// DeleteRefresh removes token only when it belongs to accountID. It reports
// whether a record was removed.
func (s *Store) DeleteRefresh(ctx context.Context, accountID int64, token string) (bool, error) {
	owner := strconv.FormatInt(accountID, 10)
	n, err := deleteRefreshLua.Run(ctx, s.redis,
		[]string{refreshKey(token), refreshIndexKey(accountID)},
		owner, token,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RevokeAllRefresh deletes every indexed refresh token of accountID and
// returns how many live records were removed.
func (s *Store) RevokeAllRefresh(ctx context.Context, accountID int64) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{refreshIndexKey(accountID)}, refreshPrefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ActiveRefreshCount returns the number of indexed refresh tokens for
// accountID. Expired tokens may still be counted until the index expires.
func (s *Store) ActiveRefreshCount(ctx context.Context, accountID int64) (int, error) {
	n, err := s.redis.SCard(ctx, refreshIndexKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// RevokeAccount removes the pending marker and every refresh token of
// accountID.
func (s *Store) RevokeAccount(ctx context.Context, accountID int64) error {
	if err := s.DeletePending(ctx, accountID); err != nil {
		return err
	}
	_, err := s.RevokeAllRefresh(ctx, accountID)
	return err
}

func parseOwner(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrCorruptRecord
	}
	return id, nil
}
