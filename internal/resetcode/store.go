package resetcode

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "rcode"
	codeDigits = 6
)

var (
	ErrNotFound         = errors.New("reset code not found")
	ErrMismatch         = errors.New("reset code mismatch")
	ErrAttemptsExceeded = errors.New("reset code attempts exceeded")
	ErrRateLimited      = errors.New("reset code rate limited")
	ErrUnavailable      = errors.New("reset code store unavailable")
)

// consumeScript compares the stored hash and counts failures in one round trip.
// Returns 1 on match (record deleted), 0 on mismatch, -1 when missing and
// -2 when the last allowed attempt was used (record deleted).
var consumeScript = redis.NewScript(`
local h = redis.call('HGET', KEYS[1], 'hash')
if not h then return -1 end
if h == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
local a = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if a >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return -2
end
return 0
`)

type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// Store keeps one pending code per account in Redis. Only the SHA-256 of a
// code is stored; issuing a new code replaces the previous one.
type Store struct {
	redis redis.UniversalClient
	cfg   Config
}

func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Store{redis: client, cfg: cfg}
}

func codeKey(accountID int64) string {
	return keyPrefix + ":code:" + strconv.FormatInt(accountID, 10)
}

func issueKey(accountID int64) string {
	return keyPrefix + ":issued:" + strconv.FormatInt(accountID, 10)
}

// Issue generates a fresh code for the account and returns it in clear.
// At most MaxAttempts codes may be issued per account within one TTL window.
func (s *Store) Issue(ctx context.Context, accountID int64) (string, error) {
	if err := s.enforceFixedWindow(ctx, issueKey(accountID)); err != nil {
		return "", err
	}
	code, err := generateCode(codeDigits)
	if err != nil {
		return "", err
	}
	key := codeKey(accountID)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "hash", hashCode(code), "attempts", 0)
		p.Expire(ctx, key, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return code, nil
}

// Consume checks code against the pending one. A match deletes the record so a
// code works once.
func (s *Store) Consume(ctx context.Context, accountID int64, code string) error {
	res, err := consumeScript.Run(ctx, s.redis, []string{codeKey(accountID)}, hashCode(code), s.cfg.MaxAttempts).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNotFound
	case -2:
		return ErrAttemptsExceeded
	default:
		return ErrMismatch
	}
}

func (s *Store) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > int64(s.cfg.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func generateCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
