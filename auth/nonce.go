package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "basebuzz:nonce:"

// NonceStore keeps the pending sign-in challenge of each wallet address.
//
// Get returns the pending challenge without removing it, or nil and no error when
// there is none. Consume removes the challenge only if it still carries c's nonce
// and reports whether it did, so of two requests answering the same challenge
// exactly one succeeds. A failed attempt never removes a challenge.
type NonceStore interface {
	Put(ctx context.Context, c *Challenge, ttl time.Duration) error
	Get(ctx context.Context, address string) (*Challenge, error)
	Consume(ctx context.Context, c *Challenge) (bool, error)
}

// RedisNonceStore stores each challenge as a hash of its nonce and its json encoding.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedisNonceStore returns a NonceStore backed by client.
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

// consumeScript deletes KEYS[1] if its nonce field equals ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "nonce") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisNonceStore) Put(ctx context.Context, c *Challenge, ttl time.Duration) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	key := nonceKeyPrefix + c.Address
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "nonce", c.Nonce, "challenge", b)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("err storing nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Get(ctx context.Context, address string) (*Challenge, error) {
	b, err := s.client.HGet(ctx, nonceKeyPrefix+address, "challenge").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("err reading nonce: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("err decoding nonce: %w", err)
	}
	return &c, nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, c *Challenge) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{nonceKeyPrefix + c.Address}, c.Nonce).Int()
	if err != nil {
		return false, fmt.Errorf("err consuming nonce: %w", err)
	}
	return n == 1, nil
}

// MemoryNonceStore keeps challenges in process memory. Used when no Redis is configured
// and in tests; it only works with a single server instance.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]memoryNonce
	now     func() time.Time
}

type memoryNonce struct {
	challenge Challenge
	expires   time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		entries: make(map[string]memoryNonce),
		now:     time.Now,
	}
}

func (s *MemoryNonceStore) Put(_ context.Context, c *Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// Drop whatever has expired in the meantime.
	for address, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, address)
		}
	}
	s.entries[c.Address] = memoryNonce{challenge: *c, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Get(_ context.Context, address string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(address)
	if !ok {
		return nil, nil
	}
	c := e.challenge
	return &c, nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, c *Challenge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(c.Address)
	if !ok || e.challenge.Nonce != c.Nonce {
		return false, nil
	}
	delete(s.entries, c.Address)
	return true, nil
}

// live returns the unexpired entry of address. The caller holds s.mu.
func (s *MemoryNonceStore) live(address string) (memoryNonce, bool) {
	e, ok := s.entries[address]
	if !ok {
		return memoryNonce{}, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, address)
		return memoryNonce{}, false
	}
	return e, true
}
