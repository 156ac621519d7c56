// Package claim marks a due event as taken before it is executed, so that two
// scheduler processes sharing a store do not both deliver it.
package claim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer grants at most one caller the right to execute an event for a given slot.
// A slot identifies one scheduled occurrence, such as its due time.
type Claimer interface {
	Claim(ctx context.Context, eventID, slot string) (bool, error)
}

// NoopClaimer grants every claim. It is the default for a single process.
type NoopClaimer struct{}

func (NoopClaimer) Claim(ctx context.Context, eventID, slot string) (bool, error) {
	return true, nil
}

var _ Claimer = NoopClaimer{}

type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisClaimer{client: client, ttl: ttl, prefix: "herald:claim"}
}

func (c *RedisClaimer) key(eventID, slot string) string {
	return c.prefix + ":" + eventID + ":" + slot
}

func (c *RedisClaimer) Claim(ctx context.Context, eventID, slot string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(eventID, slot), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s for slot %s: %w", eventID, slot, err)
	}
	return ok, nil
}

var _ Claimer = (*RedisClaimer)(nil)

// MemoryClaimer grants each (event, slot) pair once per process.
type MemoryClaimer struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{
		claimed: make(map[string]struct{}),
	}
}

func (c *MemoryClaimer) Claim(ctx context.Context, eventID, slot string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := eventID + ":" + slot
	if _, taken := c.claimed[key]; taken {
		return false, nil
	}
	c.claimed[key] = struct{}{}
	return true, nil
}

var _ Claimer = (*MemoryClaimer)(nil)
