package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProcessedEventTracker remembers webhook event ids so exact redeliveries can
// be short-circuited before any store work. Losing the keys is harmless: the
// store's compare-and-set transition stays idempotent without them.
type ProcessedEventTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProcessedEventTracker(client *redis.Client, ttl time.Duration) *ProcessedEventTracker {
	return &ProcessedEventTracker{
		client: client,
		ttl:    ttl,
	}
}

func processedKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:processed:%s:%s", provider, eventID)
}

func (t *ProcessedEventTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := t.client.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("processed lookup: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the event id; returns false when another handler got
// there first.
func (t *ProcessedEventTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := t.client.SetNX(ctx, processedKey(provider, eventID), "1", t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ok, nil
}
