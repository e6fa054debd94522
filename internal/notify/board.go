// Package notify caches marketplace events in Redis for external
// pollers. Subscribed agents poll the board instead of the engine, which
// keeps discovery load off the store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EventKind classifies board events
type EventKind string

const (
	EventRFPCreated     EventKind = "rfp_created"
	EventBidSubmitted   EventKind = "bid_submitted"
	EventWinnerSelected EventKind = "winner_selected"
	EventRFPClosed      EventKind = "rfp_closed"
)

// Event is one entry on the board. Recipients carries the agent ids
// subscribed to the event's task category at publish time.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Kind       EventKind       `json:"kind"`
	RFPID      string          `json:"rfp_id"`
	Category   string          `json:"task_type,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BoardConfig configures the broadcast board
type BoardConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string        // key prefix, default "mesh:board:"
	TTL           time.Duration // event retention, default 24h
}

// DefaultBoardConfig returns default configuration
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		RedisAddr: "localhost:6379",
		Prefix:    "mesh:board:",
		TTL:       24 * time.Hour,
	}
}

// Board stores recent marketplace events in Redis
type Board struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewBoard connects to Redis and returns a board
func NewBoard(cfg BoardConfig) (*Board, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = "mesh:board:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}

	log.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("prefix", cfg.Prefix).
		Msg("Broadcast board initialized")

	return &Board{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

// NewBoardWithClient wraps an existing client; used by tests with miniredis
func NewBoardWithClient(client *redis.Client, prefix string, ttl time.Duration) *Board {
	if prefix == "" {
		prefix = "mesh:board:"
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Board{client: client, prefix: prefix, ttl: ttl}
}

// Post writes an event and indexes it by kind and by category.
// Keys: {prefix}event:{id}; indexes are sorted sets scored by timestamp.
func (b *Board) Post(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := fmt.Sprintf("%sevent:%s", b.prefix, ev.ID)
	score := float64(ev.CreatedAt.UnixNano())

	pipe := b.client.Pipeline()
	pipe.Set(ctx, key, data, b.ttl)
	pipe.ZAdd(ctx, b.kindIndex(ev.Kind), redis.Z{Score: score, Member: key})
	if ev.Category != "" {
		pipe.ZAdd(ctx, b.categoryIndex(ev.Category), redis.Z{Score: score, Member: key})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	return nil
}

// Recent returns the newest events of a kind, newest first
func (b *Board) Recent(ctx context.Context, kind EventKind, limit int64) ([]*Event, error) {
	return b.fetch(ctx, b.kindIndex(kind), limit)
}

// RecentForCategory returns the newest events for a task category,
// newest first
func (b *Board) RecentForCategory(ctx context.Context, category string, limit int64) ([]*Event, error) {
	return b.fetch(ctx, b.categoryIndex(category), limit)
}

func (b *Board) fetch(ctx context.Context, index string, limit int64) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	keys, err := b.client.ZRevRange(ctx, index, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(keys) == 0 {
		return []*Event{}, nil
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]*Event, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired event still referenced by the index; drop the entry.
			b.client.ZRem(ctx, index, keys[i])
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("Skipping undecodable board event")
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}

func (b *Board) kindIndex(kind EventKind) string {
	return fmt.Sprintf("%skind:%s", b.prefix, kind)
}

func (b *Board) categoryIndex(category string) string {
	return fmt.Sprintf("%scategory:%s", b.prefix, category)
}

// Close releases the Redis connection
func (b *Board) Close() error {
	return b.client.Close()
}
