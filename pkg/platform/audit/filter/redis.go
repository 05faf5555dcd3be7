package filter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding filter decisions, one field per realm and topic.
const DefaultRedisKey = "audit:filters"

// RedisSource reads and writes filter decisions in a Redis hash. Fields are
// "<realm>|<topic>" and values are booleans as accepted by strconv.ParseBool.
type RedisSource struct {
	client *redis.Client
	key    string
}

// NewRedisSource creates a source over the given hash key, or DefaultRedisKey when empty.
func NewRedisSource(client *redis.Client, key string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, key: key}
}

// Load reads every decision from the hash. Malformed fields are an error so a
// bad write cannot silently disable auditing.
func (s *RedisSource) Load(ctx context.Context) (map[Key]bool, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read filter hash %s: %w", s.key, err)
	}

	decisions := make(map[Key]bool, len(raw))
	for field, value := range raw {
		key, err := ParseKey(field)
		if err != nil {
			return nil, err
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("filter %q has non-boolean value %q", field, value)
		}
		decisions[key] = enabled
	}
	return decisions, nil
}

// Set writes a single decision.
func (s *RedisSource) Set(ctx context.Context, key Key, enabled bool) error {
	if err := s.client.HSet(ctx, s.key, key.String(), strconv.FormatBool(enabled)).Err(); err != nil {
		return fmt.Errorf("write filter %s: %w", key, err)
	}
	return nil
}
