package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// DefaultTTL is how long a vessel record survives without updates
const DefaultTTL = time.Hour

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client keeps the latest merged record of each vessel in Redis
type Client struct {
	client RedisClientInterface
	ttl    time.Duration
}

// New creates a new Redis client
func New(addr string, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func vesselKey(mmsi int64) string {
	return fmt.Sprintf("vessel:%d", mmsi)
}

// StoreVessel stores a vessel record under its mmsi
func (c *Client) StoreVessel(ctx context.Context, msg types.Message) error {
	mmsi, ok := msg.MMSI()
	if !ok {
		return fmt.Errorf("vessel record has no mmsi")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal vessel %d: %w", mmsi, err)
	}

	return c.client.Set(ctx, vesselKey(mmsi), data, c.ttl).Err()
}

// GetVessel retrieves a vessel record. A missing vessel returns nil without error.
func (c *Client) GetVessel(ctx context.Context, mmsi int64) (types.Message, error) {
	data, err := c.client.Get(ctx, vesselKey(mmsi)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vessel %d: %w", mmsi, err)
	}

	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vessel %d: %w", mmsi, err)
	}
	return msg, nil
}

// DeleteVessel removes a vessel record
func (c *Client) DeleteVessel(ctx context.Context, mmsi int64) error {
	return c.client.Del(ctx, vesselKey(mmsi)).Err()
}
