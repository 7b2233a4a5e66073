package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

const embeddingPrefix = "bertopic:embedding:"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetEmbeddings looks up every key in one round trip. Missing keys yield nil entries.
func (c *Client) GetEmbeddings(ctx context.Context, keys []string) ([][]float64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = embeddingPrefix + k
	}

	values, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	out := make([][]float64, len(keys))
	hits := 0
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(s), &vec); err != nil {
			logger.Warn("Discarding corrupt cached embedding", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[i] = vec
		hits++
	}

	logger.Debug("Embedding cache lookup", zap.Int("keys", len(keys)), zap.Int("hits", hits))
	return out, nil
}

func (c *Client) SetEmbeddings(ctx context.Context, keys []string, vectors [][]float64, ttl time.Duration) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors differ in length: %d != %d", len(keys), len(vectors))
	}

	pipe := c.client.Pipeline()
	for i, k := range keys {
		data, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		pipe.Set(ctx, embeddingPrefix+k, data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embeddings cached", zap.Int("count", len(keys)), zap.Duration("ttl", ttl))
	return nil
}
