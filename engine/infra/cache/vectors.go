package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"
)

const vectorNamespace = "vec"

// VectorCache stores embeddings in Redis as little-endian float32 arrays.
type VectorCache struct {
	redis *Redis
}

func NewVectorCache(r *Redis) *VectorCache {
	return &VectorCache{redis: r}
}

// GetVectors returns the cached vectors for keys. Missing or undecodable
// entries are left out of the result.
func (c *VectorCache) GetVectors(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.redis.key(vectorNamespace, k)
	}
	values, err := c.redis.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: mget vectors: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if vec, ok := decodeVector([]byte(raw)); ok {
			out[keys[i]] = vec
		}
	}
	return out, nil
}

// SetVectors writes vectors in a single pipeline using the configured TTL.
func (c *VectorCache) SetVectors(ctx context.Context, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	ttl := c.redis.config.TTL
	_, err := c.redis.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, vec := range vectors {
			pipe.Set(ctx, c.redis.key(vectorNamespace, k), encodeVector(vec), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: set vectors: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, true
}
