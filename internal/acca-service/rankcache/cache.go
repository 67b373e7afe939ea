package rankcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache guarda o ranking corrente de um round no Redis durante a fase de
// votação. Projeção derivada, nunca autoritativa: o Postgres é a fonte da
// verdade e o TTL curto limita a janela de staleness.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(c *redis.Client, ttl time.Duration) *Cache {
	return &Cache{Client: c, TTL: ttl}
}

func key(roundID string) string { return "acca:ranking:" + roundID }

func (c *Cache) GetRanking(ctx context.Context, roundID string, dst any) (bool, error) {
	b, err := c.Client.Get(ctx, key(roundID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) SetRanking(ctx context.Context, roundID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key(roundID), b, c.TTL).Err()
}

// Invalidate derruba o snapshot após um toggle ou transição
func (c *Cache) Invalidate(ctx context.Context, roundID string) error {
	return c.Client.Del(ctx, key(roundID)).Err()
}
