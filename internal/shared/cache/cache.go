package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis abre o client compartilhado pelo cache de ranking e pelo
// pub/sub do feed de atividades.
func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}
