package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

const ChannelRoundActivity = "round_activity_broadcast"

// RedisBroadcaster repassa as entradas de feed para quem estiver escutando
// (a camada de tempo real do app assina este canal).
type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}

// FeedUpdate é o payload enviado no canal de broadcast
type FeedUpdate struct {
	GroupID string            `json:"groupId"`
	Message string            `json:"message"`
	Payload events.RoundEvent `json:"payload"`
}
