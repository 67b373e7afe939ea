package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de ciclo de vida dos rounds no tópico
// round_events. Entrega e persistência ficam com o consumidor (activity-worker).
type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) PublishRoundEvent(ctx context.Context, e events.RoundEvent) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RoundID), // mesma key = ordem preservada por round
		Value: b,
	})
}
