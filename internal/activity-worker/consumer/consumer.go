package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/group-acca-poc/internal/activity-worker/pubsub"
	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

// MessageReader é o que o Processor precisa de um kafka.Reader
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é o que o Processor precisa de um kafka.Writer (DLQ)
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// FeedStore persiste uma entrada de feed por evento
type FeedStore interface {
	Insert(ctx context.Context, e events.RoundEvent, message string) error
}

// Broadcaster repassa a entrada para o canal de tempo real
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Processor consome eventos de round do Kafka, grava o feed de atividades
// e faz broadcast via Redis Pub/Sub.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Store   FeedStore
	Bcast   Broadcaster
	Channel string
	DLQ     MessageWriter // opcional; recebe mensagens que não decodificam

	OnConsumed func()       // métricas (counter++)
	OnPersist  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.RoundEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			if p.DLQ != nil {
				if derr := p.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value}); derr != nil {
					p.Log.Error("dlq write failed", zap.Error(derr))
				}
			}
			continue
		}

		msg := RenderMessage(ev)
		if err := p.Store.Insert(ctx, ev, msg); err != nil {
			p.Log.Warn("feed insert failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("db_insert")
			}
			continue
		}
		if p.OnPersist != nil {
			p.OnPersist()
		}

		// broadcast é best-effort, o feed já foi persistido
		if p.Bcast != nil {
			if err := p.broadcast(ctx, ev, msg); err != nil {
				p.Log.Warn("feed broadcast failed", zap.Error(err))
				if p.OnError != nil {
					p.OnError("broadcast")
				}
			}
		}
	}
}

func (p *Processor) broadcast(ctx context.Context, ev events.RoundEvent, msg string) error {
	b, _ := json.Marshal(pubsub.FeedUpdate{GroupID: ev.GroupID, Message: msg, Payload: ev})
	bctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return p.Bcast.Publish(bctx, p.Channel, b)
}

// RenderMessage monta o texto exibido no feed para cada tipo de evento
func RenderMessage(e events.RoundEvent) string {
	switch e.Type {
	case events.TypeRoundCreated:
		return fmt.Sprintf("%s: round created, legs wanted", e.Title)
	case events.TypeVotingOpened:
		return fmt.Sprintf("%s: submissions closed, voting is open", e.Title)
	case events.TypeRoundFinalized:
		return fmt.Sprintf("%s: final acca locked in with %d legs at %.2f", e.Title, len(e.SelectedLegs), e.CombinedOdds)
	case events.TypeRoundSettled:
		return fmt.Sprintf("%s: settled as %s", e.Title, e.Outcome)
	case events.TypeRoundDiscarded:
		return fmt.Sprintf("%s: round was discarded", e.Title)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Type)
}
