package feed

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

// Postgres persiste as entradas do feed de atividades dos grupos.
// Uma linha por evento de ciclo de vida consumido do Kafka.
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

// Insert grava uma entrada de feed. ON CONFLICT pela chave natural
// (round_id, event_type, ts) torna o consumo reprocessável sem duplicar.
func (p *Postgres) Insert(ctx context.Context, e events.RoundEvent, message string) error {
	const q = `
		INSERT INTO activity_events
		  (id, group_id, round_id, actor_id, event_type, outcome, message, ts_unix_ms)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (round_id, event_type, ts_unix_ms) DO NOTHING
	`
	_, err := p.DB.ExecContext(ctx, q,
		uuid.NewString(), e.GroupID, e.RoundID, e.ActorID, e.Type,
		nullIfEmpty(e.Outcome), message, e.TsUnixMs,
	)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
