package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/radieske/group-acca-poc/internal/acca-service/rounds"
)

// Postgres implementa a persistência de rounds, submissions e votos.
// Todas as operações de escrita rodam em transação com lock pessimista
// na linha do round ou da submission.
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de rounds
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateRound insere um round novo na fase collecting
func (p *Postgres) CreateRound(ctx context.Context, n rounds.NewRound) (rounds.Round, error) {
	r := rounds.Round{
		ID:                  uuid.NewString(),
		GroupID:             n.GroupID,
		CreatorID:           n.CreatorID,
		Title:               n.Title,
		BuyinPerMemberCents: n.BuyinPerMemberCents,
		LegsPerMember:       n.LegsPerMember,
		WinningLegCount:     n.WinningLegCount,
		Phase:               rounds.PhaseCollecting,
		CreatedAt:           time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id,group_id,creator_id,title,buyin_per_member_cents,legs_per_member,winning_leg_count,phase,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.GroupID, r.CreatorID, r.Title, r.BuyinPerMemberCents, r.LegsPerMember, r.WinningLegCount, r.Phase, r.CreatedAt,
	)
	if err != nil {
		return rounds.Round{}, err
	}
	return r, nil
}

// GetRound retorna um round pelo id
func (p *Postgres) GetRound(ctx context.Context, roundID string) (rounds.Round, error) {
	return scanRound(p.db.QueryRowContext(ctx, selectRound+` WHERE id=$1`, roundID))
}

// ListRounds retorna os rounds de um grupo, mais recentes primeiro
func (p *Postgres) ListRounds(ctx context.Context, groupID string) ([]rounds.Round, error) {
	rows, err := p.db.QueryContext(ctx, selectRound+` WHERE group_id=$1 ORDER BY created_at DESC, id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rounds.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateSubmission insere uma perna candidata respeitando fase e cota.
// Lock na linha do round serializa contra transições e contra o próprio
// autor mandando pernas em paralelo.
func (p *Postgres) CreateSubmission(ctx context.Context, roundID, authorID, selection, oddsFrac string, oddsDec float64) (rounds.Submission, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return rounds.Submission{}, err
	}
	defer tx.Rollback()

	var phase string
	var legsPerMember int
	err = tx.QueryRowContext(ctx, `SELECT phase, legs_per_member FROM rounds WHERE id=$1 FOR UPDATE`, roundID).
		Scan(&phase, &legsPerMember)
	if err == sql.ErrNoRows {
		return rounds.Submission{}, rounds.ErrNotFound
	} else if err != nil {
		return rounds.Submission{}, err
	}

	if rounds.Phase(phase) != rounds.PhaseCollecting {
		return rounds.Submission{}, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, phase)
	}

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE round_id=$1 AND author_id=$2`, roundID, authorID).Scan(&count); err != nil {
		return rounds.Submission{}, err
	}
	if count >= legsPerMember {
		return rounds.Submission{}, fmt.Errorf("%w: %d of %d legs already submitted", rounds.ErrQuotaExceeded, count, legsPerMember)
	}

	s := rounds.Submission{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		AuthorID:       authorID,
		Selection:      selection,
		OddsFractional: oddsFrac,
		OddsDecimal:    oddsDec,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO submissions (id,round_id,author_id,selection,odds_fractional,odds_decimal,votes,selected,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,FALSE,$7)`,
		s.ID, s.RoundID, s.AuthorID, s.Selection, s.OddsFractional, s.OddsDecimal, s.CreatedAt,
	); err != nil {
		return rounds.Submission{}, err
	}

	if err = tx.Commit(); err != nil {
		return rounds.Submission{}, err
	}
	return s, nil
}

// ListSubmissions retorna as pernas de um round já na ordem do ranking
func (p *Postgres) ListSubmissions(ctx context.Context, roundID string) ([]rounds.Submission, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,round_id,author_id,selection,odds_fractional,odds_decimal,votes,selected,created_at
		FROM submissions WHERE round_id=$1
		ORDER BY votes DESC, created_at ASC, id ASC`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rounds.Submission
	for rows.Next() {
		var s rounds.Submission
		if err := rows.Scan(&s.ID, &s.RoundID, &s.AuthorID, &s.Selection, &s.OddsFractional, &s.OddsDecimal, &s.Votes, &s.Selected, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSubmission retorna uma submission pelo id
func (p *Postgres) GetSubmission(ctx context.Context, submissionID string) (rounds.Submission, error) {
	var s rounds.Submission
	err := p.db.QueryRowContext(ctx, `
		SELECT id,round_id,author_id,selection,odds_fractional,odds_decimal,votes,selected,created_at
		FROM submissions WHERE id=$1`, submissionID).
		Scan(&s.ID, &s.RoundID, &s.AuthorID, &s.Selection, &s.OddsFractional, &s.OddsDecimal, &s.Votes, &s.Selected, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return rounds.Submission{}, rounds.ErrNotFound
	}
	return s, err
}

// ToggleVote cria ou remove o voto de (submission, member) e ajusta o
// contador cacheado na mesma transação. Lock na linha da submission
// serializa toggles concorrentes no mesmo alvo; submissions diferentes
// seguem em paralelo.
//
// O lock e a checagem de fase são statements separados de propósito:
// em READ COMMITTED, um toggle que esperou o lock do Finalize retomaria
// com o snapshot antigo se a fase viesse no mesmo statement (join), e
// votaria num round já finalizado. O statement seguinte abre snapshot
// novo e enxerga a fase commitada.
func (p *Postgres) ToggleVote(ctx context.Context, submissionID, memberID string) (cast bool, votes int, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	var roundID string
	err = tx.QueryRowContext(ctx,
		`SELECT round_id FROM submissions WHERE id=$1 FOR UPDATE`, submissionID).Scan(&roundID)
	if err == sql.ErrNoRows {
		return false, 0, rounds.ErrNotFound
	} else if err != nil {
		return false, 0, err
	}

	var phase string
	if err = tx.QueryRowContext(ctx,
		`SELECT phase FROM rounds WHERE id=$1`, roundID).Scan(&phase); err != nil {
		return false, 0, err
	}

	if rounds.Phase(phase) != rounds.PhaseVoting {
		return false, 0, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, phase)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE submission_id=$1 AND member_id=$2`, submissionID, memberID)
	if err != nil {
		return false, 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}

	if deleted > 0 {
		// retirada: voto existia, decrementa a projeção
		if err = tx.QueryRowContext(ctx,
			`UPDATE submissions SET votes = votes - 1 WHERE id=$1 RETURNING votes`, submissionID).Scan(&votes); err != nil {
			return false, 0, err
		}
		cast = false
	} else {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO votes (submission_id, member_id, created_at) VALUES ($1,$2,$3)`,
			submissionID, memberID, time.Now().UTC()); err != nil {
			return false, 0, err
		}
		if err = tx.QueryRowContext(ctx,
			`UPDATE submissions SET votes = votes + 1 WHERE id=$1 RETURNING votes`, submissionID).Scan(&votes); err != nil {
			return false, 0, err
		}
		cast = true
	}

	if err = tx.Commit(); err != nil {
		return false, 0, err
	}
	return cast, votes, nil
}

// OpenVoting fecha a coleta: exige pelo menos winning_leg_count submissions
func (p *Postgres) OpenVoting(ctx context.Context, roundID string) (rounds.Round, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return rounds.Round{}, err
	}
	defer tx.Rollback()

	r, err := lockRound(ctx, tx, roundID)
	if err != nil {
		return rounds.Round{}, err
	}
	if r.Phase != rounds.PhaseCollecting {
		return rounds.Round{}, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE round_id=$1`, roundID).Scan(&count); err != nil {
		return rounds.Round{}, err
	}
	if count < r.WinningLegCount {
		return rounds.Round{}, fmt.Errorf("%w: need at least %d submissions, have %d", rounds.ErrPrecondition, r.WinningLegCount, count)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE rounds SET phase=$1 WHERE id=$2`, rounds.PhaseVoting, roundID); err != nil {
		return rounds.Round{}, err
	}
	if err = tx.Commit(); err != nil {
		return rounds.Round{}, err
	}
	r.Phase = rounds.PhaseVoting
	return r, nil
}

// Finalize computa o ranking num snapshot consistente e promove as top
// winning_leg_count pernas. Locka o round e todas as submissions do round,
// então um toggle concorrente ou termina antes do ranking ou já encontra
// a fase avançada e falha com ErrWrongPhase.
func (p *Postgres) Finalize(ctx context.Context, roundID string) (rounds.Round, []rounds.Submission, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return rounds.Round{}, nil, err
	}
	defer tx.Rollback()

	r, err := lockRound(ctx, tx, roundID)
	if err != nil {
		return rounds.Round{}, nil, err
	}
	if r.Phase != rounds.PhaseVoting {
		return rounds.Round{}, nil, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id,round_id,author_id,selection,odds_fractional,odds_decimal,votes,selected,created_at
		FROM submissions WHERE round_id=$1
		FOR UPDATE`, roundID)
	if err != nil {
		return rounds.Round{}, nil, err
	}
	var subs []rounds.Submission
	for rows.Next() {
		var s rounds.Submission
		if err := rows.Scan(&s.ID, &s.RoundID, &s.AuthorID, &s.Selection, &s.OddsFractional, &s.OddsDecimal, &s.Votes, &s.Selected, &s.CreatedAt); err != nil {
			rows.Close()
			return rounds.Round{}, nil, err
		}
		subs = append(subs, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rounds.Round{}, nil, err
	}

	promoted := rounds.Promote(subs, r.WinningLegCount)
	ids := make([]string, len(promoted))
	for i := range promoted {
		promoted[i].Selected = true
		ids[i] = promoted[i].ID
	}

	if _, err = tx.ExecContext(ctx, `UPDATE submissions SET selected=TRUE WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return rounds.Round{}, nil, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE rounds SET phase=$1 WHERE id=$2`, rounds.PhaseFinalized, roundID); err != nil {
		return rounds.Round{}, nil, err
	}
	if err = tx.Commit(); err != nil {
		return rounds.Round{}, nil, err
	}
	r.Phase = rounds.PhaseFinalized
	return r, promoted, nil
}

// Settle grava o desfecho e fecha o round. Chamado de novo depois do
// primeiro sucesso, devolve o que já foi gravado, não aplica nada e
// reporta applied=false.
func (p *Postgres) Settle(ctx context.Context, roundID string, outcome rounds.Outcome) (r rounds.Round, applied bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return rounds.Round{}, false, err
	}
	defer tx.Rollback()

	r, err = lockRound(ctx, tx, roundID)
	if err != nil {
		return rounds.Round{}, false, err
	}

	if r.Phase == rounds.PhaseSettled {
		return r, false, nil // idempotente, segundo outcome é ignorado
	}
	if r.Phase != rounds.PhaseFinalized {
		return rounds.Round{}, false, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`UPDATE rounds SET phase=$1, outcome=$2, settled_at=$3 WHERE id=$4`,
		rounds.PhaseSettled, string(outcome), now, roundID); err != nil {
		return rounds.Round{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return rounds.Round{}, false, err
	}
	r.Phase = rounds.PhaseSettled
	r.Outcome = outcome
	r.SettledAt = &now
	return r, true, nil
}

// DiscardRound apaga round, submissions e votos de uma vez. Qualquer fase.
func (p *Postgres) DiscardRound(ctx context.Context, roundID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = lockRound(ctx, tx, roundID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM votes WHERE submission_id IN (SELECT id FROM submissions WHERE round_id=$1)`, roundID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM submissions WHERE round_id=$1`, roundID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rounds WHERE id=$1`, roundID); err != nil {
		return err
	}
	return tx.Commit()
}

// MemberRole lê o papel do membro no grupo (admin | member)
func (p *Postgres) MemberRole(ctx context.Context, groupID, memberID string) (string, error) {
	var role string
	err := p.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id=$1 AND member_id=$2`, groupID, memberID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", rounds.ErrNotMember
	}
	return role, err
}

// GroupMemberCount conta os membros do grupo (pote = buyin x membros)
func (p *Postgres) GroupMemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id=$1`, groupID).Scan(&n)
	return n, err
}

const selectRound = `
	SELECT id,group_id,creator_id,title,buyin_per_member_cents,legs_per_member,winning_leg_count,phase,outcome,created_at,settled_at
	FROM rounds`

type rowScanner interface{ Scan(dest ...any) error }

func scanRound(row rowScanner) (rounds.Round, error) {
	var r rounds.Round
	var outcome sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(&r.ID, &r.GroupID, &r.CreatorID, &r.Title, &r.BuyinPerMemberCents,
		&r.LegsPerMember, &r.WinningLegCount, &r.Phase, &outcome, &r.CreatedAt, &settledAt)
	if err == sql.ErrNoRows {
		return rounds.Round{}, rounds.ErrNotFound
	} else if err != nil {
		return rounds.Round{}, err
	}
	if outcome.Valid {
		r.Outcome = rounds.Outcome(outcome.String)
	}
	if settledAt.Valid {
		t := settledAt.Time
		r.SettledAt = &t
	}
	return r, nil
}

func lockRound(ctx context.Context, tx *sql.Tx, roundID string) (rounds.Round, error) {
	return scanRound(tx.QueryRowContext(ctx, selectRound+` WHERE id=$1 FOR UPDATE`, roundID))
}
