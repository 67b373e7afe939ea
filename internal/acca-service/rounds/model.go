package rounds

import "time"

// Papéis dentro do grupo (vêm do sistema de ligas, só lemos)
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// Round é a aposta de grupo em construção: membros mandam pernas,
// o grupo vota e as top N viram o acca final.
type Round struct {
	ID                  string
	GroupID             string
	CreatorID           string
	Title               string
	BuyinPerMemberCents int64
	LegsPerMember       int // quantas pernas cada membro manda na coleta
	WinningLegCount     int // quantas viram o acca final; fixo pela vida do round
	Phase               Phase
	Outcome             Outcome // vazio até o settle
	CreatedAt           time.Time
	SettledAt           *time.Time
}

// Submission é uma perna candidata. Votes é projeção do ledger de votos,
// mantida na mesma transação que cria/apaga o voto.
type Submission struct {
	ID             string
	RoundID        string
	AuthorID       string
	Selection      string
	OddsFractional string
	OddsDecimal    float64
	Votes          int
	Selected       bool
	CreatedAt      time.Time
}

// Vote: no máximo um por (submission, member).
type Vote struct {
	SubmissionID string
	MemberID     string
	CreatedAt    time.Time
}

// NewRound carrega os parâmetros de criação de um round.
type NewRound struct {
	GroupID             string
	CreatorID           string
	Title               string
	BuyinPerMemberCents int64
	LegsPerMember       int
	WinningLegCount     int
}

func (n NewRound) Validate() error {
	switch {
	case n.GroupID == "" || n.CreatorID == "" || n.Title == "":
		return ErrInvalidInput
	case n.BuyinPerMemberCents <= 0:
		return ErrInvalidInput
	case n.LegsPerMember < 1 || n.WinningLegCount < 1:
		return ErrInvalidInput
	}
	return nil
}

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeWon, OutcomeLost:
		return Outcome(s), nil
	}
	return "", ErrInvalidInput
}
