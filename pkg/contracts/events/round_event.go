package events

// Tipos de evento publicados no tópico "round_events".
const (
	TypeRoundCreated   = "round_created"
	TypeVotingOpened   = "voting_opened"
	TypeRoundFinalized = "round_finalized"
	TypeRoundSettled   = "round_settled"
	TypeRoundDiscarded = "round_discarded"
)

// SelectedLeg resume uma perna promovida no finalize (vai junto no evento
// para o feed de atividades não precisar consultar o serviço).
type SelectedLeg struct {
	SubmissionID string  `json:"submission_id"`
	AuthorID     string  `json:"author_id"`
	Selection    string  `json:"selection"`
	OddsFrac     string  `json:"odds_fractional"`
	OddsDecimal  float64 `json:"odds_decimal"`
	Votes        int     `json:"votes"`
}

type RoundEvent struct {
	Type         string        `json:"type"`
	RoundID      string        `json:"round_id"`
	GroupID      string        `json:"group_id"`
	ActorID      string        `json:"actor_id"` // membro que disparou a transição
	Title        string        `json:"title"`
	Phase        string        `json:"phase"`
	Outcome      string        `json:"outcome,omitempty"` // "won" | "lost", só em round_settled
	SelectedLegs []SelectedLeg `json:"selected_legs,omitempty"`
	CombinedOdds float64       `json:"combined_odds,omitempty"`
	TsUnixMs     int64         `json:"ts_unix_ms"`
}
