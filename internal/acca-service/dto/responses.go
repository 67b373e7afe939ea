package dto

import "time"

type RoundResponse struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"groupId"`
	CreatorID       string     `json:"creatorId"`
	Title           string     `json:"title"`
	BuyinCents      int64      `json:"buyin_per_member_cents"`
	LegsPerMember   int        `json:"legs_per_member"`
	WinningLegCount int        `json:"winning_leg_count"`
	Phase           string     `json:"phase"`
	Outcome         string     `json:"outcome,omitempty"`
	PotCents        int64      `json:"pot_cents,omitempty"` // buyin x membros do grupo
	CombinedOdds    float64    `json:"combined_odds,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

type SubmissionResponse struct {
	ID             string    `json:"id"`
	RoundID        string    `json:"roundId"`
	AuthorID       string    `json:"authorId"`
	Selection      string    `json:"selection"`
	OddsFractional string    `json:"odds_fractional"`
	OddsDecimal    float64   `json:"odds_decimal"`
	Votes          int       `json:"votes"`
	Selected       bool      `json:"selected"`
	CreatedAt      time.Time `json:"created_at"`
}

type RankingResponse struct {
	RoundID     string               `json:"roundId"`
	Phase       string               `json:"phase"`
	Submissions []SubmissionResponse `json:"submissions"`
}

type ToggleVoteResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"` // "cast" | "withdrawn"
	Votes        int    `json:"votes"`
}

type FinalizeResponse struct {
	Round        RoundResponse        `json:"round"`
	Selected     []SubmissionResponse `json:"selected"`
	CombinedOdds float64              `json:"combined_odds"`
}
