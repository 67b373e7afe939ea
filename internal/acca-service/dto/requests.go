package dto

// A autenticação fica na camada fina na frente; aqui o chamador chega
// identificado por memberId, como nos demais serviços.

type CreateRoundRequest struct {
	GroupID         string `json:"groupId"`
	MemberID        string `json:"memberId"`
	Title           string `json:"title"`
	BuyinCents      int64  `json:"buyin_per_member_cents"`
	LegsPerMember   int    `json:"legs_per_member"`
	WinningLegCount int    `json:"winning_leg_count"`
}

type SubmitLegRequest struct {
	MemberID  string `json:"memberId"`
	Selection string `json:"selection"`
	Odds      string `json:"odds"` // "2/1" fracional ou "3.0" decimal
}

type ToggleVoteRequest struct {
	MemberID string `json:"memberId"`
}

// TransitionRequest cobre open-voting, finalize e discard
type TransitionRequest struct {
	MemberID string `json:"memberId"`
}

type SettleRequest struct {
	MemberID string `json:"memberId"`
	Outcome  string `json:"outcome"` // "won" | "lost"
}
