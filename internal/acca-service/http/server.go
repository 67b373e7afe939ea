package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/group-acca-poc/internal/acca-service/dto"
	"github.com/radieske/group-acca-poc/internal/acca-service/rankcache"
	"github.com/radieske/group-acca-poc/internal/acca-service/rounds"
	"github.com/radieske/group-acca-poc/pkg/contracts/events"
)

// Store define as operações de persistência usadas pelos handlers.
// Cada operação de escrita é uma unidade atômica (transação no Postgres,
// mutex na implementação em memória).
type Store interface {
	CreateRound(ctx context.Context, n rounds.NewRound) (rounds.Round, error)
	GetRound(ctx context.Context, roundID string) (rounds.Round, error)
	ListRounds(ctx context.Context, groupID string) ([]rounds.Round, error)
	CreateSubmission(ctx context.Context, roundID, authorID, selection, oddsFrac string, oddsDec float64) (rounds.Submission, error)
	ListSubmissions(ctx context.Context, roundID string) ([]rounds.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (rounds.Submission, error)
	ToggleVote(ctx context.Context, submissionID, memberID string) (cast bool, votes int, err error)
	OpenVoting(ctx context.Context, roundID string) (rounds.Round, error)
	Finalize(ctx context.Context, roundID string) (rounds.Round, []rounds.Submission, error)
	Settle(ctx context.Context, roundID string, outcome rounds.Outcome) (r rounds.Round, applied bool, err error)
	DiscardRound(ctx context.Context, roundID string) error
	MemberRole(ctx context.Context, groupID, memberID string) (string, error)
	GroupMemberCount(ctx context.Context, groupID string) (int, error)
}

type Publisher interface {
	PublishRoundEvent(ctx context.Context, e events.RoundEvent) error
}

// Server expõe a API do acca-service: rounds, submissions, votos,
// transições de fase e settlement.
type Server struct {
	log  *zap.Logger
	repo Store
	publ Publisher
	rank *rankcache.Cache // opcional; nil desliga o cache de ranking

	// callbacks de métricas, ligadas no main
	OnVoteToggled func()
	OnTransition  func(eventType string)
}

func NewServer(log *zap.Logger, repo Store, publ Publisher, rank *rankcache.Cache) *Server {
	return &Server{log: log, repo: repo, publ: publ, rank: rank}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rounds", s.roundsCollection)    // POST cria, GET ?groupId=
	mux.HandleFunc("/rounds/", s.roundsResource)     // GET/DELETE /rounds/{id}, POST /rounds/{id}/...
	mux.HandleFunc("/submissions/", s.submissionsResource) // POST /submissions/{id}/votes
	return mux
}

func (s *Server) roundsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createRound(w, r)
	case http.MethodGet:
		s.listRounds(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// roundsResource roteia /rounds/{id} e /rounds/{id}/{action}
func (s *Server) roundsResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rounds/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "roundId required", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getRound(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.discardRound(w, r, id)
	case action == "submissions" && r.Method == http.MethodPost:
		s.submitLeg(w, r, id)
	case action == "submissions" && r.Method == http.MethodGet:
		s.listSubmissions(w, r, id)
	case action == "open-voting" && r.Method == http.MethodPost:
		s.openVoting(w, r, id)
	case action == "finalize" && r.Method == http.MethodPost:
		s.finalize(w, r, id)
	case action == "settle" && r.Method == http.MethodPost:
		s.settle(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) submissionsResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/submissions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "votes" || r.Method != http.MethodPost {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.toggleVote(w, r, id)
}

func (s *Server) createRound(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	n := rounds.NewRound{
		GroupID:             req.GroupID,
		CreatorID:           req.MemberID,
		Title:               req.Title,
		BuyinPerMemberCents: req.BuyinCents,
		LegsPerMember:       req.LegsPerMember,
		WinningLegCount:     req.WinningLegCount,
	}
	if err := n.Validate(); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := s.requireAdmin(r.Context(), req.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return
	}

	round, err := s.repo.CreateRound(r.Context(), n)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.emit(r.Context(), events.RoundEvent{
		Type:    events.TypeRoundCreated,
		RoundID: round.ID,
		GroupID: round.GroupID,
		ActorID: req.MemberID,
		Title:   round.Title,
		Phase:   string(round.Phase),
	})

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toRoundResponse(round, 0, nil))
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, "groupId required", http.StatusBadRequest)
		return
	}
	list, err := s.repo.ListRounds(r.Context(), groupID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]dto.RoundResponse, 0, len(list))
	for _, round := range list {
		out = append(out, toRoundResponse(round, 0, nil))
	}
	writeJSON(w, out)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request, roundID string) {
	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	members, err := s.repo.GroupMemberCount(r.Context(), round.GroupID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	// preço do acca só existe depois do finalize
	var selected []rounds.Submission
	if round.Phase == rounds.PhaseFinalized || round.Phase == rounds.PhaseSettled {
		subs, err := s.repo.ListSubmissions(r.Context(), roundID)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		for _, sub := range subs {
			if sub.Selected {
				selected = append(selected, sub)
			}
		}
	}

	writeJSON(w, toRoundResponse(round, round.BuyinPerMemberCents*int64(members), selected))
}

func (s *Server) submitLeg(w http.ResponseWriter, r *http.Request, roundID string) {
	var req dto.SubmitLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.MemberID == "" || strings.TrimSpace(req.Selection) == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	frac, dec, err := rounds.ParseOdds(req.Odds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if _, err := s.repo.MemberRole(r.Context(), round.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return
	}

	sub, err := s.repo.CreateSubmission(r.Context(), roundID, req.MemberID, strings.TrimSpace(req.Selection), frac, dec)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, toSubmissionResponse(sub))
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request, roundID string) {
	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	// durante a votação o ranking muda a cada toggle; snapshot com TTL
	// curto no Redis segura a carga de re-fetch dos clientes
	if s.rank != nil && round.Phase == rounds.PhaseVoting {
		var cached dto.RankingResponse
		if ok, err := s.rank.GetRanking(r.Context(), roundID, &cached); err == nil && ok {
			writeJSON(w, cached)
			return
		}
	}

	subs, err := s.repo.ListSubmissions(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	resp := dto.RankingResponse{
		RoundID:     roundID,
		Phase:       string(round.Phase),
		Submissions: make([]dto.SubmissionResponse, 0, len(subs)),
	}
	for _, sub := range subs {
		resp.Submissions = append(resp.Submissions, toSubmissionResponse(sub))
	}

	if s.rank != nil && round.Phase == rounds.PhaseVoting {
		if err := s.rank.SetRanking(r.Context(), roundID, resp); err != nil {
			s.log.Warn("ranking cache set failed", zap.Error(err))
		}
	}
	writeJSON(w, resp)
}

func (s *Server) toggleVote(w http.ResponseWriter, r *http.Request, submissionID string) {
	var req dto.ToggleVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.MemberID == "" {
		http.Error(w, "memberId required", http.StatusBadRequest)
		return
	}

	sub, err := s.repo.GetSubmission(r.Context(), submissionID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	round, err := s.repo.GetRound(r.Context(), sub.RoundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if _, err := s.repo.MemberRole(r.Context(), round.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return
	}

	cast, votes, err := s.repo.ToggleVote(r.Context(), submissionID, req.MemberID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if s.OnVoteToggled != nil {
		s.OnVoteToggled()
	}
	if s.rank != nil {
		if err := s.rank.Invalidate(r.Context(), sub.RoundID); err != nil {
			s.log.Warn("ranking cache invalidate failed", zap.Error(err))
		}
	}

	status := "withdrawn"
	if cast {
		status = "cast"
	}
	writeJSON(w, dto.ToggleVoteResponse{SubmissionID: submissionID, Status: status, Votes: votes})
}

func (s *Server) openVoting(w http.ResponseWriter, r *http.Request, roundID string) {
	req, ok := s.adminTransition(w, r, roundID)
	if !ok {
		return
	}

	updated, err := s.repo.OpenVoting(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if s.OnTransition != nil {
		s.OnTransition(events.TypeVotingOpened)
	}

	s.emit(r.Context(), events.RoundEvent{
		Type:    events.TypeVotingOpened,
		RoundID: updated.ID,
		GroupID: updated.GroupID,
		ActorID: req.MemberID,
		Title:   updated.Title,
		Phase:   string(updated.Phase),
	})
	writeJSON(w, toRoundResponse(updated, 0, nil))
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request, roundID string) {
	req, ok := s.adminTransition(w, r, roundID)
	if !ok {
		return
	}

	updated, selected, err := s.repo.Finalize(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if s.OnTransition != nil {
		s.OnTransition(events.TypeRoundFinalized)
	}
	if s.rank != nil {
		if err := s.rank.Invalidate(r.Context(), roundID); err != nil {
			s.log.Warn("ranking cache invalidate failed", zap.Error(err))
		}
	}

	legs := make([]events.SelectedLeg, 0, len(selected))
	resp := dto.FinalizeResponse{
		Round:        toRoundResponse(updated, 0, selected),
		Selected:     make([]dto.SubmissionResponse, 0, len(selected)),
		CombinedOdds: rounds.CombinedOdds(selected),
	}
	for _, leg := range selected {
		legs = append(legs, events.SelectedLeg{
			SubmissionID: leg.ID,
			AuthorID:     leg.AuthorID,
			Selection:    leg.Selection,
			OddsFrac:     leg.OddsFractional,
			OddsDecimal:  leg.OddsDecimal,
			Votes:        leg.Votes,
		})
		resp.Selected = append(resp.Selected, toSubmissionResponse(leg))
	}

	s.emit(r.Context(), events.RoundEvent{
		Type:         events.TypeRoundFinalized,
		RoundID:      updated.ID,
		GroupID:      updated.GroupID,
		ActorID:      req.MemberID,
		Title:        updated.Title,
		Phase:        string(updated.Phase),
		SelectedLegs: legs,
		CombinedOdds: resp.CombinedOdds,
	})
	writeJSON(w, resp)
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request, roundID string) {
	var req dto.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	outcome, err := rounds.ParseOutcome(req.Outcome)
	if err != nil {
		http.Error(w, "outcome must be won or lost", http.StatusBadRequest)
		return
	}

	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if err := s.requireAdmin(r.Context(), round.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return
	}

	updated, applied, err := s.repo.Settle(r.Context(), roundID, outcome)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if applied {
		if s.OnTransition != nil {
			s.OnTransition(events.TypeRoundSettled)
		}
		s.emit(r.Context(), events.RoundEvent{
			Type:    events.TypeRoundSettled,
			RoundID: updated.ID,
			GroupID: updated.GroupID,
			ActorID: req.MemberID,
			Title:   updated.Title,
			Phase:   string(updated.Phase),
			Outcome: string(updated.Outcome),
		})
	}
	writeJSON(w, toRoundResponse(updated, 0, nil))
}

func (s *Server) discardRound(w http.ResponseWriter, r *http.Request, roundID string) {
	var req dto.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if err := s.requireAdmin(r.Context(), round.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return
	}

	if err := s.repo.DiscardRound(r.Context(), roundID); err != nil {
		s.writeErr(w, err)
		return
	}
	if s.OnTransition != nil {
		s.OnTransition(events.TypeRoundDiscarded)
	}
	if s.rank != nil {
		_ = s.rank.Invalidate(r.Context(), roundID)
	}

	s.emit(r.Context(), events.RoundEvent{
		Type:    events.TypeRoundDiscarded,
		RoundID: round.ID,
		GroupID: round.GroupID,
		ActorID: req.MemberID,
		Title:   round.Title,
		Phase:   string(round.Phase),
	})
	w.WriteHeader(http.StatusNoContent)
}

// adminTransition decodifica o body e confere o papel de admin no grupo
func (s *Server) adminTransition(w http.ResponseWriter, r *http.Request, roundID string) (dto.TransitionRequest, bool) {
	var req dto.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return req, false
	}

	round, err := s.repo.GetRound(r.Context(), roundID)
	if err != nil {
		s.writeErr(w, err)
		return req, false
	}
	if err := s.requireAdmin(r.Context(), round.GroupID, req.MemberID); err != nil {
		s.writeErr(w, err)
		return req, false
	}
	return req, true
}

func (s *Server) requireAdmin(ctx context.Context, groupID, memberID string) error {
	role, err := s.repo.MemberRole(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	if role != rounds.RoleAdmin {
		return rounds.ErrNotAdmin
	}
	return nil
}

func (s *Server) emit(ctx context.Context, e events.RoundEvent) {
	if s.publ == nil {
		return
	}
	if err := s.publ.PublishRoundEvent(ctx, e); err != nil {
		// feed de atividade é best-effort, a operação já foi aplicada
		s.log.Warn("round event publish failed",
			zap.String("type", e.Type), zap.String("roundId", e.RoundID), zap.Error(err))
	}
}

// writeErr mapeia os erros de domínio para status HTTP
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rounds.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, rounds.ErrNotAdmin), errors.Is(err, rounds.ErrNotMember):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, rounds.ErrWrongPhase), errors.Is(err, rounds.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, rounds.ErrPrecondition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, rounds.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toRoundResponse(r rounds.Round, potCents int64, selected []rounds.Submission) dto.RoundResponse {
	resp := dto.RoundResponse{
		ID:              r.ID,
		GroupID:         r.GroupID,
		CreatorID:       r.CreatorID,
		Title:           r.Title,
		BuyinCents:      r.BuyinPerMemberCents,
		LegsPerMember:   r.LegsPerMember,
		WinningLegCount: r.WinningLegCount,
		Phase:           string(r.Phase),
		Outcome:         string(r.Outcome),
		PotCents:        potCents,
		CreatedAt:       r.CreatedAt,
		SettledAt:       r.SettledAt,
	}
	if len(selected) > 0 {
		resp.CombinedOdds = rounds.CombinedOdds(selected)
	}
	return resp
}

func toSubmissionResponse(s rounds.Submission) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		ID:             s.ID,
		RoundID:        s.RoundID,
		AuthorID:       s.AuthorID,
		Selection:      s.Selection,
		OddsFractional: s.OddsFractional,
		OddsDecimal:    s.OddsDecimal,
		Votes:          s.Votes,
		Selected:       s.Selected,
		CreatedAt:      s.CreatedAt,
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
