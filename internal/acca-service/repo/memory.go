package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/group-acca-poc/internal/acca-service/rounds"
)

// Memory é uma implementação em memória do Store, com as mesmas garantias
// de atomicidade do Postgres (um mutex faz o papel das transações).
// Usada nos testes e em execução local sem banco.
type Memory struct {
	mu          sync.Mutex
	rounds      map[string]rounds.Round
	submissions map[string]rounds.Submission
	votes       map[string]map[string]time.Time // submissionID -> memberID -> created_at
	members     map[string]map[string]string    // groupID -> memberID -> role

	clock int64 // contador para created_at monotônico entre submissions
}

func NewMemory() *Memory {
	return &Memory{
		rounds:      make(map[string]rounds.Round),
		submissions: make(map[string]rounds.Submission),
		votes:       make(map[string]map[string]time.Time),
		members:     make(map[string]map[string]string),
	}
}

// AddMember registra um membro do grupo (seed de teste / dev local)
func (m *Memory) AddMember(groupID, memberID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[groupID] == nil {
		m.members[groupID] = make(map[string]string)
	}
	m.members[groupID][memberID] = role
}

func (m *Memory) CreateRound(_ context.Context, n rounds.NewRound) (rounds.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
	m.rounds[r.ID] = r
	return r, nil
}

func (m *Memory) GetRound(_ context.Context, roundID string) (rounds.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok {
		return rounds.Round{}, rounds.ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRounds(_ context.Context, groupID string) ([]rounds.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []rounds.Round
	for _, r := range m.rounds {
		if r.GroupID == groupID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateSubmission(_ context.Context, roundID, authorID, selection, oddsFrac string, oddsDec float64) (rounds.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return rounds.Submission{}, rounds.ErrNotFound
	}
	if r.Phase != rounds.PhaseCollecting {
		return rounds.Submission{}, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	count := 0
	for _, s := range m.submissions {
		if s.RoundID == roundID && s.AuthorID == authorID {
			count++
		}
	}
	if count >= r.LegsPerMember {
		return rounds.Submission{}, fmt.Errorf("%w: %d of %d legs already submitted", rounds.ErrQuotaExceeded, count, r.LegsPerMember)
	}

	m.clock++
	s := rounds.Submission{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		AuthorID:       authorID,
		Selection:      selection,
		OddsFractional: oddsFrac,
		OddsDecimal:    oddsDec,
		CreatedAt:      time.Now().UTC().Add(time.Duration(m.clock) * time.Microsecond),
	}
	m.submissions[s.ID] = s
	return s, nil
}

func (m *Memory) ListSubmissions(_ context.Context, roundID string) ([]rounds.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rounds.Rank(m.submissionsOf(roundID)), nil
}

func (m *Memory) GetSubmission(_ context.Context, submissionID string) (rounds.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok {
		return rounds.Submission{}, rounds.ErrNotFound
	}
	return s, nil
}

func (m *Memory) ToggleVote(_ context.Context, submissionID, memberID string) (cast bool, votes int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[submissionID]
	if !ok {
		return false, 0, rounds.ErrNotFound
	}
	r := m.rounds[s.RoundID]
	if r.Phase != rounds.PhaseVoting {
		return false, 0, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	byMember := m.votes[submissionID]
	if byMember == nil {
		byMember = make(map[string]time.Time)
		m.votes[submissionID] = byMember
	}

	if _, voted := byMember[memberID]; voted {
		delete(byMember, memberID)
		s.Votes--
		cast = false
	} else {
		byMember[memberID] = time.Now().UTC()
		s.Votes++
		cast = true
	}
	m.submissions[submissionID] = s
	return cast, s.Votes, nil
}

func (m *Memory) OpenVoting(_ context.Context, roundID string) (rounds.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return rounds.Round{}, rounds.ErrNotFound
	}
	if r.Phase != rounds.PhaseCollecting {
		return rounds.Round{}, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	count := len(m.submissionsOf(roundID))
	if count < r.WinningLegCount {
		return rounds.Round{}, fmt.Errorf("%w: need at least %d submissions, have %d", rounds.ErrPrecondition, r.WinningLegCount, count)
	}

	r.Phase = rounds.PhaseVoting
	m.rounds[roundID] = r
	return r, nil
}

func (m *Memory) Finalize(_ context.Context, roundID string) (rounds.Round, []rounds.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return rounds.Round{}, nil, rounds.ErrNotFound
	}
	if r.Phase != rounds.PhaseVoting {
		return rounds.Round{}, nil, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	promoted := rounds.Promote(m.submissionsOf(roundID), r.WinningLegCount)
	for i := range promoted {
		promoted[i].Selected = true
		m.submissions[promoted[i].ID] = promoted[i]
	}

	r.Phase = rounds.PhaseFinalized
	m.rounds[roundID] = r
	return r, promoted, nil
}

func (m *Memory) Settle(_ context.Context, roundID string, outcome rounds.Outcome) (rounds.Round, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[roundID]
	if !ok {
		return rounds.Round{}, false, rounds.ErrNotFound
	}
	if r.Phase == rounds.PhaseSettled {
		return r, false, nil // idempotente, segundo outcome é ignorado
	}
	if r.Phase != rounds.PhaseFinalized {
		return rounds.Round{}, false, fmt.Errorf("%w: round is %s", rounds.ErrWrongPhase, r.Phase)
	}

	now := time.Now().UTC()
	r.Phase = rounds.PhaseSettled
	r.Outcome = outcome
	r.SettledAt = &now
	m.rounds[roundID] = r
	return r, true, nil
}

func (m *Memory) DiscardRound(_ context.Context, roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rounds[roundID]; !ok {
		return rounds.ErrNotFound
	}
	for id, s := range m.submissions {
		if s.RoundID == roundID {
			delete(m.submissions, id)
			delete(m.votes, id)
		}
	}
	delete(m.rounds, roundID)
	return nil
}

func (m *Memory) MemberRole(_ context.Context, groupID, memberID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.members[groupID][memberID]
	if !ok {
		return "", rounds.ErrNotMember
	}
	return role, nil
}

func (m *Memory) GroupMemberCount(_ context.Context, groupID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[groupID]), nil
}

// VoteCount conta as linhas de voto de uma submission (fonte da verdade,
// usada pelos testes para conferir a projeção Votes)
func (m *Memory) VoteCount(submissionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.votes[submissionID])
}

// submissionsOf assume m.mu já adquirido
func (m *Memory) submissionsOf(roundID string) []rounds.Submission {
	var out []rounds.Submission
	for _, s := range m.submissions {
		if s.RoundID == roundID {
			out = append(out, s)
		}
	}
	return out
}
