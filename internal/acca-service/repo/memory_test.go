package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/radieske/group-acca-poc/internal/acca-service/rounds"
)

func newTestRound(t *testing.T, m *Memory, legsPerMember, winning int) rounds.Round {
	t.Helper()
	r, err := m.CreateRound(context.Background(), rounds.NewRound{
		GroupID:             "group-1",
		CreatorID:           "admin-1",
		Title:               "Weekend Acca",
		BuyinPerMemberCents: 500,
		LegsPerMember:       legsPerMember,
		WinningLegCount:     winning,
	})
	if err != nil {
		t.Fatalf("create round: %v", err)
	}
	return r
}

func mustSubmit(t *testing.T, m *Memory, roundID, author, selection string) rounds.Submission {
	t.Helper()
	s, err := m.CreateSubmission(context.Background(), roundID, author, selection, "2/1", 3)
	if err != nil {
		t.Fatalf("submit %s: %v", selection, err)
	}
	return s
}

func TestSubmissionQuota(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 2)

	for i := 0; i < 3; i++ {
		mustSubmit(t, m, r.ID, "member-a", fmt.Sprintf("pick %d", i))
	}

	_, err := m.CreateSubmission(context.Background(), r.ID, "member-a", "a fourth leg", "2/1", 3)
	if !errors.Is(err, rounds.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}

	subs, _ := m.ListSubmissions(context.Background(), r.ID)
	if len(subs) != 3 {
		t.Fatalf("failed submit must not write: want 3 submissions, got %d", len(subs))
	}

	// outro membro ainda tem cota própria
	mustSubmit(t, m, r.ID, "member-b", "other pick")
}

func TestSubmitOutsideCollectingPhase(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	mustSubmit(t, m, r.ID, "member-a", "pick")

	if _, err := m.OpenVoting(context.Background(), r.ID); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	_, err := m.CreateSubmission(context.Background(), r.ID, "member-a", "late pick", "2/1", 3)
	if !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("want ErrWrongPhase, got %v", err)
	}
}

func TestOpenVotingPreconditionThreshold(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 5, 3)

	mustSubmit(t, m, r.ID, "member-a", "one")
	mustSubmit(t, m, r.ID, "member-a", "two")

	// 2 < 3: precondição falha e a fase não muda
	_, err := m.OpenVoting(context.Background(), r.ID)
	if !errors.Is(err, rounds.ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
	got, _ := m.GetRound(context.Background(), r.ID)
	if got.Phase != rounds.PhaseCollecting {
		t.Fatalf("failed transition must not mutate: phase %s", got.Phase)
	}

	// exatamente no limiar passa
	mustSubmit(t, m, r.ID, "member-b", "three")
	updated, err := m.OpenVoting(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("open voting at threshold: %v", err)
	}
	if updated.Phase != rounds.PhaseVoting {
		t.Fatalf("want voting, got %s", updated.Phase)
	}
}

func TestToggleVoteKeepsProjectionInSync(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	s := mustSubmit(t, m, r.ID, "member-a", "pick")
	if _, err := m.OpenVoting(context.Background(), r.ID); err != nil {
		t.Fatalf("open voting: %v", err)
	}

	cast, votes, err := m.ToggleVote(context.Background(), s.ID, "member-b")
	if err != nil || !cast || votes != 1 {
		t.Fatalf("first toggle: cast=%v votes=%d err=%v", cast, votes, err)
	}
	if m.VoteCount(s.ID) != 1 {
		t.Fatalf("ledger has %d votes, projection said 1", m.VoteCount(s.ID))
	}

	cast, votes, err = m.ToggleVote(context.Background(), s.ID, "member-b")
	if err != nil || cast || votes != 0 {
		t.Fatalf("second toggle: cast=%v votes=%d err=%v", cast, votes, err)
	}
	if m.VoteCount(s.ID) != 0 {
		t.Fatalf("ledger has %d votes after withdraw", m.VoteCount(s.ID))
	}
}

func TestToggleVoteConcurrent(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	s := mustSubmit(t, m, r.ID, "member-a", "pick")
	if _, err := m.OpenVoting(context.Background(), r.ID); err != nil {
		t.Fatalf("open voting: %v", err)
	}

	// cada membro alterna 3 vezes (ímpar): todos terminam com voto
	const members = 16
	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			member := fmt.Sprintf("member-%d", id)
			for j := 0; j < 3; j++ {
				if _, _, err := m.ToggleVote(context.Background(), s.ID, member); err != nil {
					t.Errorf("toggle %s: %v", member, err)
				}
			}
		}(i)
	}
	wg.Wait()

	got, _ := m.GetSubmission(context.Background(), s.ID)
	if got.Votes != members {
		t.Fatalf("projection: want %d votes, got %d", members, got.Votes)
	}
	if m.VoteCount(s.ID) != members {
		t.Fatalf("ledger: want %d votes, got %d", members, m.VoteCount(s.ID))
	}
}

func TestToggleVoteRequiresVotingPhase(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	s := mustSubmit(t, m, r.ID, "member-a", "pick")

	// collecting
	if _, _, err := m.ToggleVote(context.Background(), s.ID, "member-b"); !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("collecting: want ErrWrongPhase, got %v", err)
	}

	m.OpenVoting(context.Background(), r.ID)
	m.ToggleVote(context.Background(), s.ID, "member-b")
	if _, _, err := m.Finalize(context.Background(), r.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// voto atrasado depois do finalize é rejeitado, nunca re-pontua
	if _, _, err := m.ToggleVote(context.Background(), s.ID, "member-c"); !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("finalized: want ErrWrongPhase, got %v", err)
	}
	got, _ := m.GetSubmission(context.Background(), s.ID)
	if got.Votes != 1 {
		t.Fatalf("late vote must not count: got %d", got.Votes)
	}
}

// Um toggle que corre contra o Finalize ou termina antes do snapshot do
// ranking ou falha com ErrWrongPhase: depois da promoção nenhum voto entra,
// então a contagem promovida é exatamente a contagem final.
func TestToggleVoteRacingFinalize(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	s := mustSubmit(t, m, r.ID, "member-a", "pick")
	if _, err := m.OpenVoting(context.Background(), r.ID); err != nil {
		t.Fatalf("open voting: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			member := fmt.Sprintf("member-%d", id)
			for j := 0; j < 100; j++ {
				_, _, err := m.ToggleVote(context.Background(), s.ID, member)
				if errors.Is(err, rounds.ErrWrongPhase) {
					return // fase avançou, toggle rejeitado inteiro
				}
				if err != nil {
					t.Errorf("toggle %s: %v", member, err)
					return
				}
			}
		}(i)
	}

	_, promoted, err := m.Finalize(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	wg.Wait()

	got, _ := m.GetSubmission(context.Background(), s.ID)
	if got.Votes != promoted[0].Votes {
		t.Fatalf("vote landed after the snapshot: snapshot=%d final=%d", promoted[0].Votes, got.Votes)
	}
	if got.Votes != m.VoteCount(s.ID) {
		t.Fatalf("projection %d out of sync with ledger %d", got.Votes, m.VoteCount(s.ID))
	}
	if _, _, err := m.ToggleVote(context.Background(), s.ID, "member-late"); !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("post-finalize toggle: want ErrWrongPhase, got %v", err)
	}
}

func TestFinalizePromotesRankingPrefix(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 2)

	s1 := mustSubmit(t, m, r.ID, "member-a", "s1")
	s2 := mustSubmit(t, m, r.ID, "member-b", "s2")
	s3 := mustSubmit(t, m, r.ID, "member-c", "s3")
	m.OpenVoting(context.Background(), r.ID)

	// s1: 2 votos, s2: 2 votos, s3: 1 voto; s1 submetida antes de s2
	m.ToggleVote(context.Background(), s1.ID, "member-a")
	m.ToggleVote(context.Background(), s1.ID, "member-b")
	m.ToggleVote(context.Background(), s2.ID, "member-b")
	m.ToggleVote(context.Background(), s2.ID, "member-c")
	m.ToggleVote(context.Background(), s3.ID, "member-a")

	updated, promoted, err := m.Finalize(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if updated.Phase != rounds.PhaseFinalized {
		t.Fatalf("want finalized, got %s", updated.Phase)
	}
	if len(promoted) != 2 {
		t.Fatalf("want exactly 2 promoted, got %d", len(promoted))
	}
	ids := map[string]bool{promoted[0].ID: true, promoted[1].ID: true}
	if !ids[s1.ID] || !ids[s2.ID] {
		t.Fatalf("tie at the boundary must pick earliest submission: got %v", ids)
	}

	subs, _ := m.ListSubmissions(context.Background(), r.ID)
	for _, sub := range subs {
		wantSelected := sub.ID == s1.ID || sub.ID == s2.ID
		if sub.Selected != wantSelected {
			t.Fatalf("submission %s: selected=%v, want %v", sub.Selection, sub.Selected, wantSelected)
		}
	}

	// segundo finalize não recomputa
	if _, _, err := m.Finalize(context.Background(), r.ID); !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("second finalize: want ErrWrongPhase, got %v", err)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	mustSubmit(t, m, r.ID, "member-a", "pick")
	m.OpenVoting(context.Background(), r.ID)
	m.Finalize(context.Background(), r.ID)

	first, applied, err := m.Settle(context.Background(), r.ID, rounds.OutcomeWon)
	if err != nil || !applied {
		t.Fatalf("first settle: applied=%v err=%v", applied, err)
	}
	if first.Outcome != rounds.OutcomeWon || first.SettledAt == nil {
		t.Fatalf("first settle not recorded: %+v", first)
	}

	// repetição com outcome diferente não muda o registro
	second, applied, err := m.Settle(context.Background(), r.ID, rounds.OutcomeLost)
	if err != nil || applied {
		t.Fatalf("repeat settle: applied=%v err=%v", applied, err)
	}
	if second.Outcome != rounds.OutcomeWon {
		t.Fatalf("repeat settle changed outcome to %s", second.Outcome)
	}
}

func TestSettleRequiresFinalizedPhase(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	if _, _, err := m.Settle(context.Background(), r.ID, rounds.OutcomeWon); !errors.Is(err, rounds.ErrWrongPhase) {
		t.Fatalf("want ErrWrongPhase, got %v", err)
	}
}

func TestDiscardRoundRemovesEverything(t *testing.T) {
	m := NewMemory()
	r := newTestRound(t, m, 3, 1)
	s := mustSubmit(t, m, r.ID, "member-a", "pick")
	m.OpenVoting(context.Background(), r.ID)
	m.ToggleVote(context.Background(), s.ID, "member-b")

	if err := m.DiscardRound(context.Background(), r.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := m.GetRound(context.Background(), r.ID); !errors.Is(err, rounds.ErrNotFound) {
		t.Fatalf("round should be gone, got %v", err)
	}
	if _, err := m.GetSubmission(context.Background(), s.ID); !errors.Is(err, rounds.ErrNotFound) {
		t.Fatalf("submission should be gone, got %v", err)
	}
	if m.VoteCount(s.ID) != 0 {
		t.Fatalf("votes should be gone")
	}
}

func TestMemberRole(t *testing.T) {
	m := NewMemory()
	m.AddMember("group-1", "admin-1", rounds.RoleAdmin)
	m.AddMember("group-1", "member-a", rounds.RoleMember)

	role, err := m.MemberRole(context.Background(), "group-1", "admin-1")
	if err != nil || role != rounds.RoleAdmin {
		t.Fatalf("admin lookup: %s %v", role, err)
	}
	if _, err := m.MemberRole(context.Background(), "group-1", "stranger"); !errors.Is(err, rounds.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
	if n, _ := m.GroupMemberCount(context.Background(), "group-1"); n != 2 {
		t.Fatalf("want 2 members, got %d", n)
	}
}
