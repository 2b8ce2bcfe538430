package app

import (
	"context"
	"net/http"
	"testing"

	"codecollab/api/internal/hook"
	"codecollab/api/internal/store"
)

func TestUpsertVoteLastValueWins(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "needs a test")

	var tally Tally
	var err error
	for _, value := range []int{1, -1, 1} {
		tally, err = env.svc.UpsertVote(ctx, carol, comment.ID, value)
		if err != nil {
			t.Fatalf("vote %d: %v", value, err)
		}
	}
	if tally != (Tally{Upvotes: 1, Net: 1, CallerVote: 1}) {
		t.Fatalf("unexpected tally %+v", tally)
	}
	votes, _ := env.store.ListVotes(ctx, []string{comment.ID})
	if len(votes) != 1 {
		t.Fatalf("expected one vote row, got %d", len(votes))
	}
}

func TestUpsertVoteZeroClears(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "needs a test")

	tally, err := env.svc.UpsertVote(ctx, carol, comment.ID, 0)
	if err != nil {
		t.Fatalf("zero vote without prior vote: %v", err)
	}
	if tally != (Tally{}) {
		t.Fatalf("expected empty tally, got %+v", tally)
	}

	if _, err := env.svc.UpsertVote(ctx, carol, comment.ID, -1); err != nil {
		t.Fatalf("downvote: %v", err)
	}
	if _, err := env.svc.RemoveVote(ctx, carol, comment.ID); err != nil {
		t.Fatalf("remove vote: %v", err)
	}
	after, err := env.svc.Tally(ctx, carol, comment.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if after != (Tally{}) {
		t.Fatalf("expected cleared tally, got %+v", after)
	}
}

func TestUpsertVoteRejectsOutOfRange(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "x")

	for _, value := range []int{2, -2, 5} {
		_, err := env.svc.UpsertVote(ctx, carol, comment.ID, value)
		expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	}
	_, err := env.svc.UpsertVote(ctx, carol, "missing", 1)
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestTallyCountsEveryVoter(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "x")

	for _, vote := range []struct {
		caller Caller
		value  int
	}{{bob, 1}, {carol, 1}, {dave, -1}} {
		if _, err := env.svc.UpsertVote(ctx, vote.caller, comment.ID, vote.value); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}

	tally, err := env.svc.Tally(ctx, bob, comment.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally != (Tally{Upvotes: 2, Downvotes: 1, Net: 1, CallerVote: 1}) {
		t.Fatalf("unexpected tally for bob %+v", tally)
	}
	tally, _ = env.svc.Tally(ctx, dave, comment.ID)
	if tally.CallerVote != -1 {
		t.Fatalf("expected dave's vote -1, got %d", tally.CallerVote)
	}
	tally, _ = env.svc.Tally(ctx, alice, comment.ID)
	if tally.CallerVote != 0 {
		t.Fatalf("expected no vote for alice, got %d", tally.CallerVote)
	}
}

func TestTallyBatchCoversEveryComment(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	voted := mustComment(t, env.svc, bob, item.ID, "one")
	quiet := mustComment(t, env.svc, carol, item.ID, "two")
	other := mustCreate(t, env.svc, bob, "Other", "")
	elsewhere := mustComment(t, env.svc, bob, other.ID, "three")

	if _, err := env.svc.UpsertVote(ctx, alice, voted.ID, -1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := env.svc.UpsertVote(ctx, alice, elsewhere.ID, 1); err != nil {
		t.Fatalf("vote: %v", err)
	}

	tallies, err := env.svc.TallyBatch(ctx, alice, item.ID)
	if err != nil {
		t.Fatalf("tally batch: %v", err)
	}
	if len(tallies) != 2 {
		t.Fatalf("expected two tallies, got %+v", tallies)
	}
	if tallies[voted.ID] != (Tally{Downvotes: 1, Net: -1, CallerVote: -1}) {
		t.Fatalf("unexpected tally %+v", tallies[voted.ID])
	}
	if tallies[quiet.ID] != (Tally{}) {
		t.Fatalf("expected zero tally for quiet comment, got %+v", tallies[quiet.ID])
	}

	_, err = env.svc.TallyBatch(ctx, alice, "missing")
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestUpsertVoteRetriesOnceOnConflict(t *testing.T) {
	mem := store.NewMemoryStore()
	calls := 0
	flaky := &flakyStore{MemoryStore: mem}
	flaky.upsertVoteFn = func(ctx context.Context, commentID, voterID string, value int) error {
		calls++
		if calls == 1 {
			return store.ErrConflict
		}
		return mem.UpsertVote(ctx, commentID, voterID, value)
	}
	svc := New(flaky, Dependencies{Hooks: hook.NewSyncRunner(&hook.MemorySink{}), Policy: DefaultPolicy()})
	ctx := context.Background()
	item := mustCreate(t, svc, alice, "Fix bug", "")
	comment := mustComment(t, svc, bob, item.ID, "x")

	tally, err := svc.UpsertVote(ctx, carol, comment.ID, 1)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 || tally.Upvotes != 1 {
		t.Fatalf("expected 2 calls and one upvote, got calls=%d tally=%+v", calls, tally)
	}
}

func TestUpsertVoteReportsPersistentConflict(t *testing.T) {
	mem := store.NewMemoryStore()
	calls := 0
	flaky := &flakyStore{MemoryStore: mem}
	flaky.upsertVoteFn = func(context.Context, string, string, int) error {
		calls++
		return store.ErrConflict
	}
	svc := New(flaky, Dependencies{Hooks: hook.NewSyncRunner(&hook.MemorySink{}), Policy: DefaultPolicy()})
	ctx := context.Background()
	item := mustCreate(t, svc, alice, "Fix bug", "")
	comment := mustComment(t, svc, bob, item.ID, "x")

	_, err := svc.UpsertVote(ctx, carol, comment.ID, -1)
	expectDomainError(t, err, http.StatusConflict, "CONFLICT")
	if calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
}
