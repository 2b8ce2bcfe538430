package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"codecollab/api/internal/hook"
	"codecollab/api/internal/rbac"
	"codecollab/api/internal/store"
)

var (
	alice = Caller{UserID: "u-alice", Email: "alice@example.com", Role: rbac.RoleMember}
	bob   = Caller{UserID: "u-bob", Email: "bob@example.com", Role: rbac.RoleMember}
	carol = Caller{UserID: "u-carol", Email: "carol@example.com", Role: rbac.RoleMember}
	dave  = Caller{UserID: "u-dave", Email: "dave@example.com", Role: rbac.RoleMember}
	rita  = Caller{UserID: "u-rita", Email: "rita@example.com", Role: rbac.RoleReviewer}
)

// flakyStore overrides single store methods on top of a MemoryStore.
type flakyStore struct {
	*store.MemoryStore
	upsertVoteFn func(ctx context.Context, commentID, voterID string, value int) error
}

func (f *flakyStore) UpsertVote(ctx context.Context, commentID, voterID string, value int) error {
	if f.upsertVoteFn != nil {
		return f.upsertVoteFn(ctx, commentID, voterID, value)
	}
	return f.MemoryStore.UpsertVote(ctx, commentID, voterID, value)
}

type testEnv struct {
	svc   *Service
	store *store.MemoryStore
	sink  *hook.MemorySink
}

func newTestEnv(t *testing.T, deps Dependencies) testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	sink := &hook.MemorySink{}
	if deps.Hooks == nil {
		deps.Hooks = hook.NewSyncRunner(sink)
	}
	// A zero policy means "not set" here; tests wanting the strict
	// policy build their Service directly.
	if deps.Policy == (Policy{}) {
		deps.Policy = DefaultPolicy()
	}
	return testEnv{svc: New(mem, deps), store: mem, sink: sink}
}

func mustCreate(t *testing.T, svc *Service, caller Caller, title, description string) store.Submission {
	t.Helper()
	item, err := svc.CreateSubmission(context.Background(), caller, SubmissionInput{
		Title:       title,
		Code:        "print('hi')",
		Description: description,
	})
	if err != nil {
		t.Fatalf("create submission %q: %v", title, err)
	}
	return item
}

func mustComment(t *testing.T, svc *Service, caller Caller, submissionID, body string) store.Comment {
	t.Helper()
	item, err := svc.AddComment(context.Background(), caller, submissionID, body, nil)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	return item
}

func expectDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s (%s)", status, code, domainErr.Status, domainErr.Code, domainErr.Message)
	}
	return domainErr
}

func TestCreateSubmissionDefaults(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	item := mustCreate(t, env.svc, Caller{UserID: "u-alice", Email: "Alice@Example.com"}, "  Fix bug  ", "")
	if item.Title != "Fix bug" {
		t.Fatalf("expected trimmed title, got %q", item.Title)
	}
	if item.Language != "python" {
		t.Fatalf("expected default language python, got %q", item.Language)
	}
	if item.Status != store.StatusOpen {
		t.Fatalf("expected open status, got %q", item.Status)
	}
	if item.OwnerEmail != "alice@example.com" {
		t.Fatalf("expected lowercased owner email, got %q", item.OwnerEmail)
	}
	if !strings.HasPrefix(item.ID, "sub") {
		t.Fatalf("expected sub prefixed id, got %q", item.ID)
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	tests := []struct {
		name  string
		input SubmissionInput
		field string
	}{
		{name: "missing title", input: SubmissionInput{Title: "  ", Code: "x"}, field: "title"},
		{name: "long title", input: SubmissionInput{Title: strings.Repeat("é", 256), Code: "x"}, field: "title"},
		{name: "missing code", input: SubmissionInput{Title: "t", Code: "\n"}, field: "code"},
		{name: "long language", input: SubmissionInput{Title: "t", Code: "x", Language: strings.Repeat("g", 51)}, field: "language"},
		{name: "long description", input: SubmissionInput{Title: "t", Code: "x", Description: strings.Repeat("d", 2001)}, field: "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateSubmission(context.Background(), alice, tt.input)
			domainErr := expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
			details, _ := domainErr.Details.(map[string]any)
			if details["field"] != tt.field {
				t.Fatalf("expected field %s, got %v", tt.field, domainErr.Details)
			}
		})
	}
}

func TestCreateSubmissionAcceptsBoundaryTitle(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	if _, err := env.svc.CreateSubmission(context.Background(), alice, SubmissionInput{Title: strings.Repeat("é", 255), Code: "x"}); err != nil {
		t.Fatalf("expected 255 character title to pass, got %v", err)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	_, err := env.svc.GetSubmission(context.Background(), "missing")
	domainErr := expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
	if domainErr.Message != "submission not found" {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}
}

func TestUpdateSubmissionFieldRequiresOwner(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	_, err := env.svc.UpdateSubmissionField(ctx, bob, item.ID, "code", "print('mine')")
	expectDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	updated, err := env.svc.UpdateSubmissionField(ctx, alice, item.ID, "description", "now with tests")
	if err != nil {
		t.Fatalf("update description: %v", err)
	}
	if updated.Description != "now with tests" {
		t.Fatalf("expected new description, got %q", updated.Description)
	}

	_, err = env.svc.UpdateSubmissionField(ctx, alice, item.ID, "title", "nope")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	_, err = env.svc.UpdateSubmissionField(ctx, alice, item.ID, "code", "   ")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestTransitionStatusIsOwnerOnlyAndUnchecked(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	if _, err := env.svc.TransitionStatus(ctx, bob, item.ID, "in_review"); err == nil {
		t.Fatal("expected non-owner transition to fail")
	}
	updated, err := env.svc.TransitionStatus(ctx, alice, item.ID, "in_review")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != "in_review" {
		t.Fatalf("expected in_review, got %q", updated.Status)
	}
	_, err = env.svc.TransitionStatus(ctx, alice, item.ID, strings.Repeat("s", 51))
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestDecideLastWriteWins(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	feedback := "  ship it  "
	approved, err := env.svc.Decide(ctx, bob, item.ID, "approved", &feedback)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != store.StatusApproved || approved.Feedback == nil || *approved.Feedback != "ship it" {
		t.Fatalf("unexpected approval %+v", approved)
	}

	rejected, err := env.svc.Decide(ctx, carol, item.ID, "REJECTED", nil)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != store.StatusRejected {
		t.Fatalf("expected rejected, got %q", rejected.Status)
	}
	if rejected.Feedback != nil {
		t.Fatalf("expected feedback to be cleared, got %q", *rejected.Feedback)
	}

	_, err = env.svc.Decide(ctx, bob, item.ID, "maybe", nil)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestDecidePolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("reviewer required", func(t *testing.T) {
		env := newTestEnv(t, Dependencies{Policy: Policy{DecideRequiresReviewer: true, AllowRedecide: true}})
		item := mustCreate(t, env.svc, alice, "Fix bug", "")
		_, err := env.svc.Decide(ctx, bob, item.ID, "approved", nil)
		expectDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
		if _, err := env.svc.Decide(ctx, rita, item.ID, "approved", nil); err != nil {
			t.Fatalf("reviewer decide: %v", err)
		}
	})

	t.Run("no redecide", func(t *testing.T) {
		svc := New(store.NewMemoryStore(), Dependencies{
			Hooks:  hook.NewSyncRunner(&hook.MemorySink{}),
			Policy: Policy{AllowRedecide: false},
		})
		item := mustCreate(t, svc, alice, "Fix bug", "")
		if _, err := svc.Decide(ctx, bob, item.ID, "approved", nil); err != nil {
			t.Fatalf("first decide: %v", err)
		}
		_, err := svc.Decide(ctx, bob, item.ID, "rejected", nil)
		expectDomainError(t, err, http.StatusConflict, "CONFLICT")
	})
}

func TestDeleteSubmissionRemovesThread(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "looks fine")

	expectDomainError(t, env.svc.DeleteSubmission(ctx, bob, item.ID), http.StatusForbidden, "FORBIDDEN")
	if err := env.svc.DeleteSubmission(ctx, alice, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.Tally(ctx, bob, comment.ID); err == nil {
		t.Fatal("expected comment to be gone with its submission")
	}
	expectDomainError(t, env.svc.DeleteSubmission(ctx, alice, item.ID), http.StatusNotFound, "NOT_FOUND")
}

func TestCommentEditAndDeleteRequireAuthor(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "first draft")

	_, err := env.svc.EditComment(ctx, alice, comment.ID, "hijacked")
	expectDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	edited, err := env.svc.EditComment(ctx, bob, comment.ID, "  second draft ")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Body != "second draft" {
		t.Fatalf("expected trimmed body, got %q", edited.Body)
	}

	expectDomainError(t, env.svc.DeleteComment(ctx, alice, comment.ID), http.StatusForbidden, "FORBIDDEN")
	if err := env.svc.DeleteComment(ctx, bob, comment.ID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	items, err := env.svc.ListComments(ctx, item.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty thread, got %d", len(items))
	}
}

func TestAddCommentValidation(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	_, err := env.svc.AddComment(ctx, bob, item.ID, "   ", nil)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = env.svc.AddComment(ctx, bob, item.ID, strings.Repeat("x", 2001), nil)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	zero := 0
	_, err = env.svc.AddComment(ctx, bob, item.ID, "line zero", &zero)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = env.svc.AddComment(ctx, bob, "missing", "hello", nil)
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	line := 12
	created, err := env.svc.AddComment(ctx, bob, item.ID, "off by one here", &line)
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if created.LineNumber == nil || *created.LineNumber != 12 {
		t.Fatalf("expected line 12, got %v", created.LineNumber)
	}
}

func TestSearchSubmissionsMatchesTitleThenDescription(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	mustCreate(t, env.svc, alice, "Tokenizer cleanup", "fixes a Bug in the lexer")
	mustCreate(t, env.svc, bob, "Fix bug", "")
	mustCreate(t, env.svc, carol, "Unrelated", "nothing to see")

	resp, err := env.svc.SearchSubmissions(ctx, "bug", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp.Results)
	}
	if resp.Results[0].Submission.Title != "Fix bug" || resp.Results[0].Field != "title" {
		t.Fatalf("expected title match first, got %+v", resp.Results[0])
	}
	if resp.Results[1].Field != "description" {
		t.Fatalf("expected description match second, got %+v", resp.Results[1])
	}
	if !strings.Contains(strings.ToLower(resp.Results[1].Snippet), "bug") {
		t.Fatalf("expected snippet to contain the match, got %q", resp.Results[1].Snippet)
	}

	_, err = env.svc.SearchSubmissions(ctx, "   ", 0)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestNotificationsMarkAllRead(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	mustComment(t, env.svc, bob, item.ID, "@alice@example.com please look")
	mustComment(t, env.svc, carol, item.ID, "@alice@example.com agreed")

	updated, err := env.svc.MarkAllNotificationsRead(ctx, alice)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated, got %d", updated)
	}
	items, err := env.svc.ListNotifications(ctx, alice)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	for _, item := range items {
		if !item.Read {
			t.Fatalf("expected every notification read, got %+v", item)
		}
	}
	updated, _ = env.svc.MarkAllNotificationsRead(ctx, alice)
	if updated != 0 {
		t.Fatalf("expected second call to update nothing, got %d", updated)
	}
}

func TestToggleReaction(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")
	comment := mustComment(t, env.svc, bob, item.ID, "nice")

	on, emoji, err := env.svc.ToggleReaction(ctx, carol, comment.ID, " 🎉 ")
	if err != nil || !on || emoji != "🎉" {
		t.Fatalf("expected reaction on, got on=%v emoji=%q err=%v", on, emoji, err)
	}
	counts, err := env.svc.ListReactions(ctx, comment.ID)
	if err != nil {
		t.Fatalf("list reactions: %v", err)
	}
	if len(counts) != 1 || counts[0].Count != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	on, _, err = env.svc.ToggleReaction(ctx, carol, comment.ID, "🎉")
	if err != nil || on {
		t.Fatalf("expected reaction off, got on=%v err=%v", on, err)
	}

	_, _, err = env.svc.ToggleReaction(ctx, carol, comment.ID, strings.Repeat("x", 11))
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	_, _, err = env.svc.ToggleReaction(ctx, carol, "missing", "👍")
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}
