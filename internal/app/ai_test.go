package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"codecollab/api/internal/llm"
)

type fakeGenerator struct {
	output  string
	err     error
	system  string
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.system = system
	f.prompts = append(f.prompts, prompt)
	return f.output, f.err
}

func TestReviewCodeSendsSubmissionCode(t *testing.T) {
	gen := &fakeGenerator{output: "- looks fine"}
	env := newTestEnv(t, Dependencies{LLM: gen})
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	review, err := env.svc.ReviewCode(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review != "- looks fine" {
		t.Fatalf("unexpected review %q", review)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "print('hi')") {
		t.Fatalf("expected code in prompt, got %v", gen.prompts)
	}

	_, err = env.svc.ReviewCode(context.Background(), "missing")
	expectDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestSummarizeThreadNeedsComments(t *testing.T) {
	gen := &fakeGenerator{output: "- agreed to add tests"}
	env := newTestEnv(t, Dependencies{LLM: gen})
	ctx := context.Background()
	item := mustCreate(t, env.svc, alice, "Fix bug", "")

	_, err := env.svc.SummarizeThread(ctx, item.ID)
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	line := 4
	if _, err := env.svc.AddComment(ctx, bob, item.ID, "add a test", &line); err != nil {
		t.Fatalf("comment: %v", err)
	}
	summary, err := env.svc.SummarizeThread(ctx, item.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "- agreed to add tests" {
		t.Fatalf("unexpected summary %q", summary)
	}
	if !strings.Contains(gen.prompts[0], "bob@example.com (line 4): add a test") {
		t.Fatalf("unexpected prompt %q", gen.prompts[0])
	}
}

func TestGenerateMetaParsesFencedJSON(t *testing.T) {
	gen := &fakeGenerator{output: "```json\n{\"title\": \" Add retry \", \"description\": \"Retries the upload once.\"}\n```"}
	env := newTestEnv(t, Dependencies{LLM: gen})

	meta, err := env.svc.GenerateMeta(context.Background(), "def retry(): pass", "")
	if err != nil {
		t.Fatalf("generate meta: %v", err)
	}
	if meta.Title != "Add retry" || meta.Description != "Retries the upload once." {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if !strings.HasPrefix(gen.prompts[0], "Language: python") {
		t.Fatalf("expected default language in prompt, got %q", gen.prompts[0])
	}

	_, err = env.svc.GenerateMeta(context.Background(), "  ", "go")
	expectDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestGenerateMetaMalformedOutput(t *testing.T) {
	env := newTestEnv(t, Dependencies{LLM: &fakeGenerator{output: "Sure! Here is a title: Add retry"}})
	_, err := env.svc.GenerateMeta(context.Background(), "x", "go")
	expectDomainError(t, err, http.StatusBadGateway, "DEPENDENCY_ERROR")
}

func TestTextGenerationErrors(t *testing.T) {
	tests := []struct {
		name   string
		deps   Dependencies
		status int
	}{
		{name: "not configured", deps: Dependencies{}, status: http.StatusServiceUnavailable},
		{name: "unavailable", deps: Dependencies{LLM: &fakeGenerator{err: fmt.Errorf("%w: dial", llm.ErrUnavailable)}}, status: http.StatusServiceUnavailable},
		{name: "timeout", deps: Dependencies{LLM: &fakeGenerator{err: context.DeadlineExceeded}}, status: http.StatusServiceUnavailable},
		{name: "upstream", deps: Dependencies{LLM: &fakeGenerator{err: fmt.Errorf("%w: status 500", llm.ErrBadGateway)}}, status: http.StatusBadGateway},
		{name: "other", deps: Dependencies{LLM: &fakeGenerator{err: errors.New("boom")}}, status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.deps)
			item := mustCreate(t, env.svc, alice, "Fix bug", "")
			_, err := env.svc.ReviewCode(context.Background(), item.ID)
			expectDomainError(t, err, tt.status, "DEPENDENCY_ERROR")
		})
	}
}

func TestParseMetaTruncatesTitle(t *testing.T) {
	meta, err := parseMeta(fmt.Sprintf(`{"title": %q, "description": ""}`, strings.Repeat("t", 300)))
	if err != nil {
		t.Fatalf("parse meta: %v", err)
	}
	if len(meta.Title) != 255 {
		t.Fatalf("expected title truncated to 255, got %d", len(meta.Title))
	}
	if _, err := parseMeta(`{"title": "  "}`); err == nil {
		t.Fatal("expected empty title to be rejected")
	}
}
