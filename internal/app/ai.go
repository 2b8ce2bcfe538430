package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"codecollab/api/internal/llm"
)

const (
	reviewSystemPrompt = "You are a senior engineer doing a peer code review. Point out bugs, risky constructs and readability problems. Be concise and concrete; use Markdown bullet points."

	summarySystemPrompt = "You summarize code review discussions. List the main points raised, the decisions reached and any open questions. Use at most eight Markdown bullet points."

	metaSystemPrompt = `You write titles for code review requests. Reply with a single JSON object of the form {"title": "...", "description": "..."} and nothing else. The title is at most 80 characters; the description is one or two sentences.`

	maxPromptCodeRunes = 12000
)

type SubmissionMeta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ReviewCode asks the text generator for a review of a submission's code.
func (s *Service) ReviewCode(ctx context.Context, submissionID string) (string, error) {
	item, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("Language: %s\nTitle: %s\n\n```%s\n%s\n```", item.Language, item.Title, item.Language, truncateRunes(item.Code, maxPromptCodeRunes))
	return s.generate(ctx, reviewSystemPrompt, prompt)
}

func (s *Service) SummarizeThread(ctx context.Context, submissionID string) (string, error) {
	item, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	comments, err := s.store.ListComments(ctx, item.ID)
	if err != nil {
		return "", err
	}
	if len(comments) == 0 {
		return "", validationError("submission has no comments to summarize", nil)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Discussion on %q:\n\n", item.Title)
	for _, comment := range comments {
		if comment.LineNumber != nil {
			fmt.Fprintf(&builder, "- %s (line %d): %s\n", comment.AuthorEmail, *comment.LineNumber, comment.Body)
			continue
		}
		fmt.Fprintf(&builder, "- %s: %s\n", comment.AuthorEmail, comment.Body)
	}
	return s.generate(ctx, summarySystemPrompt, builder.String())
}

// GenerateMeta proposes a title and description for a piece of code.
func (s *Service) GenerateMeta(ctx context.Context, code, language string) (SubmissionMeta, error) {
	if strings.TrimSpace(code) == "" {
		return SubmissionMeta{}, validationError("code is required", map[string]any{"field": "code"})
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = defaultLanguage
	}

	prompt := fmt.Sprintf("Language: %s\n\n```%s\n%s\n```", language, language, truncateRunes(code, maxPromptCodeRunes))
	output, err := s.generate(ctx, metaSystemPrompt, prompt)
	if err != nil {
		return SubmissionMeta{}, err
	}
	meta, err := parseMeta(output)
	if err != nil {
		log.Printf("app: generate meta: %v", err)
		return SubmissionMeta{}, dependencyError(http.StatusBadGateway, "text generation returned malformed output")
	}
	return meta, nil
}

// generate maps generator failures to DEPENDENCY_ERROR. There is no retry.
func (s *Service) generate(ctx context.Context, system, prompt string) (string, error) {
	if s.llm == nil {
		return "", dependencyError(http.StatusServiceUnavailable, "text generation is not configured")
	}
	output, err := s.llm.Generate(ctx, system, prompt)
	if err != nil {
		log.Printf("app: text generation: %v", err)
		if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return "", dependencyError(http.StatusServiceUnavailable, "text generation is unavailable")
		}
		return "", dependencyError(http.StatusBadGateway, "text generation failed")
	}
	return output, nil
}

func parseMeta(output string) (SubmissionMeta, error) {
	text := strings.TrimSpace(output)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var meta SubmissionMeta
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return SubmissionMeta{}, fmt.Errorf("decode meta: %w", err)
	}
	meta.Title = truncateRunes(strings.TrimSpace(meta.Title), maxTitleRunes)
	meta.Description = truncateRunes(strings.TrimSpace(meta.Description), maxDescriptionRunes)
	if meta.Title == "" {
		return SubmissionMeta{}, errors.New("decode meta: empty title")
	}
	return meta, nil
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
