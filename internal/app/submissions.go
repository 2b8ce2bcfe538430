package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"codecollab/api/internal/rbac"
	"codecollab/api/internal/revisions"
	"codecollab/api/internal/search"
	"codecollab/api/internal/store"
	"codecollab/api/internal/util"
)

const (
	maxTitleRunes       = 255
	maxDescriptionRunes = 2000
	maxLanguageRunes    = 50
	maxStatusRunes      = 50
	maxFeedbackRunes    = 2000
	defaultLanguage     = "python"
	listSubmissionsSize = 50
	defaultHistorySize  = 50
)

type SubmissionInput struct {
	Title       string
	Code        string
	Language    string
	Description string
}

func (s *Service) CreateSubmission(ctx context.Context, caller Caller, input SubmissionInput) (store.Submission, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Submission{}, validationError("title is required", map[string]any{"field": "title"})
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return store.Submission{}, validationError(fmt.Sprintf("title must be at most %d characters", maxTitleRunes), map[string]any{"field": "title"})
	}
	if strings.TrimSpace(input.Code) == "" {
		return store.Submission{}, validationError("code is required", map[string]any{"field": "code"})
	}
	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = defaultLanguage
	}
	if utf8.RuneCountInString(language) > maxLanguageRunes {
		return store.Submission{}, validationError(fmt.Sprintf("language must be at most %d characters", maxLanguageRunes), map[string]any{"field": "language"})
	}
	if utf8.RuneCountInString(input.Description) > maxDescriptionRunes {
		return store.Submission{}, validationError(fmt.Sprintf("description must be at most %d characters", maxDescriptionRunes), map[string]any{"field": "description"})
	}

	created, err := s.store.InsertSubmission(ctx, store.Submission{
		ID:          util.NewID("sub"),
		OwnerID:     caller.UserID,
		OwnerEmail:  strings.ToLower(caller.Email),
		Title:       title,
		Code:        input.Code,
		Language:    language,
		Description: input.Description,
		Status:      store.StatusOpen,
	})
	if err != nil {
		return store.Submission{}, err
	}

	s.search.IndexSubmission(created)
	s.recordRevision(created, caller, "Create submission")
	s.invalidateLeaderboard(ctx)
	return created, nil
}

func (s *Service) GetSubmission(ctx context.Context, submissionID string) (store.Submission, error) {
	item, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Submission{}, lookupError(err, "submission")
	}
	return item, nil
}

// ListSubmissions returns the latest submissions, newest first.
func (s *Service) ListSubmissions(ctx context.Context) ([]store.Submission, error) {
	return s.store.ListSubmissions(ctx, listSubmissionsSize)
}

// UpdateSubmissionField changes the code or the description of a
// submission owned by caller.
func (s *Service) UpdateSubmissionField(ctx context.Context, caller Caller, submissionID, field, value string) (store.Submission, error) {
	switch field {
	case "code":
		if strings.TrimSpace(value) == "" {
			return store.Submission{}, validationError("code is required", map[string]any{"field": "code"})
		}
	case "description":
		if utf8.RuneCountInString(value) > maxDescriptionRunes {
			return store.Submission{}, validationError(fmt.Sprintf("description must be at most %d characters", maxDescriptionRunes), map[string]any{"field": "description"})
		}
	default:
		return store.Submission{}, validationError("field must be code or description", map[string]any{"field": field})
	}

	item, err := s.ownedSubmission(ctx, caller, submissionID)
	if err != nil {
		return store.Submission{}, err
	}

	var updated store.Submission
	if field == "code" {
		updated, err = s.store.UpdateSubmissionCode(ctx, item.ID, value)
	} else {
		updated, err = s.store.UpdateSubmissionDescription(ctx, item.ID, value)
	}
	if err != nil {
		return store.Submission{}, lookupError(err, "submission")
	}

	s.search.IndexSubmission(updated)
	if field == "code" {
		s.recordRevision(updated, caller, "Update code")
	}
	return updated, nil
}

// TransitionStatus sets an arbitrary status label. Only the owner may do
// this; legality of the transition is not checked.
func (s *Service) TransitionStatus(ctx context.Context, caller Caller, submissionID, status string) (store.Submission, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return store.Submission{}, validationError("status is required", map[string]any{"field": "status"})
	}
	if utf8.RuneCountInString(status) > maxStatusRunes {
		return store.Submission{}, validationError(fmt.Sprintf("status must be at most %d characters", maxStatusRunes), map[string]any{"field": "status"})
	}

	item, err := s.ownedSubmission(ctx, caller, submissionID)
	if err != nil {
		return store.Submission{}, err
	}
	updated, err := s.store.UpdateSubmissionStatus(ctx, item.ID, status)
	if err != nil {
		return store.Submission{}, lookupError(err, "submission")
	}
	s.search.IndexSubmission(updated)
	s.invalidateLeaderboard(ctx)
	return updated, nil
}

// Decide approves or rejects a submission and overwrites its feedback.
func (s *Service) Decide(ctx context.Context, caller Caller, submissionID, outcome string, feedback *string) (store.Submission, error) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome != store.StatusApproved && outcome != store.StatusRejected {
		return store.Submission{}, validationError("outcome must be approved or rejected", map[string]any{"field": "outcome"})
	}
	var note *string
	if feedback != nil {
		trimmed := strings.TrimSpace(*feedback)
		if utf8.RuneCountInString(trimmed) > maxFeedbackRunes {
			return store.Submission{}, validationError(fmt.Sprintf("feedback must be at most %d characters", maxFeedbackRunes), map[string]any{"field": "feedback"})
		}
		if trimmed != "" {
			note = &trimmed
		}
	}
	if s.policy.DecideRequiresReviewer {
		if err := requirePermission(caller, rbac.ActionDecide); err != nil {
			return store.Submission{}, err
		}
	}

	item, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Submission{}, err
	}
	if !s.policy.AllowRedecide && item.Status != store.StatusOpen {
		return store.Submission{}, conflictError("submission has already been decided")
	}

	updated, err := s.store.UpdateSubmissionDecision(ctx, item.ID, outcome, note)
	if err != nil {
		return store.Submission{}, lookupError(err, "submission")
	}
	s.search.IndexSubmission(updated)
	s.invalidateLeaderboard(ctx)
	return updated, nil
}

func (s *Service) DeleteSubmission(ctx context.Context, caller Caller, submissionID string) error {
	item, err := s.ownedSubmission(ctx, caller, submissionID)
	if err != nil {
		return err
	}

	var attachments []store.Attachment
	if s.blob != nil {
		attachments, err = s.store.ListAttachments(ctx, item.ID)
		if err != nil {
			log.Printf("app: list attachments of %s before delete: %v", item.ID, err)
		}
	}

	if err := s.store.DeleteSubmission(ctx, item.ID); err != nil {
		return lookupError(err, "submission")
	}

	s.search.DeleteSubmission(item.ID)
	for _, attachment := range attachments {
		if err := s.blob.Remove(ctx, attachment.StoragePath); err != nil {
			log.Printf("app: remove blob %s: %v", attachment.StoragePath, err)
		}
	}
	if s.revisions != nil {
		if err := s.revisions.Remove(item.ID); err != nil {
			log.Printf("app: remove revisions of %s: %v", item.ID, err)
		}
	}
	s.invalidateLeaderboard(ctx)
	return nil
}

func (s *Service) SearchSubmissions(ctx context.Context, query string, limit int) (search.Response, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return search.Response{}, validationError("query is required", map[string]any{"field": "q"})
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit})
}

// ListRevisions returns the code history of a submission, newest first.
func (s *Service) ListRevisions(ctx context.Context, submissionID string, limit int) ([]store.CommitInfo, error) {
	item, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return []store.CommitInfo{}, nil
	}
	if limit <= 0 {
		limit = defaultHistorySize
	}
	history, err := s.revisions.History(item.ID, limit)
	if errors.Is(err, revisions.ErrNoHistory) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read revisions of %s: %w", item.ID, err)
	}
	return history, nil
}

func (s *Service) ownedSubmission(ctx context.Context, caller Caller, submissionID string) (store.Submission, error) {
	item, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Submission{}, err
	}
	if err := requireRole(submissionEntity(item), caller, rbac.RelationOwner); err != nil {
		return store.Submission{}, err
	}
	return item, nil
}

func (s *Service) recordRevision(item store.Submission, caller Caller, message string) {
	if s.revisions == nil {
		return
	}
	author := caller.Email
	if author == "" {
		author = caller.UserID
	}
	if _, err := s.revisions.Record(item.ID, author, item.Code, item.Language, message); err != nil {
		log.Printf("app: record revision for %s: %v", item.ID, err)
	}
}

// lookupError turns a store miss into a NOT_FOUND domain error naming the
// entity. Other errors pass through unchanged.
func lookupError(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(entity)
	}
	return err
}
