package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"codecollab/api/internal/rbac"
	"codecollab/api/internal/store"
	"codecollab/api/internal/util"
)

const maxCommentRunes = 2000

func validateCommentBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", validationError("body is required", map[string]any{"field": "body"})
	}
	if utf8.RuneCountInString(trimmed) > maxCommentRunes {
		return "", validationError(fmt.Sprintf("body must be at most %d characters", maxCommentRunes), map[string]any{"field": "body"})
	}
	return trimmed, nil
}

// AddComment stores a comment and then schedules the mention hook. The
// hook never affects the result.
func (s *Service) AddComment(ctx context.Context, caller Caller, submissionID, body string, lineNumber *int) (store.Comment, error) {
	text, err := validateCommentBody(body)
	if err != nil {
		return store.Comment{}, err
	}
	if lineNumber != nil && *lineNumber < 1 {
		return store.Comment{}, validationError("lineNumber must be at least 1", map[string]any{"field": "lineNumber"})
	}

	submission, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Comment{}, err
	}

	created, err := s.store.InsertComment(ctx, store.Comment{
		ID:           util.NewID("cmt"),
		SubmissionID: submission.ID,
		AuthorID:     caller.UserID,
		AuthorEmail:  strings.ToLower(caller.Email),
		Body:         text,
		LineNumber:   lineNumber,
	})
	if err != nil {
		return store.Comment{}, lookupError(err, "submission")
	}

	s.scheduleMentions(created, submission)
	s.invalidateLeaderboard(ctx)
	return created, nil
}

func (s *Service) EditComment(ctx context.Context, caller Caller, commentID, body string) (store.Comment, error) {
	text, err := validateCommentBody(body)
	if err != nil {
		return store.Comment{}, err
	}
	item, err := s.authoredComment(ctx, caller, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	updated, err := s.store.UpdateCommentBody(ctx, item.ID, text)
	if err != nil {
		return store.Comment{}, lookupError(err, "comment")
	}
	return updated, nil
}

func (s *Service) DeleteComment(ctx context.Context, caller Caller, commentID string) error {
	item, err := s.authoredComment(ctx, caller, commentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, item.ID); err != nil {
		return lookupError(err, "comment")
	}
	s.invalidateLeaderboard(ctx)
	return nil
}

// ListComments returns the thread in creation order.
func (s *Service) ListComments(ctx context.Context, submissionID string) ([]store.Comment, error) {
	if _, err := s.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, submissionID)
}

func (s *Service) getComment(ctx context.Context, commentID string) (store.Comment, error) {
	item, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, lookupError(err, "comment")
	}
	return item, nil
}

func (s *Service) authoredComment(ctx context.Context, caller Caller, commentID string) (store.Comment, error) {
	item, err := s.getComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	if err := requireRole(commentEntity(item), caller, rbac.RelationAuthor); err != nil {
		return store.Comment{}, err
	}
	return item, nil
}
