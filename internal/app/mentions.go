package app

import (
	"context"
	"errors"
	"fmt"

	"codecollab/api/internal/email"
	"codecollab/api/internal/hook"
	"codecollab/api/internal/mention"
	"codecollab/api/internal/store"
	"codecollab/api/internal/util"
)

const (
	notificationTypeMention = "mention"
	maxExcerptRunes         = 280
)

// scheduleMentions hands the mention fan-out to the hook runner. It runs
// only after the comment insert has returned.
func (s *Service) scheduleMentions(comment store.Comment, submission store.Submission) {
	recipients := mention.Recipients(comment.Body, comment.AuthorEmail)
	if len(recipients) == 0 {
		return
	}
	s.hooks.Submit(hook.Task{
		Name: "mention:" + comment.ID,
		Run: func(ctx context.Context) error {
			return s.notifyMentions(ctx, comment, submission.Title, recipients)
		},
	})
}

// notifyMentions creates one notification per resolved identity. Every
// failure is collected and returned to the hook sink; nothing stops the
// loop early.
func (s *Service) notifyMentions(ctx context.Context, comment store.Comment, title string, recipients []string) error {
	if s.identity == nil {
		return errors.New("no identity resolver")
	}

	var errs []error
	notified := make(map[string]struct{}, len(recipients))
	for _, address := range recipients {
		target, ok, err := s.identity.Resolve(ctx, address)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || target.ID == comment.AuthorID {
			continue
		}
		if _, done := notified[target.ID]; done {
			continue
		}
		notified[target.ID] = struct{}{}

		err = s.store.InsertNotification(ctx, store.Notification{
			ID:          util.NewID("ntf"),
			RecipientID: target.ID,
			Message:     fmt.Sprintf("%s mentioned you in a comment", comment.AuthorEmail),
			Type:        notificationTypeMention,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", target.ID, err))
			continue
		}

		if s.mailer != nil && s.mailer.IsConfigured() {
			err := s.mailer.SendMentionEmail(address, email.MentionData{
				AuthorEmail:     comment.AuthorEmail,
				SubmissionTitle: title,
				Excerpt:         excerpt(comment.Body, maxExcerptRunes),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("mail %s: %w", address, err))
			}
		}
	}
	return errors.Join(errs...)
}

func excerpt(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "…"
}
