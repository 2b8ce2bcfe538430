package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"codecollab/api/internal/store"
	"codecollab/api/internal/util"
)

const maxEmojiRunes = 10

// ToggleReaction adds the caller's emoji to a comment, or removes it when
// it is already there. on reports the resulting state.
func (s *Service) ToggleReaction(ctx context.Context, caller Caller, commentID, emoji string) (bool, string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, "", validationError("emoji is required", map[string]any{"field": "emoji"})
	}
	if utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return false, "", validationError("emoji is too long", map[string]any{"field": "emoji"})
	}
	item, err := s.getComment(ctx, commentID)
	if err != nil {
		return false, "", err
	}

	on, err := s.store.ToggleReaction(ctx, store.Reaction{
		ID:        util.NewID("rct"),
		CommentID: item.ID,
		UserID:    caller.UserID,
		UserEmail: strings.ToLower(caller.Email),
		Emoji:     emoji,
	})
	if err != nil {
		return false, "", lookupError(err, "comment")
	}
	s.invalidateLeaderboard(ctx)
	return on, emoji, nil
}

func (s *Service) ListReactions(ctx context.Context, commentID string) ([]store.ReactionCount, error) {
	item, err := s.getComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return s.store.ListReactionCounts(ctx, item.ID)
}
