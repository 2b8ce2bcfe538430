package app

import (
	"context"
	"errors"

	"codecollab/api/internal/store"
)

type Tally struct {
	Upvotes    int `json:"upvotes"`
	Downvotes  int `json:"downvotes"`
	Net        int `json:"net"`
	CallerVote int `json:"callerVote"`
}

// UpsertVote records the caller's vote on a comment. 0 clears the vote and
// reports an empty tally; ±1 replaces any earlier vote and returns the
// fresh tally.
func (s *Service) UpsertVote(ctx context.Context, caller Caller, commentID string, value int) (Tally, error) {
	if value < -1 || value > 1 {
		return Tally{}, validationError("value must be -1, 0 or 1", map[string]any{"field": "value"})
	}
	item, err := s.getComment(ctx, commentID)
	if err != nil {
		return Tally{}, err
	}

	if value == 0 {
		if err := s.store.DeleteVote(ctx, item.ID, caller.UserID); err != nil {
			return Tally{}, err
		}
		return Tally{}, nil
	}

	err = s.store.UpsertVote(ctx, item.ID, caller.UserID, value)
	if errors.Is(err, store.ErrConflict) {
		err = s.store.UpsertVote(ctx, item.ID, caller.UserID, value)
		if errors.Is(err, store.ErrConflict) {
			return Tally{}, conflictError("vote was modified concurrently, try again")
		}
	}
	if err != nil {
		return Tally{}, lookupError(err, "comment")
	}
	return s.tallyFor(ctx, caller, item.ID)
}

func (s *Service) RemoveVote(ctx context.Context, caller Caller, commentID string) (Tally, error) {
	return s.UpsertVote(ctx, caller, commentID, 0)
}

func (s *Service) Tally(ctx context.Context, caller Caller, commentID string) (Tally, error) {
	item, err := s.getComment(ctx, commentID)
	if err != nil {
		return Tally{}, err
	}
	return s.tallyFor(ctx, caller, item.ID)
}

func (s *Service) tallyFor(ctx context.Context, caller Caller, commentID string) (Tally, error) {
	votes, err := s.store.ListVotes(ctx, []string{commentID})
	if err != nil {
		return Tally{}, err
	}
	return tallyVotes(votes, caller.UserID), nil
}

// TallyBatch tallies every comment of a submission with one comment query
// and one vote query.
func (s *Service) TallyBatch(ctx context.Context, caller Caller, submissionID string) (map[string]Tally, error) {
	comments, err := s.ListComments(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]Tally, len(comments))
	if len(comments) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.ID)
		result[comment.ID] = Tally{}
	}
	votes, err := s.store.ListVotes(ctx, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]store.Vote, len(ids))
	for _, vote := range votes {
		grouped[vote.CommentID] = append(grouped[vote.CommentID], vote)
	}
	for id, group := range grouped {
		if _, ok := result[id]; ok {
			result[id] = tallyVotes(group, caller.UserID)
		}
	}
	return result, nil
}

func tallyVotes(votes []store.Vote, callerID string) Tally {
	var tally Tally
	for _, vote := range votes {
		switch vote.Value {
		case 1:
			tally.Upvotes++
		case -1:
			tally.Downvotes++
		default:
			continue
		}
		if vote.VoterID == callerID {
			tally.CallerVote = vote.Value
		}
	}
	tally.Net = tally.Upvotes - tally.Downvotes
	return tally
}
