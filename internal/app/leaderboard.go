package app

import (
	"context"
	"fmt"
	"log"
	"sort"

	"codecollab/api/internal/store"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
	leaderboardCachePrefix = "leaderboard:"
	approvedScoreWeight    = 10
)

type LeaderboardEntry struct {
	Identity string `json:"identity"`
	Email    string `json:"email"`
	Count    int    `json:"count"`
}

type Leaderboard struct {
	BySubmissions       []LeaderboardEntry `json:"bySubmissions"`
	ByComments          []LeaderboardEntry `json:"byComments"`
	ByReactionsReceived []LeaderboardEntry `json:"byReactionsReceived"`
}

type Stats struct {
	SubmissionsCount int  `json:"submissionsCount"`
	ApprovedCount    int  `json:"approvedCount"`
	Score            int  `json:"score"`
	Rank             *int `json:"rank"`
}

// Leaderboard ranks participants by submissions, comments and reactions
// received. Results may come from the cache for up to the cache TTL.
func (s *Service) Leaderboard(ctx context.Context, n int) (Leaderboard, error) {
	if n <= 0 {
		n = defaultLeaderboardSize
	}
	if n > maxLeaderboardSize {
		n = maxLeaderboardSize
	}
	key := fmt.Sprintf("%stop:%d", leaderboardCachePrefix, n)

	if s.cache != nil {
		var cached Leaderboard
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Printf("app: leaderboard cache read: %v", err)
		}
		if hit {
			return cached, nil
		}
	}

	submissions, err := s.store.CountSubmissionsByOwner(ctx)
	if err != nil {
		return Leaderboard{}, err
	}
	comments, err := s.store.CountCommentsByAuthor(ctx)
	if err != nil {
		return Leaderboard{}, err
	}
	reactions, err := s.store.CountReactionsReceived(ctx)
	if err != nil {
		return Leaderboard{}, err
	}

	board := Leaderboard{
		BySubmissions:       rankCounts(submissions, n),
		ByComments:          rankCounts(comments, n),
		ByReactionsReceived: rankCounts(reactions, n),
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, board, s.leaderboardTTL); err != nil {
			log.Printf("app: leaderboard cache write: %v", err)
		}
	}
	return board, nil
}

// rankCounts orders by count descending, then email, then identity, so the
// same snapshot always ranks the same way.
func rankCounts(rows []store.AuthorCount, n int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, LeaderboardEntry{Identity: row.ID, Email: row.Email, Count: row.Count})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		if entries[i].Email != entries[j].Email {
			return entries[i].Email < entries[j].Email
		}
		return entries[i].Identity < entries[j].Identity
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// MyStats reports the caller's own counts. Rank is always nil.
func (s *Service) MyStats(ctx context.Context, caller Caller) (Stats, error) {
	stats, err := s.store.SubmissionStatsFor(ctx, caller.UserID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		SubmissionsCount: stats.SubmissionsCount,
		ApprovedCount:    stats.ApprovedCount,
		Score:            stats.ApprovedCount * approvedScoreWeight,
	}, nil
}

func (s *Service) invalidateLeaderboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, leaderboardCachePrefix); err != nil {
		log.Printf("app: leaderboard cache invalidate: %v", err)
	}
}
