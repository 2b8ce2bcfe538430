package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codecollab/api/internal/cache"
)

func TestMyStatsScoresApprovals(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	first := mustCreate(t, env.svc, alice, "One", "")
	second := mustCreate(t, env.svc, alice, "Two", "")
	mustCreate(t, env.svc, alice, "Three", "")
	mustCreate(t, env.svc, bob, "Other", "")

	if _, err := env.svc.Decide(ctx, bob, first.ID, "approved", nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.svc.Decide(ctx, bob, second.ID, "rejected", nil); err != nil {
		t.Fatalf("reject: %v", err)
	}

	stats, err := env.svc.MyStats(ctx, alice)
	if err != nil {
		t.Fatalf("my stats: %v", err)
	}
	if stats.SubmissionsCount != 3 || stats.ApprovedCount != 1 || stats.Score != 10 || stats.Rank != nil {
		t.Fatalf("unexpected stats %+v", stats)
	}

	empty, err := env.svc.MyStats(ctx, carol)
	if err != nil {
		t.Fatalf("my stats: %v", err)
	}
	if empty != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", empty)
	}
}

func TestLeaderboardRanksAndBreaksTies(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	item := mustCreate(t, env.svc, bob, "One", "")
	mustCreate(t, env.svc, bob, "Two", "")
	mustCreate(t, env.svc, alice, "Three", "")
	mustCreate(t, env.svc, carol, "Four", "")
	comment := mustComment(t, env.svc, carol, item.ID, "hi")
	if _, _, err := env.svc.ToggleReaction(ctx, alice, comment.ID, "👍"); err != nil {
		t.Fatalf("react: %v", err)
	}

	board, err := env.svc.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.BySubmissions) != 2 {
		t.Fatalf("expected top 2, got %+v", board.BySubmissions)
	}
	if board.BySubmissions[0].Email != "bob@example.com" || board.BySubmissions[0].Count != 2 {
		t.Fatalf("expected bob first, got %+v", board.BySubmissions[0])
	}
	if board.BySubmissions[1].Email != "alice@example.com" {
		t.Fatalf("expected alice to win the tie on email, got %+v", board.BySubmissions[1])
	}
	if len(board.ByComments) != 1 || board.ByComments[0].Identity != carol.UserID {
		t.Fatalf("unexpected comment ranking %+v", board.ByComments)
	}
	if len(board.ByReactionsReceived) != 1 || board.ByReactionsReceived[0].Identity != carol.UserID {
		t.Fatalf("unexpected reaction ranking %+v", board.ByReactionsReceived)
	}
}

func TestLeaderboardUsesRedisCacheAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedisCacheWithClient(client, "codecollab:")

	env := newTestEnv(t, Dependencies{Cache: redisCache, LeaderboardTTL: time.Minute})
	ctx := context.Background()
	mustCreate(t, env.svc, alice, "One", "")

	board, err := env.svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.BySubmissions) != 1 {
		t.Fatalf("expected one entry, got %+v", board.BySubmissions)
	}
	if !mr.Exists("codecollab:leaderboard:top:10") {
		t.Fatalf("expected cached leaderboard, keys=%v", mr.Keys())
	}

	mustCreate(t, env.svc, bob, "Two", "")
	if mr.Exists("codecollab:leaderboard:top:10") {
		t.Fatal("expected new submission to invalidate the cache")
	}
	board, err = env.svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.BySubmissions) != 2 {
		t.Fatalf("expected fresh ranking with two entries, got %+v", board.BySubmissions)
	}
}

func TestLeaderboardCapsSize(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, Dependencies{Cache: cache.NewRedisCacheWithClient(client, "")})
	if _, err := env.svc.Leaderboard(context.Background(), 1000); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !mr.Exists("leaderboard:top:100") {
		t.Fatalf("expected size capped at 100, keys=%v", mr.Keys())
	}
}
