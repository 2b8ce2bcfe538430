package search

import (
	"context"
	"fmt"
	"log"
	"sort"

	"codecollab/api/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 50

	SourceIndex = "meilisearch"
	SourceStore = "store"
)

type SubmissionStore interface {
	SearchSubmissions(ctx context.Context, text string, limit int) ([]store.Submission, error)
	GetSubmissionsByIDs(ctx context.Context, ids []string) ([]store.Submission, error)
	ListSubmissions(ctx context.Context, limit int) ([]store.Submission, error)
}

// Service ranks Meilisearch hits ahead of the store's substring matches
// when the index is healthy and uses the store alone otherwise. Every
// candidate is re-checked with Match, so the result set does not depend on
// which backend answered.
type Service struct {
	meili *Meili
	store SubmissionStore
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili, st SubmissionStore) *Service {
	return &Service{meili: meili, store: st}
}

func (s *Service) indexReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	source := SourceStore
	var indexed []store.Submission
	if s.indexReady() {
		items, err := s.indexCandidates(ctx, q.Text, limit)
		if err != nil {
			log.Printf("search: meilisearch error, falling back to store: %v", err)
		} else {
			indexed = items
			source = SourceIndex
		}
	}

	// Meilisearch matches whole tokens, so its hits only lead the candidate
	// list; the store still supplies every substring match.
	matched, err := s.store.SearchSubmissions(ctx, q.Text, limit)
	if err != nil {
		return Response{}, fmt.Errorf("search store: %w", err)
	}
	candidates := mergeByID(indexed, matched)
	return Response{Results: rank(candidates, q.Text, limit), Query: q.Text, Source: source}, nil
}

func (s *Service) indexCandidates(ctx context.Context, text string, limit int) ([]store.Submission, error) {
	ids, err := s.meili.CandidateIDs(text, limit)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetSubmissionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load index candidates: %w", err)
	}
	byID := make(map[string]store.Submission, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	ordered := make([]store.Submission, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

func mergeByID(lists ...[]store.Submission) []store.Submission {
	seen := make(map[string]struct{})
	merged := make([]store.Submission, 0)
	for _, list := range lists {
		for _, item := range list {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

// rank keeps the candidates that really contain text and orders them by
// matched field priority, preserving candidate order within a field.
func rank(candidates []store.Submission, text string, limit int) []Result {
	results := make([]Result, 0, len(candidates))
	for _, item := range candidates {
		if result, ok := Match(item, text); ok {
			results = append(results, result)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return fieldPriority[results[i].Field] < fieldPriority[results[j].Field]
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// IndexSubmission pushes a submission to Meilisearch (fire-and-forget).
func (s *Service) IndexSubmission(item store.Submission) {
	if !s.indexReady() {
		return
	}
	record := RecordFor(item)
	go func() {
		if err := s.meili.IndexSubmissions([]SubmissionRecord{record}); err != nil {
			log.Printf("search: index submission %s: %v", record.ID, err)
		}
	}()
}

// DeleteSubmission removes a submission from Meilisearch (fire-and-forget).
func (s *Service) DeleteSubmission(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteSubmission(id); err != nil {
			log.Printf("search: delete submission %s: %v", id, err)
		}
	}()
}

// ReindexAll loads every submission from the store and pushes it to
// Meilisearch. Called once at startup.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexReady() {
		return
	}
	items, err := s.store.ListSubmissions(ctx, 0)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]SubmissionRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFor(item))
	}
	if err := s.meili.IndexSubmissions(records); err != nil {
		log.Printf("search: reindex submissions: %v", err)
	}
}
