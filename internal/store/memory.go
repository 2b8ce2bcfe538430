package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local store with the same contract as
// PostgresStore. Timestamps are strictly increasing so that ordering by
// creation time is stable.
type MemoryStore struct {
	mu            sync.Mutex
	last          time.Time
	submissions   map[string]Submission
	comments      map[string]Comment
	votes         map[voteKey]Vote
	reactions     map[reactionKey]Reaction
	notifications map[string]Notification
	attachments   map[string]Attachment
}

type voteKey struct {
	commentID string
	voterID   string
}

type reactionKey struct {
	commentID string
	userID    string
	emoji     string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions:   make(map[string]Submission),
		comments:      make(map[string]Comment),
		votes:         make(map[voteKey]Vote),
		reactions:     make(map[reactionKey]Reaction),
		notifications: make(map[string]Notification),
		attachments:   make(map[string]Attachment),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

func (s *MemoryStore) InsertSubmission(_ context.Context, item Submission) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[item.ID]; exists {
		return Submission{}, ErrConflict
	}
	now := s.tick()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.submissions[item.ID] = item
	return cloneSubmission(item), nil
}

func (s *MemoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return cloneSubmission(item), nil
}

func (s *MemoryStore) ListSubmissions(_ context.Context, limit int) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.sortedSubmissions()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) GetSubmissionsByIDs(_ context.Context, ids []string) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Submission, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.submissions[id]; ok {
			items = append(items, cloneSubmission(item))
		}
	}
	return items, nil
}

func (s *MemoryStore) SearchSubmissions(_ context.Context, text string, limit int) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(text)
	// Title matches first, then description, then code; newest first within each.
	buckets := make([][]Submission, 3)
	for _, item := range s.sortedSubmissions() {
		switch {
		case strings.Contains(strings.ToLower(item.Title), needle):
			buckets[0] = append(buckets[0], item)
		case strings.Contains(strings.ToLower(item.Description), needle):
			buckets[1] = append(buckets[1], item)
		case strings.Contains(strings.ToLower(item.Code), needle):
			buckets[2] = append(buckets[2], item)
		}
	}
	items := make([]Submission, 0)
	for _, bucket := range buckets {
		items = append(items, bucket...)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// sortedSubmissions returns copies newest first. Callers hold s.mu.
func (s *MemoryStore) sortedSubmissions() []Submission {
	items := make([]Submission, 0, len(s.submissions))
	for _, item := range s.submissions {
		items = append(items, cloneSubmission(item))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

func (s *MemoryStore) updateSubmission(id string, mutate func(*Submission)) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	mutate(&item)
	item.UpdatedAt = s.tick()
	s.submissions[id] = item
	return cloneSubmission(item), nil
}

func (s *MemoryStore) UpdateSubmissionCode(_ context.Context, id, code string) (Submission, error) {
	return s.updateSubmission(id, func(item *Submission) { item.Code = code })
}

func (s *MemoryStore) UpdateSubmissionDescription(_ context.Context, id, description string) (Submission, error) {
	return s.updateSubmission(id, func(item *Submission) { item.Description = description })
}

func (s *MemoryStore) UpdateSubmissionStatus(_ context.Context, id, status string) (Submission, error) {
	return s.updateSubmission(id, func(item *Submission) { item.Status = status })
}

func (s *MemoryStore) UpdateSubmissionDecision(_ context.Context, id, status string, feedback *string) (Submission, error) {
	return s.updateSubmission(id, func(item *Submission) {
		item.Status = status
		item.Feedback = copyString(feedback)
	})
}

// DeleteSubmission removes the submission and everything hanging off it,
// mirroring the ON DELETE CASCADE foreign keys of the SQL schema.
func (s *MemoryStore) DeleteSubmission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[id]; !ok {
		return ErrNotFound
	}
	delete(s.submissions, id)
	for commentID, comment := range s.comments {
		if comment.SubmissionID == id {
			s.deleteCommentLocked(commentID)
		}
	}
	for attachmentID, attachment := range s.attachments {
		if attachment.SubmissionID == id {
			delete(s.attachments, attachmentID)
		}
	}
	return nil
}

func (s *MemoryStore) InsertComment(_ context.Context, item Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[item.SubmissionID]; !ok {
		return Comment{}, ErrNotFound
	}
	if _, exists := s.comments[item.ID]; exists {
		return Comment{}, ErrConflict
	}
	now := s.tick()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.LineNumber = copyInt(item.LineNumber)
	s.comments[item.ID] = item
	return cloneComment(item), nil
}

func (s *MemoryStore) GetComment(_ context.Context, id string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return cloneComment(item), nil
}

func (s *MemoryStore) UpdateCommentBody(_ context.Context, id, body string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	item.Body = body
	item.UpdatedAt = s.tick()
	s.comments[id] = item
	return cloneComment(item), nil
}

func (s *MemoryStore) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return ErrNotFound
	}
	s.deleteCommentLocked(id)
	return nil
}

func (s *MemoryStore) deleteCommentLocked(id string) {
	delete(s.comments, id)
	for key := range s.votes {
		if key.commentID == id {
			delete(s.votes, key)
		}
	}
	for key := range s.reactions {
		if key.commentID == id {
			delete(s.reactions, key)
		}
	}
}

func (s *MemoryStore) ListComments(_ context.Context, submissionID string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Comment, 0)
	for _, item := range s.comments {
		if item.SubmissionID == submissionID {
			items = append(items, cloneComment(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) UpsertVote(_ context.Context, commentID, voterID string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[commentID]; !ok {
		return ErrNotFound
	}
	key := voteKey{commentID: commentID, voterID: voterID}
	existing, ok := s.votes[key]
	if ok {
		existing.Value = value
		s.votes[key] = existing
		return nil
	}
	s.votes[key] = Vote{CommentID: commentID, VoterID: voterID, Value: value, CreatedAt: s.tick()}
	return nil
}

func (s *MemoryStore) DeleteVote(_ context.Context, commentID, voterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, voteKey{commentID: commentID, voterID: voterID})
	return nil
}

func (s *MemoryStore) ListVotes(_ context.Context, commentIDs []string) ([]Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(commentIDs))
	for _, id := range commentIDs {
		wanted[id] = struct{}{}
	}
	items := make([]Vote, 0)
	for key, vote := range s.votes {
		if _, ok := wanted[key.commentID]; ok {
			items = append(items, vote)
		}
	}
	return items, nil
}

func (s *MemoryStore) ToggleReaction(_ context.Context, item Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[item.CommentID]; !ok {
		return false, ErrNotFound
	}
	key := reactionKey{commentID: item.CommentID, userID: item.UserID, emoji: item.Emoji}
	if _, ok := s.reactions[key]; ok {
		delete(s.reactions, key)
		return false, nil
	}
	item.CreatedAt = s.tick()
	s.reactions[key] = item
	return true, nil
}

func (s *MemoryStore) ListReactionCounts(_ context.Context, commentID string) ([]ReactionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for key := range s.reactions {
		if key.commentID == commentID {
			counts[key.emoji]++
		}
	}
	items := make([]ReactionCount, 0, len(counts))
	for emoji, count := range counts {
		items = append(items, ReactionCount{Emoji: emoji, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Emoji < items[j].Emoji
		}
		return items[i].Count > items[j].Count
	})
	return items, nil
}

func (s *MemoryStore) InsertNotification(_ context.Context, item Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notifications[item.ID]; exists {
		return ErrConflict
	}
	item.CreatedAt = s.tick()
	s.notifications[item.ID] = item
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, recipientID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Notification, 0)
	for _, item := range s.notifications {
		if item.RecipientID == recipientID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for id, item := range s.notifications {
		if item.RecipientID != recipientID || item.Read {
			continue
		}
		item.Read = true
		s.notifications[id] = item
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) FindIdentityByEmail(_ context.Context, email string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found Identity
	var foundAt time.Time
	consider := func(id, address string, at time.Time) {
		if !strings.EqualFold(address, email) {
			return
		}
		if found.ID == "" || at.After(foundAt) {
			found = Identity{ID: id, Email: address}
			foundAt = at
		}
	}
	for _, item := range s.submissions {
		consider(item.OwnerID, item.OwnerEmail, item.CreatedAt)
	}
	for _, item := range s.comments {
		consider(item.AuthorID, item.AuthorEmail, item.CreatedAt)
	}
	if found.ID == "" {
		return Identity{}, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) CountSubmissionsByOwner(context.Context) ([]AuthorCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter := newAuthorCounter()
	for _, item := range s.submissions {
		counter.add(item.OwnerID, item.OwnerEmail)
	}
	return counter.rows(), nil
}

func (s *MemoryStore) CountCommentsByAuthor(context.Context) ([]AuthorCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter := newAuthorCounter()
	for _, item := range s.comments {
		counter.add(item.AuthorID, item.AuthorEmail)
	}
	return counter.rows(), nil
}

func (s *MemoryStore) CountReactionsReceived(context.Context) ([]AuthorCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter := newAuthorCounter()
	for key := range s.reactions {
		comment, ok := s.comments[key.commentID]
		if !ok {
			continue
		}
		counter.add(comment.AuthorID, comment.AuthorEmail)
	}
	return counter.rows(), nil
}

func (s *MemoryStore) SubmissionStatsFor(_ context.Context, ownerID string) (SubmissionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats SubmissionStats
	for _, item := range s.submissions {
		if item.OwnerID != ownerID {
			continue
		}
		stats.SubmissionsCount++
		if item.Status == StatusApproved {
			stats.ApprovedCount++
		}
	}
	return stats, nil
}

func (s *MemoryStore) InsertAttachment(_ context.Context, item Attachment) (Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[item.SubmissionID]; !ok {
		return Attachment{}, ErrNotFound
	}
	if _, exists := s.attachments[item.ID]; exists {
		return Attachment{}, ErrConflict
	}
	item.CreatedAt = s.tick()
	s.attachments[item.ID] = item
	return item, nil
}

func (s *MemoryStore) GetAttachment(_ context.Context, id string) (Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.attachments[id]
	if !ok {
		return Attachment{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) ListAttachments(_ context.Context, submissionID string) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Attachment, 0)
	for _, item := range s.attachments {
		if item.SubmissionID == submissionID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) DeleteAttachment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return ErrNotFound
	}
	delete(s.attachments, id)
	return nil
}

type authorCounter struct {
	order  []string
	counts map[string]*AuthorCount
}

func newAuthorCounter() *authorCounter {
	return &authorCounter{counts: make(map[string]*AuthorCount)}
}

func (c *authorCounter) add(id, email string) {
	entry, ok := c.counts[id]
	if !ok {
		entry = &AuthorCount{ID: id, Email: email}
		c.counts[id] = entry
		c.order = append(c.order, id)
	}
	if entry.Email == "" {
		entry.Email = email
	}
	entry.Count++
}

func (c *authorCounter) rows() []AuthorCount {
	sort.Strings(c.order)
	items := make([]AuthorCount, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, *c.counts[id])
	}
	return items
}

func cloneSubmission(item Submission) Submission {
	item.Feedback = copyString(item.Feedback)
	return item
}

func cloneComment(item Comment) Comment {
	item.LineNumber = copyInt(item.LineNumber)
	return item
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func copyInt(value *int) *int {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
