package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const (
	StatusOpen     = "open"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Submission struct {
	ID          string
	OwnerID     string
	OwnerEmail  string
	Title       string
	Code        string
	Language    string
	Description string
	Status      string
	Feedback    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID           string
	SubmissionID string
	AuthorID     string
	AuthorEmail  string
	Body         string
	LineNumber   *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Vote struct {
	CommentID string
	VoterID   string
	Value     int
	CreatedAt time.Time
}

type Notification struct {
	ID          string
	RecipientID string
	Message     string
	Type        string
	Read        bool
	CreatedAt   time.Time
}

type Reaction struct {
	ID        string
	CommentID string
	UserID    string
	UserEmail string
	Emoji     string
	CreatedAt time.Time
}

type ReactionCount struct {
	Emoji string
	Count int
}

type Attachment struct {
	ID           string
	SubmissionID string
	UploaderID   string
	FileName     string
	StoragePath  string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

// Identity is a user known to the store through authorship records.
type Identity struct {
	ID    string
	Email string
}

// AuthorCount is one row of a per-author aggregate.
type AuthorCount struct {
	ID    string
	Email string
	Count int
}

type SubmissionStats struct {
	SubmissionsCount int
	ApprovedCount    int
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
