package app

import (
	"context"
	"io"
	"log"
	"time"

	"codecollab/api/internal/email"
	"codecollab/api/internal/hook"
	"codecollab/api/internal/identity"
	"codecollab/api/internal/rbac"
	"codecollab/api/internal/search"
	"codecollab/api/internal/store"
)

// Caller is the verified identity making a request.
type Caller struct {
	UserID string
	Email  string
	Role   rbac.Role
}

// DataStore is the persistence surface the Service needs. PostgresStore and
// MemoryStore both satisfy it.
type DataStore interface {
	Ping(ctx context.Context) error

	InsertSubmission(context.Context, store.Submission) (store.Submission, error)
	GetSubmission(context.Context, string) (store.Submission, error)
	ListSubmissions(context.Context, int) ([]store.Submission, error)
	GetSubmissionsByIDs(context.Context, []string) ([]store.Submission, error)
	SearchSubmissions(context.Context, string, int) ([]store.Submission, error)
	UpdateSubmissionCode(context.Context, string, string) (store.Submission, error)
	UpdateSubmissionDescription(context.Context, string, string) (store.Submission, error)
	UpdateSubmissionStatus(context.Context, string, string) (store.Submission, error)
	UpdateSubmissionDecision(context.Context, string, string, *string) (store.Submission, error)
	DeleteSubmission(context.Context, string) error

	InsertComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	UpdateCommentBody(context.Context, string, string) (store.Comment, error)
	DeleteComment(context.Context, string) error
	ListComments(context.Context, string) ([]store.Comment, error)

	UpsertVote(context.Context, string, string, int) error
	DeleteVote(context.Context, string, string) error
	ListVotes(context.Context, []string) ([]store.Vote, error)

	ToggleReaction(context.Context, store.Reaction) (bool, error)
	ListReactionCounts(context.Context, string) ([]store.ReactionCount, error)

	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string) ([]store.Notification, error)
	MarkAllNotificationsRead(context.Context, string) (int64, error)

	FindIdentityByEmail(context.Context, string) (store.Identity, error)

	CountSubmissionsByOwner(context.Context) ([]store.AuthorCount, error)
	CountCommentsByAuthor(context.Context) ([]store.AuthorCount, error)
	CountReactionsReceived(context.Context) ([]store.AuthorCount, error)
	SubmissionStatsFor(context.Context, string) (store.SubmissionStats, error)

	InsertAttachment(context.Context, store.Attachment) (store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string) error
}

type submissionSearch interface {
	Search(context.Context, search.Query) (search.Response, error)
	IndexSubmission(store.Submission)
	DeleteSubmission(string)
}

type identityResolver interface {
	Resolve(ctx context.Context, email string) (store.Identity, bool, error)
}

type hookRunner interface {
	Submit(hook.Task)
}

type jsonCache interface {
	GetJSON(ctx context.Context, name string, dest any) (bool, error)
	SetJSON(ctx context.Context, name string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, namePrefix string) error
}

type blobStore interface {
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) error
	Remove(ctx context.Context, key string) error
}

type revisionLog interface {
	Record(submissionID, author, code, language, message string) (store.CommitInfo, error)
	History(submissionID string, limit int) ([]store.CommitInfo, error)
	Remove(submissionID string) error
}

type textGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type mentionMailer interface {
	IsConfigured() bool
	SendMentionEmail(to string, data email.MentionData) error
}

// Policy holds the switchable decision rules.
type Policy struct {
	// DecideRequiresReviewer limits decide to the reviewer and admin roles.
	DecideRequiresReviewer bool
	// AllowRedecide lets a decided submission be decided again.
	AllowRedecide bool
}

func DefaultPolicy() Policy {
	return Policy{AllowRedecide: true}
}

// Dependencies are the optional collaborators of a Service. Nil fields
// get in-process defaults or disable the feature that needs them.
type Dependencies struct {
	Search         submissionSearch
	Identity       identityResolver
	Hooks          hookRunner
	Cache          jsonCache
	LeaderboardTTL time.Duration
	Blob           blobStore
	Revisions      revisionLog
	LLM            textGenerator
	Mailer         mentionMailer
	Policy         Policy
}

type Service struct {
	store          DataStore
	search         submissionSearch
	identity       identityResolver
	hooks          hookRunner
	cache          jsonCache
	leaderboardTTL time.Duration
	blob           blobStore
	revisions      revisionLog
	llm            textGenerator
	mailer         mentionMailer
	policy         Policy
}

func New(dataStore DataStore, deps Dependencies) *Service {
	s := &Service{
		store:          dataStore,
		search:         deps.Search,
		identity:       deps.Identity,
		hooks:          deps.Hooks,
		cache:          deps.Cache,
		leaderboardTTL: deps.LeaderboardTTL,
		blob:           deps.Blob,
		revisions:      deps.Revisions,
		llm:            deps.LLM,
		mailer:         deps.Mailer,
		policy:         deps.Policy,
	}
	if s.search == nil {
		s.search = search.NewService(nil, dataStore)
	}
	if s.identity == nil {
		resolver, err := identity.NewResolver(dataStore, 1024, 5*time.Minute)
		if err != nil {
			log.Printf("app: identity cache disabled: %v", err)
		} else {
			s.identity = resolver
		}
	}
	if s.hooks == nil {
		s.hooks = hook.NewSyncRunner(hook.LogSink{})
	}
	if s.leaderboardTTL <= 0 {
		s.leaderboardTTL = 30 * time.Second
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
