package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const submissionColumns = `id, owner_id, owner_email, title, code, language, description, status, feedback, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var item Submission
	var feedback sql.NullString
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.OwnerEmail,
		&item.Title,
		&item.Code,
		&item.Language,
		&item.Description,
		&item.Status,
		&feedback,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Submission{}, err
	}
	if feedback.Valid {
		value := feedback.String
		item.Feedback = &value
	}
	return item, nil
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, item Submission) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO submissions (id, owner_id, owner_email, title, code, language, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+submissionColumns,
		item.ID, item.OwnerID, item.OwnerEmail, item.Title, item.Code, item.Language, item.Description, item.Status,
	)
	created, err := scanSubmission(row)
	if err != nil {
		return Submission{}, writeError("insert submission", err)
	}
	return created, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, id)
	item, err := scanSubmission(row)
	if err != nil {
		return Submission{}, readError("get submission", err)
	}
	return item, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func (s *PostgresStore) GetSubmissionsByIDs(ctx context.Context, ids []string) ([]Submission, error) {
	if len(ids) == 0 {
		return []Submission{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get submissions by ids: %w", err)
	}
	return collectSubmissions(rows)
}

func (s *PostgresStore) SearchSubmissions(ctx context.Context, text string, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(text) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\' OR code ILIKE $1 ESCAPE '\'
		ORDER BY
			CASE
				WHEN title ILIKE $1 ESCAPE '\' THEN 0
				WHEN description ILIKE $1 ESCAPE '\' THEN 1
				ELSE 2
			END,
			created_at DESC, id DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func collectSubmissions(rows *sql.Rows) ([]Submission, error) {
	defer rows.Close()
	items := make([]Submission, 0)
	for rows.Next() {
		item, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateSubmissionCode(ctx context.Context, id, code string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE submissions SET code=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+submissionColumns, id, code)
	item, err := scanSubmission(row)
	if err != nil {
		return Submission{}, readError("update submission code", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateSubmissionDescription(ctx context.Context, id, description string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE submissions SET description=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+submissionColumns, id, description)
	item, err := scanSubmission(row)
	if err != nil {
		return Submission{}, readError("update submission description", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, id, status string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE submissions SET status=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+submissionColumns, id, status)
	item, err := scanSubmission(row)
	if err != nil {
		return Submission{}, readError("update submission status", err)
	}
	return item, nil
}

// UpdateSubmissionDecision overwrites status and feedback together. A nil
// feedback clears any previous decision text.
func (s *PostgresStore) UpdateSubmissionDecision(ctx context.Context, id, status string, feedback *string) (Submission, error) {
	var value sql.NullString
	if feedback != nil {
		value = sql.NullString{String: *feedback, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE submissions SET status=$2, feedback=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+submissionColumns, id, status, value)
	item, err := scanSubmission(row)
	if err != nil {
		return Submission{}, readError("update submission decision", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteSubmission(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return requireAffected("delete submission", result)
}

const commentColumns = `id, submission_id, author_id, author_email, body, line_number, created_at, updated_at`

func scanComment(row rowScanner) (Comment, error) {
	var item Comment
	var line sql.NullInt64
	err := row.Scan(
		&item.ID,
		&item.SubmissionID,
		&item.AuthorID,
		&item.AuthorEmail,
		&item.Body,
		&line,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	if line.Valid {
		value := int(line.Int64)
		item.LineNumber = &value
	}
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (Comment, error) {
	var line sql.NullInt64
	if item.LineNumber != nil {
		line = sql.NullInt64{Int64: int64(*item.LineNumber), Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, submission_id, author_id, author_email, body, line_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+commentColumns,
		item.ID, item.SubmissionID, item.AuthorID, item.AuthorEmail, item.Body, line,
	)
	created, err := scanComment(row)
	if err != nil {
		return Comment{}, writeError("insert comment", err)
	}
	return created, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id)
	item, err := scanComment(row)
	if err != nil {
		return Comment{}, readError("get comment", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateCommentBody(ctx context.Context, id, body string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE comments SET body=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+commentColumns, id, body)
	item, err := scanComment(row)
	if err != nil {
		return Comment{}, readError("update comment", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return requireAffected("delete comment", result)
}

func (s *PostgresStore) ListComments(ctx context.Context, submissionID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE submission_id=$1
		ORDER BY created_at ASC, id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// UpsertVote creates or replaces the single vote row for (comment, voter).
func (s *PostgresStore) UpsertVote(ctx context.Context, commentID, voterID string, value int) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_votes (comment_id, voter_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (comment_id, voter_id)
		DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, commentID, voterID, value); err != nil {
		return writeError("upsert comment vote", err)
	}
	return nil
}

func (s *PostgresStore) DeleteVote(ctx context.Context, commentID, voterID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_votes
		WHERE comment_id=$1 AND voter_id=$2
	`, commentID, voterID); err != nil {
		return fmt.Errorf("delete comment vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, commentIDs []string) ([]Vote, error) {
	if len(commentIDs) == 0 {
		return []Vote{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT comment_id, voter_id, value, created_at
		FROM comment_votes
		WHERE comment_id = ANY($1)
	`, commentIDs)
	if err != nil {
		return nil, fmt.Errorf("list comment votes: %w", err)
	}
	defer rows.Close()

	items := make([]Vote, 0)
	for rows.Next() {
		var item Vote
		if err := rows.Scan(&item.CommentID, &item.VoterID, &item.Value, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment vote: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment votes: %w", err)
	}
	return items, nil
}

// ToggleReaction removes the reaction when present and inserts it otherwise.
// It reports whether the reaction is on after the call.
func (s *PostgresStore) ToggleReaction(ctx context.Context, item Reaction) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_reactions
		WHERE comment_id=$1 AND user_id=$2 AND emoji=$3
	`, item.CommentID, item.UserID, item.Emoji)
	if err != nil {
		return false, fmt.Errorf("delete comment reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment reaction rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_reactions (id, comment_id, user_id, user_email, emoji)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.CommentID, item.UserID, item.UserEmail, item.Emoji); err != nil {
		return false, writeError("insert comment reaction", err)
	}
	return true, nil
}

func (s *PostgresStore) ListReactionCounts(ctx context.Context, commentID string) ([]ReactionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emoji, COUNT(*)::int AS total
		FROM comment_reactions
		WHERE comment_id=$1
		GROUP BY emoji
		ORDER BY total DESC, emoji ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment reactions: %w", err)
	}
	defer rows.Close()

	items := make([]ReactionCount, 0)
	for rows.Next() {
		var item ReactionCount
		if err := rows.Scan(&item.Emoji, &item.Count); err != nil {
			return nil, fmt.Errorf("scan comment reaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment reactions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, message, type, is_read)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.RecipientID, item.Message, item.Type, item.Read); err != nil {
		return writeError("insert notification", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, message, type, is_read, created_at
		FROM notifications
		WHERE recipient_id=$1
		ORDER BY created_at DESC, id DESC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.RecipientID, &item.Message, &item.Type, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE
		WHERE recipient_id=$1 AND is_read=FALSE
	`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows: %w", err)
	}
	return affected, nil
}

// FindIdentityByEmail looks the address up across submission and comment
// authorship, preferring the most recent record.
func (s *PostgresStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	var item Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email FROM (
			SELECT owner_id AS id, owner_email AS email, created_at
			FROM submissions
			WHERE lower(owner_email) = lower($1)
			UNION ALL
			SELECT author_id, author_email, created_at
			FROM comments
			WHERE lower(author_email) = lower($1)
		) known
		ORDER BY created_at DESC
		LIMIT 1
	`, email).Scan(&item.ID, &item.Email)
	if err != nil {
		return Identity{}, readError("find identity by email", err)
	}
	return item, nil
}

func (s *PostgresStore) CountSubmissionsByOwner(ctx context.Context) ([]AuthorCount, error) {
	return s.authorCounts(ctx, "count submissions by owner", `
		SELECT owner_id, MAX(owner_email), COUNT(*)::int
		FROM submissions
		GROUP BY owner_id
	`)
}

func (s *PostgresStore) CountCommentsByAuthor(ctx context.Context) ([]AuthorCount, error) {
	return s.authorCounts(ctx, "count comments by author", `
		SELECT author_id, MAX(author_email), COUNT(*)::int
		FROM comments
		GROUP BY author_id
	`)
}

func (s *PostgresStore) CountReactionsReceived(ctx context.Context) ([]AuthorCount, error) {
	return s.authorCounts(ctx, "count reactions received", `
		SELECT c.author_id, MAX(c.author_email), COUNT(r.id)::int
		FROM comment_reactions r
		JOIN comments c ON c.id = r.comment_id
		GROUP BY c.author_id
	`)
}

func (s *PostgresStore) authorCounts(ctx context.Context, op, query string) ([]AuthorCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]AuthorCount, 0)
	for rows.Next() {
		var item AuthorCount
		if err := rows.Scan(&item.ID, &item.Email, &item.Count); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s iterate: %w", op, err)
	}
	return items, nil
}

func (s *PostgresStore) SubmissionStatsFor(ctx context.Context, ownerID string) (SubmissionStats, error) {
	var stats SubmissionStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int, COUNT(*) FILTER (WHERE status=$2)::int
		FROM submissions
		WHERE owner_id=$1
	`, ownerID, StatusApproved).Scan(&stats.SubmissionsCount, &stats.ApprovedCount)
	if err != nil {
		return SubmissionStats{}, fmt.Errorf("submission stats: %w", err)
	}
	return stats, nil
}

const attachmentColumns = `id, submission_id, uploader_id, file_name, storage_path, content_type, size_bytes, created_at`

func scanAttachment(row rowScanner) (Attachment, error) {
	var item Attachment
	err := row.Scan(
		&item.ID,
		&item.SubmissionID,
		&item.UploaderID,
		&item.FileName,
		&item.StoragePath,
		&item.ContentType,
		&item.SizeBytes,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) (Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, submission_id, uploader_id, file_name, storage_path, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+attachmentColumns,
		item.ID, item.SubmissionID, item.UploaderID, item.FileName, item.StoragePath, item.ContentType, item.SizeBytes,
	)
	created, err := scanAttachment(row)
	if err != nil {
		return Attachment{}, writeError("insert attachment", err)
	}
	return created, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id string) (Attachment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=$1`, id)
	item, err := scanAttachment(row)
	if err != nil {
		return Attachment{}, readError("get attachment", err)
	}
	return item, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, submissionID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE submission_id=$1
		ORDER BY created_at ASC, id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		item, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return requireAffected("delete attachment", result)
}

func readError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func writeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(op string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
