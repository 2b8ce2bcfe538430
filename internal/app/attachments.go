package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"codecollab/api/internal/blob"
	"codecollab/api/internal/rbac"
	"codecollab/api/internal/store"
	"codecollab/api/internal/util"
)

const (
	MaxAttachmentBytes = 10 << 20
	attachmentURLTTL   = 15 * time.Minute
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/png":         {},
	"image/jpeg":        {},
	"image/gif":         {},
	"image/webp":        {},
	"image/svg+xml":     {},
	"application/pdf":   {},
	"text/plain":        {},
	"text/markdown":     {},
	"text/csv":          {},
	"application/json":  {},
	"application/zip":   {},
	"application/x-tar": {},
	"application/gzip":  {},
}

type AttachmentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type AttachmentView struct {
	store.Attachment
	URL string
}

type attachmentLinker interface {
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

func normalizeContentType(value string) string {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mediaType
}

func (s *Service) UploadAttachment(ctx context.Context, caller Caller, submissionID string, upload AttachmentUpload) (store.Attachment, error) {
	name := strings.TrimSpace(upload.FileName)
	if name == "" {
		return store.Attachment{}, validationError("file name is required", map[string]any{"field": "file"})
	}
	contentType := normalizeContentType(upload.ContentType)
	if _, ok := allowedAttachmentTypes[contentType]; !ok {
		return store.Attachment{}, validationError(fmt.Sprintf("file type %q is not allowed", contentType), map[string]any{"field": "file"})
	}
	if upload.Size > MaxAttachmentBytes {
		return store.Attachment{}, domainError(http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "file exceeds the 10 MB limit", map[string]any{"field": "file", "maxBytes": MaxAttachmentBytes})
	}
	if s.blob == nil {
		return store.Attachment{}, dependencyError(http.StatusServiceUnavailable, "attachment storage is not configured")
	}

	submission, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Attachment{}, err
	}

	key := blob.ObjectKey(submission.ID, name)
	if err := s.blob.Put(ctx, key, contentType, upload.Size, upload.Body); err != nil {
		log.Printf("app: upload attachment %s: %v", key, err)
		return store.Attachment{}, dependencyError(http.StatusBadGateway, "attachment upload failed")
	}

	created, err := s.store.InsertAttachment(ctx, store.Attachment{
		ID:           util.NewID("att"),
		SubmissionID: submission.ID,
		UploaderID:   caller.UserID,
		FileName:     name,
		StoragePath:  key,
		ContentType:  contentType,
		SizeBytes:    upload.Size,
	})
	if err != nil {
		if removeErr := s.blob.Remove(ctx, key); removeErr != nil {
			log.Printf("app: remove orphaned blob %s: %v", key, removeErr)
		}
		return store.Attachment{}, lookupError(err, "submission")
	}
	return created, nil
}

// ListAttachments returns the attachments of a submission. URL is a
// short-lived download link when the blob store can sign one.
func (s *Service) ListAttachments(ctx context.Context, submissionID string) ([]AttachmentView, error) {
	if _, err := s.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	items, err := s.store.ListAttachments(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	linker, _ := s.blob.(attachmentLinker)
	views := make([]AttachmentView, 0, len(items))
	for _, item := range items {
		view := AttachmentView{Attachment: item}
		if linker != nil {
			url, err := linker.URL(ctx, item.StoragePath, attachmentURLTTL)
			if err != nil {
				log.Printf("app: sign attachment %s: %v", item.StoragePath, err)
			} else {
				view.URL = url
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteAttachment removes the record first. A failing blob removal is
// logged and otherwise ignored.
func (s *Service) DeleteAttachment(ctx context.Context, caller Caller, attachmentID string) error {
	item, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return lookupError(err, "attachment")
	}
	if err := requireRole(attachmentEntity(item), caller, rbac.RelationUploader); err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, item.ID); err != nil {
		return lookupError(err, "attachment")
	}
	if s.blob != nil {
		if err := s.blob.Remove(ctx, item.StoragePath); err != nil {
			log.Printf("app: remove blob %s: %v", item.StoragePath, err)
		}
	}
	return nil
}
