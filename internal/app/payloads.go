package app

import (
	"codecollab/api/internal/render"
	"codecollab/api/internal/store"
)

func submissionPayload(item store.Submission) map[string]any {
	var feedback any
	if item.Feedback != nil {
		feedback = *item.Feedback
	}
	return map[string]any{
		"id":          item.ID,
		"ownerId":     item.OwnerID,
		"ownerEmail":  item.OwnerEmail,
		"title":       item.Title,
		"code":        item.Code,
		"language":    item.Language,
		"description": item.Description,
		"status":      item.Status,
		"feedback":    feedback,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func commentPayload(item store.Comment) map[string]any {
	var lineNumber any
	if item.LineNumber != nil {
		lineNumber = *item.LineNumber
	}
	return map[string]any{
		"id":           item.ID,
		"submissionId": item.SubmissionID,
		"authorId":     item.AuthorID,
		"authorEmail":  item.AuthorEmail,
		"body":         item.Body,
		"bodyHtml":     render.Markdown(item.Body),
		"lineNumber":   lineNumber,
		"createdAt":    item.CreatedAt,
		"updatedAt":    item.UpdatedAt,
	}
}

// votePayload is the response of a vote write: the caller's vote plus the
// refreshed counters.
func votePayload(tally Tally) map[string]any {
	return map[string]any{
		"vote":      tally.CallerVote,
		"net":       tally.Net,
		"upvotes":   tally.Upvotes,
		"downvotes": tally.Downvotes,
	}
}

func attachmentPayload(view AttachmentView) map[string]any {
	payload := map[string]any{
		"id":           view.ID,
		"submissionId": view.SubmissionID,
		"uploaderId":   view.UploaderID,
		"fileName":     view.FileName,
		"contentType":  view.ContentType,
		"sizeBytes":    view.SizeBytes,
		"createdAt":    view.CreatedAt,
	}
	if view.URL != "" {
		payload["url"] = view.URL
	}
	return payload
}
