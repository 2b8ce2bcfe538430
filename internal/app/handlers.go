package app

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxMultipartOverhead = 1 << 20

func decodeBody(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, validationError(name+" must be an integer", map[string]any{"field": name}))
		return 0, false
	}
	return value, true
}

func (s *HTTPServer) handleListSubmissions(c *gin.Context) {
	items, err := s.service.ListSubmissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, submissionPayload(item))
	}
	writeJSON(c, http.StatusOK, gin.H{"submissions": payload})
}

func (s *HTTPServer) handleCreateSubmission(c *gin.Context) {
	var body struct {
		Title       string `json:"title"`
		Code        string `json:"code"`
		Language    string `json:"language"`
		Description string `json:"description"`
	}
	if !decodeBody(c, &body) {
		return
	}
	created, err := s.service.CreateSubmission(c.Request.Context(), callerFrom(c), SubmissionInput{
		Title:       body.Title,
		Code:        body.Code,
		Language:    body.Language,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, submissionPayload(created))
}

func (s *HTTPServer) handleSearchSubmissions(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	response, err := s.service.SearchSubmissions(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	results := make([]map[string]any, 0, len(response.Results))
	for _, result := range response.Results {
		results = append(results, map[string]any{
			"submission": submissionPayload(result.Submission),
			"field":      string(result.Field),
			"snippet":    result.Snippet,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{
		"results": results,
		"query":   response.Query,
		"source":  response.Source,
	})
}

func (s *HTTPServer) handleGetSubmission(c *gin.Context) {
	item, err := s.service.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, submissionPayload(item))
}

func (s *HTTPServer) handleUpdateCode(c *gin.Context) {
	var body struct {
		Code *string `json:"code"`
	}
	if !decodeBody(c, &body) {
		return
	}
	if body.Code == nil {
		respondError(c, validationError("code is required", map[string]any{"field": "code"}))
		return
	}
	s.updateField(c, "code", *body.Code)
}

func (s *HTTPServer) handleUpdateDescription(c *gin.Context) {
	var body struct {
		Description *string `json:"description"`
	}
	if !decodeBody(c, &body) {
		return
	}
	if body.Description == nil {
		respondError(c, validationError("description is required", map[string]any{"field": "description"}))
		return
	}
	s.updateField(c, "description", *body.Description)
}

func (s *HTTPServer) updateField(c *gin.Context, field, value string) {
	updated, err := s.service.UpdateSubmissionField(c.Request.Context(), callerFrom(c), c.Param("id"), field, value)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, submissionPayload(updated))
}

func (s *HTTPServer) handleTransitionStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(c, &body) {
		return
	}
	updated, err := s.service.TransitionStatus(c.Request.Context(), callerFrom(c), c.Param("id"), body.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, submissionPayload(updated))
}

func (s *HTTPServer) handleDecide(c *gin.Context) {
	var body struct {
		Outcome  string  `json:"outcome"`
		Feedback *string `json:"feedback"`
	}
	if !decodeBody(c, &body) {
		return
	}
	updated, err := s.service.Decide(c.Request.Context(), callerFrom(c), c.Param("id"), body.Outcome, body.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, submissionPayload(updated))
}

func (s *HTTPServer) handleDeleteSubmission(c *gin.Context) {
	if err := s.service.DeleteSubmission(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) handleListRevisions(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	commits, err := s.service.ListRevisions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		payload = append(payload, map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"revisions": payload})
}

func (s *HTTPServer) handleListComments(c *gin.Context) {
	items, err := s.service.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, commentPayload(item))
	}
	writeJSON(c, http.StatusOK, gin.H{"comments": payload})
}

func (s *HTTPServer) handleAddComment(c *gin.Context) {
	var body struct {
		Body       string `json:"body"`
		LineNumber *int   `json:"lineNumber"`
	}
	if !decodeBody(c, &body) {
		return
	}
	created, err := s.service.AddComment(c.Request.Context(), callerFrom(c), c.Param("id"), body.Body, body.LineNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, commentPayload(created))
}

func (s *HTTPServer) handleEditComment(c *gin.Context) {
	var body struct {
		Body string `json:"body"`
	}
	if !decodeBody(c, &body) {
		return
	}
	updated, err := s.service.EditComment(c.Request.Context(), callerFrom(c), c.Param("id"), body.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, commentPayload(updated))
}

func (s *HTTPServer) handleDeleteComment(c *gin.Context) {
	if err := s.service.DeleteComment(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) handleTallyBatch(c *gin.Context) {
	tallies, err := s.service.TallyBatch(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tallies)
}

func (s *HTTPServer) handleTally(c *gin.Context) {
	tally, err := s.service.Tally(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tally)
}

func (s *HTTPServer) handleUpsertVote(c *gin.Context) {
	var body struct {
		Value *int `json:"value"`
	}
	if !decodeBody(c, &body) {
		return
	}
	if body.Value == nil {
		respondError(c, validationError("value is required", map[string]any{"field": "value"}))
		return
	}
	tally, err := s.service.UpsertVote(c.Request.Context(), callerFrom(c), c.Param("id"), *body.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, votePayload(tally))
}

func (s *HTTPServer) handleRemoveVote(c *gin.Context) {
	tally, err := s.service.RemoveVote(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, votePayload(tally))
}

func (s *HTTPServer) handleToggleReaction(c *gin.Context) {
	var body struct {
		Emoji string `json:"emoji"`
	}
	if !decodeBody(c, &body) {
		return
	}
	on, emoji, err := s.service.ToggleReaction(c.Request.Context(), callerFrom(c), c.Param("id"), body.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	toggled := "off"
	if on {
		toggled = "on"
	}
	writeJSON(c, http.StatusOK, gin.H{"toggled": toggled, "emoji": emoji})
}

func (s *HTTPServer) handleListReactions(c *gin.Context) {
	counts, err := s.service.ListReactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(counts))
	for _, count := range counts {
		payload = append(payload, map[string]any{"emoji": count.Emoji, "count": count.Count})
	}
	writeJSON(c, http.StatusOK, gin.H{"reactions": payload})
}

func (s *HTTPServer) handleListAttachments(c *gin.Context) {
	views, err := s.service.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(views))
	for _, view := range views {
		payload = append(payload, attachmentPayload(view))
	}
	writeJSON(c, http.StatusOK, gin.H{"attachments": payload})
}

func (s *HTTPServer) handleUploadAttachment(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAttachmentBytes+maxMultipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "file exceeds the 10 MB limit", map[string]any{"field": "file", "maxBytes": MaxAttachmentBytes})
			return
		}
		respondError(c, validationError("multipart field \"file\" is required", map[string]any{"field": "file"}))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || normalizeContentType(contentType) == "application/octet-stream" {
		if guessed := mime.TypeByExtension(filepath.Ext(header.Filename)); guessed != "" {
			contentType = guessed
		}
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	created, err := s.service.UploadAttachment(c.Request.Context(), callerFrom(c), c.Param("id"), AttachmentUpload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, attachmentPayload(AttachmentView{Attachment: created}))
}

func (s *HTTPServer) handleDeleteAttachment(c *gin.Context) {
	if err := s.service.DeleteAttachment(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) handleLeaderboard(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	board, err := s.service.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, board)
}

func (s *HTTPServer) handleMyStats(c *gin.Context) {
	stats, err := s.service.MyStats(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, stats)
}

func (s *HTTPServer) handleListNotifications(c *gin.Context) {
	items, err := s.service.ListNotifications(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, map[string]any{
			"id":          item.ID,
			"recipientId": item.RecipientID,
			"message":     item.Message,
			"type":        item.Type,
			"read":        item.Read,
			"createdAt":   item.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": payload})
}

func (s *HTTPServer) handleMarkNotificationsRead(c *gin.Context) {
	updated, err := s.service.MarkAllNotificationsRead(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"updated": updated})
}

func (s *HTTPServer) handleReview(c *gin.Context) {
	var body struct {
		SubmissionID string `json:"submissionId"`
	}
	if !decodeBody(c, &body) {
		return
	}
	review, err := s.service.ReviewCode(c.Request.Context(), body.SubmissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"review": review})
}

func (s *HTTPServer) handleSummarize(c *gin.Context) {
	var body struct {
		SubmissionID string `json:"submissionId"`
	}
	if !decodeBody(c, &body) {
		return
	}
	summary, err := s.service.SummarizeThread(c.Request.Context(), body.SubmissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"summary": summary})
}

func (s *HTTPServer) handleGenerateMeta(c *gin.Context) {
	var body struct {
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	if !decodeBody(c, &body) {
		return
	}
	meta, err := s.service.GenerateMeta(c.Request.Context(), body.Code, body.Language)
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, meta)
}
