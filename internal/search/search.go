// Package search finds submissions by case-insensitive substring and
// reports where each one matched.
package search

import (
	"unicode"

	"codecollab/api/internal/store"
)

// Field names the submission attribute a query matched, in priority order.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCode        Field = "code"
)

const snippetRadius = 50

var fieldPriority = map[Field]int{FieldTitle: 0, FieldDescription: 1, FieldCode: 2}

type Result struct {
	Submission store.Submission
	Field      Field
	Snippet    string
}

type Query struct {
	Text  string
	Limit int
}

type Response struct {
	Results []Result
	Query   string
	Source  string
}

// SubmissionRecord is what the external index stores for a submission.
type SubmissionRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Language    string `json:"language"`
	Status      string `json:"status"`
	OwnerEmail  string `json:"ownerEmail"`
}

func RecordFor(item store.Submission) SubmissionRecord {
	return SubmissionRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Code:        item.Code,
		Language:    item.Language,
		Status:      item.Status,
		OwnerEmail:  item.OwnerEmail,
	}
}

// Match checks title, then description, then code for query and returns
// the first field containing it with a snippet around the first occurrence.
func Match(item store.Submission, query string) (Result, bool) {
	needle := []rune(query)
	if len(needle) == 0 {
		return Result{}, false
	}
	fields := []struct {
		field Field
		text  string
	}{
		{FieldTitle, item.Title},
		{FieldDescription, item.Description},
		{FieldCode, item.Code},
	}
	for _, f := range fields {
		hay := []rune(f.text)
		at := indexFold(hay, needle)
		if at < 0 {
			continue
		}
		return Result{Submission: item, Field: f.field, Snippet: snippet(hay, at, len(needle))}, true
	}
	return Result{}, false
}

// snippet returns hay[at-50 : at+length+50] clamped to bounds, with an
// ellipsis on each side that was cut.
func snippet(hay []rune, at, length int) string {
	start := at - snippetRadius
	if start < 0 {
		start = 0
	}
	end := at + length + snippetRadius
	if end > len(hay) {
		end = len(hay)
	}
	out := string(hay[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(hay) {
		out += "…"
	}
	return out
}

func indexFold(hay, needle []rune) int {
	if len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j, r := range needle {
			if unicode.ToLower(hay[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
