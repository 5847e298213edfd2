package policy

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Document stage reasons and messages.
const (
	ReasonInternalOnly    = "doc_visibility:" + models.VisibilityInternalOnly
	reasonTagPrefix       = "doc_tag:"
	MessageInternalOnly   = "This information is restricted to admins."
	MessageRestrictedTags = "This information is restricted based on document access rules."
)

// DocumentFilter decides whether a requester may receive an answer built from a set of
// documents.
type DocumentFilter struct {
	privilegedRole string
	restrictedTags []string
}

// NewDocumentFilter creates a filter. Documents tagged with any of restrictedTags, or
// marked internal_only, are only visible to privilegedRole.
func NewDocumentFilter(privilegedRole string, restrictedTags []string) *DocumentFilter {
	tags := make([]string, 0, len(restrictedTags))
	for _, t := range restrictedTags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return &DocumentFilter{
		privilegedRole: strings.ToLower(strings.TrimSpace(privilegedRole)),
		restrictedTags: tags,
	}
}

// Evaluate is all-or-nothing: the first restricted document, in the given order, refuses
// the whole answer. Visibility is checked before tags for each document.
func (f *DocumentFilter) Evaluate(documents []*models.Document, role string) models.PolicyDecision {
	if f.privilegedRole != "" && strings.ToLower(strings.TrimSpace(role)) == f.privilegedRole {
		return models.Allow()
	}
	for _, d := range documents {
		if d == nil {
			continue
		}
		if strings.ToLower(d.Visibility) == models.VisibilityInternalOnly {
			return models.Refuse(ReasonInternalOnly, MessageInternalOnly)
		}
		if tag, ok := f.restrictedTag(d.Tags); ok {
			return models.Refuse(reasonTagPrefix+tag, MessageRestrictedTags)
		}
	}
	return models.Allow()
}

func (f *DocumentFilter) restrictedTag(tags []string) (string, bool) {
	for _, restricted := range f.restrictedTags {
		for _, t := range tags {
			if strings.ToLower(strings.TrimSpace(t)) == restricted {
				return restricted, true
			}
		}
	}
	return "", false
}

// BackingDocumentIDs returns the distinct document IDs of chunks in first-appearance order.
func BackingDocumentIDs(chunks []models.RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var ids []string
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}
