package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// Extracted rule settings.
const (
	CredentialPattern = `(?i)\b(password|api\s*key|secret|token)\b`
	credentialMessage = "Credential-related requests are blocked by policy."
	prohibitedMessage = "This request is not allowed by your organization's policy."
	maxExtractedItems = 80
)

var (
	prohibitedHeadingRe = regexp.MustCompile(`(?i)\bprohibited\b|\bnot allowed\b|\bdisallowed\b`)
	sectionHeadingRe    = regexp.MustCompile(`^[A-Z][A-Za-z0-9\s&\-]{3,}:$`)
	bulletRe            = regexp.MustCompile(`^(?:-|•|\*|\d+\))\s+`)
)

// ExtractFromText builds a tenant policy from a policy document. Credential requests are
// always denied; bullet items listed under a "Prohibited", "Not allowed" or "Disallowed"
// heading become deny keywords, lowercased, de-duplicated and capped at 80.
func ExtractFromText(text string) models.TenantPolicy {
	rules := []models.PolicyRule{{
		Type:    models.RuleDenyRegex,
		Pattern: CredentialPattern,
		Message: credentialMessage,
	}}

	var keywords []string
	seen := make(map[string]struct{})
	inProhibited := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if prohibitedHeadingRe.MatchString(line) {
			inProhibited = true
			continue
		}
		if sectionHeadingRe.MatchString(line) {
			inProhibited = false
		}
		if !inProhibited || !bulletRe.MatchString(line) {
			continue
		}
		item := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
		if n := utf8.RuneCountInString(item); n < 3 || n > 80 {
			continue
		}
		item = strings.ToLower(item)
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		keywords = append(keywords, item)
	}
	if len(keywords) > maxExtractedItems {
		keywords = keywords[:maxExtractedItems]
	}
	if len(keywords) > 0 {
		rules = append(rules, models.PolicyRule{
			Type:     models.RuleDenyKeywords,
			Keywords: keywords,
			Message:  prohibitedMessage,
		})
	}
	return models.TenantPolicy{
		RefusalMessage: DefaultRefusal,
		Rules:          rules,
	}
}
