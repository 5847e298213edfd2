// Package cli renders kotae command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/quota"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a --output flag value to a format.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes an ask response to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	status := "answered"
	if resp.Refused {
		status = "refused"
	}
	if resp.PolicyReason != "" {
		status += " (" + resp.PolicyReason + ")"
	}
	fmt.Fprintf(w, "Status: %s | Conversation: %s | Coverage: %d doc(s), %d chunk(s)\n",
		status, resp.ConversationID, resp.Coverage.DocCount, resp.Coverage.ChunkCount)
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w, "--- Citations ---")
		for _, c := range resp.Citations {
			fmt.Fprintf(w, "[%s:%s] chunk %d\n", c.DocumentID, c.ChunkID, c.ChunkIndex)
		}
	}
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "--- Sources ---")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "[%s:%s] %s\n", s.DocumentID, s.ChunkID, TruncateWords(utils.CollapseWhitespace(s.Text), 24))
		}
	}
	return nil
}

// WriteUsage writes a usage summary, with the quota status when known.
func WriteUsage(w io.Writer, summary *models.UsageSummary, status *quota.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			*models.UsageSummary
			Quota *quota.Status `json:"quota,omitempty"`
		}{summary, status})
	}
	fmt.Fprintf(w, "Last %d day(s): %d request(s), %d refused, %d token(s)\n",
		summary.WindowDays, summary.TotalRequests, summary.RefusedRequests, summary.TotalTokens)
	if summary.AvgLatencyMS != nil {
		fmt.Fprintf(w, "Average latency: %.0fms\n", *summary.AvgLatencyMS)
	}
	channels := make([]string, 0, len(summary.ByChannel))
	for ch := range summary.ByChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		fmt.Fprintf(w, "  %-10s %d\n", ch, summary.ByChannel[ch])
	}
	if status != nil {
		fmt.Fprintf(w, "Quota: %d/%d request(s) today, %d/%d token(s) this month\n",
			status.RequestsToday, status.DailyRequestLimit, status.TokensMonth, status.MonthlyTokenLimit)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
