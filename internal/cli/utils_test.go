package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/quota"
)

func sampleAnswer() *models.AskResponse {
	return &models.AskResponse{
		AnswerResult: models.AnswerResult{
			Answer:    "Refunds are accepted within 30 days. [d1:c7]",
			Citations: []models.Citation{{DocumentID: "d1", ChunkID: "c7", ChunkIndex: 2}},
			Coverage:  models.Coverage{DocCount: 1, ChunkCount: 1},
		},
		ConversationID: "conv_abc",
		Sources: []models.RetrievedChunk{
			{DocumentID: "d1", ChunkID: "c7", ChunkIndex: 2, Text: "Refunds   are accepted\nwithin 30 days."},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.AskResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ConversationID != "conv_abc" || len(decoded.Citations) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteAnswer_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Refunds are accepted within 30 days. [d1:c7]",
		"Status: answered | Conversation: conv_abc",
		"[d1:c7] chunk 2",
		"[d1:c7] Refunds are accepted within 30 days.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAnswer_textRefused(t *testing.T) {
	resp := &models.AskResponse{
		AnswerResult: models.AnswerResult{
			Answer:       "Rate limit exceeded. Please retry shortly.",
			Refused:      true,
			Citations:    []models.Citation{},
			PolicyReason: "rate_limit:user",
		},
		ConversationID: "conv_x",
	}
	var buf bytes.Buffer
	_ = WriteAnswer(&buf, resp, OutputText)
	if !strings.Contains(buf.String(), "Status: refused (rate_limit:user)") {
		t.Errorf("got %q", buf.String())
	}
	if strings.Contains(buf.String(), "Citations") {
		t.Error("no citation section expected for a refusal")
	}
}

func TestWriteUsage(t *testing.T) {
	avg := 12.4
	summary := &models.UsageSummary{
		WindowDays:      30,
		TotalRequests:   3,
		TotalTokens:     420,
		AvgLatencyMS:    &avg,
		RefusedRequests: 1,
		ByChannel:       map[string]int{"embed": 1, "api": 2},
	}
	status := &quota.Status{RequestsToday: 3, DailyRequestLimit: 1000, TokensMonth: 420, MonthlyTokenLimit: 1000000}

	var buf bytes.Buffer
	if err := WriteUsage(&buf, summary, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Last 30 day(s): 3 request(s), 1 refused, 420 token(s)") {
		t.Errorf("summary line missing:\n%s", out)
	}
	if strings.Index(out, "api") > strings.Index(out, "embed") {
		t.Errorf("channels should be sorted:\n%s", out)
	}
	if !strings.Contains(out, "Quota: 3/1000 request(s) today") {
		t.Errorf("quota line missing:\n%s", out)
	}

	buf.Reset()
	if err := WriteUsage(&buf, summary, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total_requests"] != float64(3) {
		t.Errorf("total_requests = %v", decoded["total_requests"])
	}
	if _, ok := decoded["quota"]; ok {
		t.Error("quota should be omitted when unknown")
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
		{"single long", "word", 1, "word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWords(tt.s, tt.maxWords)
			if got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}
