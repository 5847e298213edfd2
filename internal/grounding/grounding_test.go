package grounding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/kotae/internal/models"
)

var retrieved = []models.RetrievedChunk{
	{DocumentID: "d1", ChunkID: "c1", ChunkIndex: 0, Text: "Refunds are accepted within 30 days."},
	{DocumentID: "d1", ChunkID: "c7", ChunkIndex: 6, Text: "Refunds within 30 days of purchase."},
	{DocumentID: "d2", ChunkID: "c3", ChunkIndex: 2, Text: "Shipping is free."},
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		answer string
		want   []CitationKey
	}{
		{"no citations", nil},
		{"A [d1:c1] B [d1:c1] C [d2:c3]", []CitationKey{{"d1", "c1"}, {"d2", "c3"}}},
		{"[d2:c3][d1:c1]", []CitationKey{{"d2", "c3"}, {"d1", "c1"}}},
		{"chunk ids may hold colons [d1:c:7]", []CitationKey{{"d1", "c:7"}}},
		{"spaces break tokens [d1: c1] [d 1:c1]", nil},
		{"nested [[d1:c1]]", []CitationKey{{"d1", "c1"}}},
		{"empty parts [:c1] [d1:]", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCitations(tt.answer), tt.answer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		wantOK   bool
		wantKeys []CitationKey
	}{
		{"grounded", "Refunds within 30 days. [d1:c7]", true, []CitationKey{{"d1", "c7"}}},
		{"refusal exempt", "  " + RefusalSentence + "\n", true, nil},
		{"refusal with extra text", RefusalSentence + " Sorry.", false, nil},
		{"no citation", "Refunds within 30 days.", false, nil},
		{"unknown pair", "See [d9:c2]", false, []CitationKey{{"d9", "c2"}}},
		{"one unknown spoils all", "A [d1:c1] B [d1:c9]", false, []CitationKey{{"d1", "c1"}, {"d1", "c9"}}},
		{"cross-matched pair", "See [d2:c1]", false, []CitationKey{{"d2", "c1"}}},
		{"empty", "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, keys := Validate(tt.answer, retrieved)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestResolve(t *testing.T) {
	heal := Options{HealWithTopChunk: true}
	tests := []struct {
		name   string
		answer string
		opts   Options
		want   Resolution
	}{
		{
			"grounded answer unchanged",
			"Refunds within 30 days. [d1:c7]", heal,
			Resolution{Answer: "Refunds within 30 days. [d1:c7]", Keys: []CitationKey{{"d1", "c7"}}},
		},
		{
			"uncited answer healed with top chunk",
			"Refunds within 30 days.", heal,
			Resolution{Answer: "Refunds within 30 days. [d1:c1]", Keys: []CitationKey{{"d1", "c1"}}, Reason: ReasonHealed},
		},
		{
			"healing disabled",
			"Refunds within 30 days.", Options{},
			Resolution{Answer: RefusalSentence, Refused: true, Reason: ReasonFailed},
		},
		{
			"fabricated citation is never healed",
			"See [d9:c2]", heal,
			Resolution{Answer: RefusalSentence, Refused: true, Reason: ReasonFailed},
		},
		{
			"empty answer",
			"   ", heal,
			Resolution{Answer: RefusalSentence, Refused: true, Reason: ReasonFailed},
		},
		{
			"model refusal",
			RefusalSentence, heal,
			Resolution{Answer: RefusalSentence, Refused: true},
		},
		{
			"too long even when grounded",
			strings.Repeat("x", 41) + " [d1:c1]", Options{MaxAnswerChars: 40, HealWithTopChunk: true},
			Resolution{Answer: RefusalSentence, Refused: true, Reason: ReasonAnswerTooLong},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.answer, retrieved, tt.opts))
		})
	}
}

func TestResolve_NeverReturnsChunkText(t *testing.T) {
	for _, answer := range []string{"", "See [d9:c2]", "plain", strings.Repeat("y", 5000)} {
		res := Resolve(answer, retrieved, Options{HealWithTopChunk: true})
		for _, c := range retrieved {
			assert.NotEqual(t, c.Text, strings.TrimSpace(res.Answer))
		}
		if res.Answer != RefusalSentence {
			ok, _ := Validate(res.Answer, retrieved)
			assert.True(t, ok, "non-refusal answers must validate: %q", res.Answer)
		}
	}
}

func TestResolve_DefaultLimit(t *testing.T) {
	res := Resolve(strings.Repeat("a", DefaultMaxAnswerChars)+" [d1:c1]", retrieved, Options{})
	assert.Equal(t, ReasonAnswerTooLong, res.Reason)
}

func TestAssemble(t *testing.T) {
	got := Assemble([]CitationKey{{"d2", "c3"}, {"d9", "c9"}, {"d1", "c7"}}, retrieved)
	assert.Equal(t, []models.Citation{
		{DocumentID: "d2", ChunkID: "c3", ChunkIndex: 2},
		{DocumentID: "d1", ChunkID: "c7", ChunkIndex: 6},
	}, got)
	assert.Empty(t, Assemble(nil, retrieved))
}

func TestStripCitations(t *testing.T) {
	assert.Equal(t, "Refunds within 30 days. Shipping is free.",
		StripCitations("Refunds within 30 days. [d1:c7]\n\nShipping is free. [d2:c3]"))
	assert.Equal(t, "no tags", StripCitations("  no   tags "))
	assert.Equal(t, "Open daily [Note: see below]. Closed on holidays.",
		StripCitations("Open daily [Note: see below]. [d1:c1] Closed on holidays."))
	assert.Equal(t, "See [section 2: returns] for details.",
		StripCitations("See [section 2: returns] for details. [doc_1:chunk_1]"))
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal(RefusalSentence))
	assert.True(t, IsRefusal(" "+RefusalSentence+" "))
	assert.False(t, IsRefusal(strings.ToLower(RefusalSentence)))
}

func BenchmarkResolve(b *testing.B) {
	answer := strings.Repeat("Refunds are accepted within 30 days of purchase. ", 20) + "[d1:c7] [d2:c3]"
	opts := Options{HealWithTopChunk: true}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Resolve(answer, retrieved, opts)
	}
}
