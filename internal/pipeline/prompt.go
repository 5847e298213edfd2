package pipeline

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/grounding"
	"github.com/hyperjump/kotae/internal/models"
)

const systemPromptTemplate = `You are %s, a governance-first assistant for %s.

Hard rules (must follow exactly):
1) Use ONLY the provided tenant knowledge chunks as your source of truth.
2) Every factual claim MUST end with a citation in this exact format: [document_id:chunk_id]
3) If the answer is not present in the chunks, respond exactly:
%s
4) Do NOT guess. Do NOT use outside knowledge. Do NOT invent citations.
5) Conversation history is only context; it is NOT a source of truth. Do not cite history.

Be concise, professional, and helpful.`

// SystemPrompt returns the cite-or-refuse instructions for the given persona.
func SystemPrompt(botName, companyName string) string {
	return fmt.Sprintf(systemPromptTemplate, botName, companyName, grounding.RefusalSentence)
}

// UserPrompt renders history, the question and the labelled chunks.
func UserPrompt(question string, chunks []models.RetrievedChunk, history []models.ConversationTurn, knownName string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(formatHistory(history))
	if knownName != "" {
		fmt.Fprintf(&b, "\n\nThe user's preferred name is %s. Address them by it when natural.", knownName)
	}
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nTenant knowledge chunks (use only this):\n")
	b.WriteString(formatChunks(chunks))
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func formatHistory(turns []models.ConversationTurn) string {
	if len(turns) == 0 {
		return "(no prior messages)"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "Assistant"
		switch t.Role {
		case models.RoleUser:
			speaker = "User"
		case models.RoleAgent:
			speaker = "Agent"
		}
		lines = append(lines, speaker+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func formatChunks(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "(no context)"
	}
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("[document_id=%s chunk_id=%s chunk_index=%d]\n%s",
			c.DocumentID, c.ChunkID, c.ChunkIndex, c.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
