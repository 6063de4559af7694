package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/citadoc/internal/domain"
)

// NotFoundAnswer is the reply the model is told to give when the sources do
// not contain the answer.
const NotFoundAnswer = "I could not find this information in the provided documents."

const generationSystemMessage = "You are a helpful assistant that answers questions based on the provided documents. " +
	"When you use information from the numbered sources [1], [2], [3], etc. provided in the context, " +
	"you MUST cite them by including the source number in square brackets like [1] or [2] in your answer. " +
	"Only cite sources that directly support your statements. " +
	"Never state anything that the sources do not support."

// Prompt is a generation request: a system message and the user content.
type Prompt struct {
	System string
	User   string
}

// ContextAssembler renders sources, recent history and the query into a prompt.
type ContextAssembler struct {
	historyLength int
}

func NewContextAssembler(historyLength int) *ContextAssembler {
	if historyLength < 0 {
		historyLength = 0
	}
	return &ContextAssembler{historyLength: historyLength}
}

// Assemble builds the prompt. history must be in chronological order; only
// its last historyLength messages are used.
func (a *ContextAssembler) Assemble(sources SourceList, history []domain.Message, query string) Prompt {
	if len(history) > a.historyLength {
		history = history[len(history)-a.historyLength:]
	}

	var b strings.Builder
	b.WriteString("You are an AI assistant that answers strictly from the provided documents.\n")
	b.WriteString("IMPORTANT: When answering, cite the sources you use by referencing their numbers (e.g., [1], [2]).\n")
	b.WriteString("Only cite sources that directly support your answer. Do not make claims the sources do not support.\n")
	b.WriteString("If the answer is not in the context, say:\n")
	fmt.Fprintf(&b, "%q\n\n", NotFoundAnswer)

	if len(history) > 0 {
		b.WriteString("Conversation history:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(msg.Role), msg.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Context (each block labeled with the source document, section title, and line range):\n\n")
	for i, src := range sources.Items() {
		section := ""
		if src.SectionTitle != nil {
			section = *src.SectionTitle
		}
		fmt.Fprintf(&b, "[%d] (doc=%s, section=%q, lines=%d-%d)\n", i+1, src.DocumentName, section, src.StartLine, src.EndLine)
		b.WriteString(strings.TrimSpace(src.Content))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "USER: %s", query)

	return Prompt{
		System: generationSystemMessage,
		User:   b.String(),
	}
}

func roleLabel(role domain.Role) string {
	if role == domain.RoleAssistant {
		return "ASSISTANT"
	}
	return "USER"
}
