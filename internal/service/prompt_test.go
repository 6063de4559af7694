package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/stretchr/testify/assert"
)

func historyOf(n int) []domain.Message {
	msgs := make([]domain.Message, 0, n)
	for i := 1; i <= n; i++ {
		role := domain.RoleUser
		if i%2 == 0 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.Message{Role: role, Content: fmt.Sprintf("message-%02d", i)})
	}
	return msgs
}

func TestContextAssembler_RendersNumberedSources(t *testing.T) {
	assembler := NewContextAssembler(5)

	prompt := assembler.Assemble(newTestSources(), nil, "How many vacation days do I get?")

	assert.Contains(t, prompt.User, "[1] (doc=handbook.pdf, section=\"2. Vacation Policy\", lines=3-5)\nFull-time employees receive 20 days")
	assert.Contains(t, prompt.User, "[2] (doc=remote.txt, section=\"\", lines=40-42)\napproval. All remote work")
	assert.Contains(t, prompt.User, "[3] (doc=handbook.pdf, section=\"BENEFITS OVERVIEW\", lines=80-81)")
	assert.True(t, strings.HasSuffix(prompt.User, "USER: How many vacation days do I get?"))
	assert.NotContains(t, prompt.User, "Conversation history:")
}

func TestContextAssembler_InstructsCitationsAndFallback(t *testing.T) {
	prompt := NewContextAssembler(5).Assemble(newTestSources(), nil, "q")

	assert.Contains(t, prompt.System, "[1]")
	assert.Contains(t, prompt.System, "cite")
	assert.Contains(t, prompt.User, NotFoundAnswer)
	assert.Contains(t, prompt.User, "Do not make claims the sources do not support.")
}

func TestContextAssembler_KeepsLastMessagesOldestFirst(t *testing.T) {
	assembler := NewContextAssembler(5)

	prompt := assembler.Assemble(newTestSources(), historyOf(7), "next question")

	assert.NotContains(t, prompt.User, "message-01")
	assert.NotContains(t, prompt.User, "message-02")
	assert.Contains(t, prompt.User, "USER: message-03")
	assert.Contains(t, prompt.User, "ASSISTANT: message-04")

	first := strings.Index(prompt.User, "message-03")
	last := strings.Index(prompt.User, "message-07")
	assert.Less(t, first, last)

	historyAt := strings.Index(prompt.User, "Conversation history:")
	contextAt := strings.Index(prompt.User, "Context (")
	queryAt := strings.LastIndex(prompt.User, "USER: next question")
	assert.Less(t, historyAt, contextAt)
	assert.Less(t, contextAt, queryAt)
}

func TestContextAssembler_ZeroHistoryLength(t *testing.T) {
	prompt := NewContextAssembler(0).Assemble(newTestSources(), historyOf(3), "q")

	assert.NotContains(t, prompt.User, "Conversation history:")
	assert.NotContains(t, prompt.User, "message-01")
}

func TestContextAssembler_NoSources(t *testing.T) {
	prompt := NewContextAssembler(5).Assemble(NewSourceList(nil), nil, "anything?")

	assert.NotContains(t, prompt.User, "[1] (")
	assert.True(t, strings.HasSuffix(prompt.User, "USER: anything?"))
}
