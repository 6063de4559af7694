package domain

import (
	"strings"
	"time"
)

// TitleMaxChars bounds conversation titles derived from the first message.
const TitleMaxChars = 50

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is a known value
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is an ordered thread of messages.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a conversation. Only assistant messages carry citations.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Citations      []Citation
	CreatedAt      time.Time
}

// Citation points an answer back at the chunk that supports it.
type Citation struct {
	Index        int     `json:"index"`
	DocumentID   string  `json:"document_id"`
	ChunkID      string  `json:"chunk_id"`
	DocName      string  `json:"doc_name"`
	SectionTitle *string `json:"section_title"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Snippet      string  `json:"snippet"`
}

// TitleFromMessage derives a conversation title from its first user message.
func TitleFromMessage(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	runes := []rune(title)
	if len(runes) <= TitleMaxChars {
		return title
	}
	return strings.TrimRight(string(runes[:TitleMaxChars-3]), " ") + "..."
}
