package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRoleConstants(t *testing.T) {
	assert.Equal(t, "user", string(RoleUser))
	assert.Equal(t, "assistant", string(RoleAssistant))
	assert.True(t, RoleUser.IsValid())
	assert.True(t, RoleAssistant.IsValid())
	assert.False(t, Role("system").IsValid())
}

func TestTitleFromMessage(t *testing.T) {
	t.Run("short message is kept verbatim", func(t *testing.T) {
		assert.Equal(t, "What is the remote work policy?", TitleFromMessage("What is the remote work policy?"))
	})

	t.Run("exactly fifty characters is not truncated", func(t *testing.T) {
		msg := strings.Repeat("a", TitleMaxChars)
		assert.Equal(t, msg, TitleFromMessage(msg))
	})

	t.Run("long message is truncated with ellipsis", func(t *testing.T) {
		msg := "How many vacation days do new employees receive during their first year of employment?"
		title := TitleFromMessage(msg)

		assert.LessOrEqual(t, utf8.RuneCountInString(title), TitleMaxChars)
		assert.True(t, strings.HasSuffix(title, "..."))
		assert.True(t, strings.HasPrefix(msg, strings.TrimSuffix(title, "...")))
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		msg := strings.Repeat("é", 60)
		title := TitleFromMessage(msg)

		assert.Equal(t, TitleMaxChars, utf8.RuneCountInString(title))
		assert.True(t, utf8.ValidString(title))
	})

	t.Run("surrounding whitespace is dropped", func(t *testing.T) {
		assert.Equal(t, "Hello there", TitleFromMessage("  Hello\n there  "))
	})
}
