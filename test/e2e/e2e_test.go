//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handbook = `EMPLOYEE HANDBOOK

1. Remote Work Policy
Employees may work remotely up to three days per week with manager approval.
Remote days must be recorded in the attendance calendar.

2. Expense Reimbursement
Submit receipts within thirty days through the finance portal.
Reimbursements are paid with the next monthly payroll.

3. Vacation Leave
Full-time staff accrue twenty vacation days per year.
Unused vacation days expire at the end of March.
`

type uploadResult struct {
	DocumentID     string `json:"document_id"`
	DocumentName   string `json:"document_name"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	ChunkCount     int    `json:"chunk_count"`
}

type documentResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	LineCount   int    `json:"line_count"`
	ChunkCount  int    `json:"chunk_count"`
}

type chunkResult struct {
	ID           string  `json:"id"`
	Index        int     `json:"index"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	SectionTitle *string `json:"section_title"`
	Content      string  `json:"content"`
}

type citationResult struct {
	Index        int     `json:"index"`
	DocumentID   string  `json:"document_id"`
	ChunkID      string  `json:"chunk_id"`
	DocName      string  `json:"doc_name"`
	SectionTitle *string `json:"section_title"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Snippet      string  `json:"snippet"`
}

type queryResult struct {
	ConversationID string           `json:"conversation_id"`
	Answer         string           `json:"answer"`
	Citations      []citationResult `json:"citations"`
}

func uploadHandbook(t *testing.T, env *E2ETestEnv) uploadResult {
	t.Helper()
	resp, err := env.Upload(http.MethodPost, "/documents", "handbook.txt", []byte(handbook))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Error)

	var result uploadResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result
}

// TestE2E_DocumentLifecycle covers upload, inspection, download, replace and delete
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	uploaded := uploadHandbook(t, env)
	assert.NotEmpty(t, uploaded.DocumentID)
	assert.Equal(t, "handbook.txt", uploaded.DocumentName)
	assert.GreaterOrEqual(t, uploaded.LineCount, strings.Count(handbook, "\n")-1)
	assert.Greater(t, uploaded.ChunkCount, 1)

	t.Run("get returns metadata", func(t *testing.T) {
		resp, err := env.Get("/documents/" + uploaded.DocumentID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var doc documentResult
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, "text/plain", doc.ContentType)
		assert.Equal(t, int64(len(handbook)), doc.SizeBytes)
		assert.Equal(t, uploaded.ChunkCount, doc.ChunkCount)
	})

	t.Run("list includes document", func(t *testing.T) {
		resp, err := env.Get("/documents?limit=10")
		require.NoError(t, err)

		var page struct {
			Items   []documentResult `json:"items"`
			HasMore bool             `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, uploaded.DocumentID, page.Items[0].ID)
		assert.False(t, page.HasMore)
	})

	t.Run("chunks carry line ranges and sections", func(t *testing.T) {
		resp, err := env.Get("/documents/" + uploaded.DocumentID + "/chunks")
		require.NoError(t, err)

		var chunks []chunkResult
		require.NoError(t, json.Unmarshal(resp.Data, &chunks))
		require.Len(t, chunks, uploaded.ChunkCount)

		var sections []string
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.LessOrEqual(t, c.StartLine, c.EndLine)
			assert.GreaterOrEqual(t, c.StartLine, 1)
			if c.SectionTitle != nil {
				sections = append(sections, *c.SectionTitle)
			}
		}
		assert.Contains(t, sections, "2. Expense Reimbursement")
	})

	t.Run("download returns original bytes", func(t *testing.T) {
		resp, err := env.Get("/documents/" + uploaded.DocumentID + "/download")
		require.NoError(t, err)

		var link struct {
			DownloadURL string `json:"download_url"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &link))

		data, err := env.DownloadFile(link.DownloadURL)
		require.NoError(t, err)
		assert.Equal(t, SHA256Sum([]byte(handbook)), SHA256Sum(data))
	})

	t.Run("replace keeps the id and reindexes", func(t *testing.T) {
		revised := "TRAVEL POLICY\nBook flights through the travel desk.\n"
		resp, err := env.Upload(http.MethodPut, "/documents/"+uploaded.DocumentID, "travel.txt", []byte(revised))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, resp.Error)

		var replaced uploadResult
		require.NoError(t, json.Unmarshal(resp.Data, &replaced))
		assert.Equal(t, uploaded.DocumentID, replaced.DocumentID)
		assert.Equal(t, "travel.txt", replaced.DocumentName)
		assert.Equal(t, 1, replaced.ChunkCount)

		resp, err = env.Get("/documents/" + uploaded.DocumentID + "/chunks")
		require.NoError(t, err)
		var chunks []chunkResult
		require.NoError(t, json.Unmarshal(resp.Data, &chunks))
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0].Content, "travel desk")
	})

	t.Run("delete removes document", func(t *testing.T) {
		resp, err := env.Delete("/documents/" + uploaded.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = env.Get("/documents/" + uploaded.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, err = env.Delete("/documents/" + uploaded.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// TestE2E_UploadValidation covers rejected uploads
func TestE2E_UploadValidation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("unsupported type", func(t *testing.T) {
		resp, err := env.Upload(http.MethodPost, "/documents", "tool.exe", []byte("MZ"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty text", func(t *testing.T) {
		resp, err := env.Upload(http.MethodPost, "/documents", "blank.txt", []byte("  \n\n"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("nothing was stored", func(t *testing.T) {
		resp, err := env.Get("/documents")
		require.NoError(t, err)
		var page struct {
			Items []documentResult `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		assert.Empty(t, page.Items)
	})
}

// TestE2E_ChatWithCitations covers grounded answers and conversation history
func TestE2E_ChatWithCitations(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	uploaded := uploadHandbook(t, env)

	resp, err := env.Post("/chat/query", map[string]any{
		"message": "How many vacation days do full-time staff accrue?",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Error)

	var first queryResult
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.NotEmpty(t, first.ConversationID)
	assert.Contains(t, first.Answer, "[1]")
	require.Len(t, first.Citations, 1)

	cite := first.Citations[0]
	assert.Equal(t, 1, cite.Index)
	assert.Equal(t, uploaded.DocumentID, cite.DocumentID)
	assert.Equal(t, "handbook.txt", cite.DocName)
	assert.NotEmpty(t, cite.Snippet)
	assert.LessOrEqual(t, cite.StartLine, cite.EndLine)

	t.Run("follow-up continues conversation", func(t *testing.T) {
		resp, err := env.Post("/chat/query", map[string]any{
			"message":         "When do unused vacation days expire?",
			"conversation_id": first.ConversationID,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, resp.Error)

		var second queryResult
		require.NoError(t, json.Unmarshal(resp.Data, &second))
		assert.Equal(t, first.ConversationID, second.ConversationID)

		resp, err = env.Get("/chat/conversations/" + first.ConversationID + "/messages")
		require.NoError(t, err)
		var transcript struct {
			MessageCount int `json:"message_count"`
			Messages     []struct {
				Role      string           `json:"role"`
				Content   string           `json:"content"`
				Citations []citationResult `json:"citations"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &transcript))
		require.Equal(t, 4, transcript.MessageCount)
		assert.Equal(t, "user", transcript.Messages[0].Role)
		assert.Equal(t, "How many vacation days do full-time staff accrue?", transcript.Messages[0].Content)
		assert.Equal(t, "assistant", transcript.Messages[1].Role)
		assert.Len(t, transcript.Messages[1].Citations, 1)
	})

	t.Run("conversations are listed with a title", func(t *testing.T) {
		resp, err := env.Get("/chat/conversations")
		require.NoError(t, err)
		var page struct {
			Items []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, first.ConversationID, page.Items[0].ID)
		assert.NotEmpty(t, page.Items[0].Title)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		resp, err := env.Post("/chat/query", map[string]any{
			"message":         "Hello?",
			"conversation_id": "00000000-0000-0000-0000-000000000000",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty message", func(t *testing.T) {
		resp, err := env.Post("/chat/query", map[string]any{"message": "   "})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// TestE2E_CLIWorkflow drives the server through the citadoc binary
func TestE2E_CLIWorkflow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildCLI()

	workDir := t.TempDir()
	path := filepath.Join(workDir, "handbook.txt")
	require.NoError(t, os.WriteFile(path, []byte(handbook), 0644))

	out, err := env.RunCLI(workDir, "docs", "upload", path, "--output")
	require.NoError(t, err, out)

	var uploaded uploadResult
	require.NoError(t, json.Unmarshal([]byte(out), &uploaded))
	assert.Equal(t, "handbook.txt", uploaded.DocumentName)

	out, err = env.RunCLI(workDir, "ask", "How are expense reimbursements paid?", "--output")
	require.NoError(t, err, out)

	var answer queryResult
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, uploaded.DocumentID, answer.Citations[0].DocumentID)

	out, err = env.RunCLI(workDir, "docs", "download", uploaded.DocumentID, "-o", filepath.Join(workDir, "copy.txt"))
	require.NoError(t, err, out)
	copied, err := os.ReadFile(filepath.Join(workDir, "copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, handbook, string(copied))

	out, err = env.RunCLI(workDir, "docs", "delete", uploaded.DocumentID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Deleted")
}
