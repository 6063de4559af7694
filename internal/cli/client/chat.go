package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// Citation is a resolved source reference attached to an answer.
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

// QueryRequest is the body of a chat query.
type QueryRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

// QueryResult is a grounded answer.
type QueryResult struct {
	ConversationID string     `json:"conversation_id"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
}

// ConversationItem is a conversation summary.
type ConversationItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ConversationPage is a page of conversations.
type ConversationPage struct {
	Items   []ConversationItem `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

// MessageItem is one stored chat message.
type MessageItem struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// ConversationMessages is a conversation transcript.
type ConversationMessages struct {
	ConversationID string        `json:"conversation_id"`
	MessageCount   int           `json:"message_count"`
	Messages       []MessageItem `json:"messages"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed documents",
		Long:  "Answers a question from the indexed documents with numbered citations. Pass --conversation to continue an earlier conversation.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			req := QueryRequest{Message: strings.Join(args, " ")}
			if conversationID != "" {
				req.ConversationID = &conversationID
			}

			resp, err := api.Post("/chat/query", req)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			var result QueryResult
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(result)
			}
			fmt.Println(result.Answer)
			printCitations(result.Citations)
			fmt.Printf("\nConversation: %s\n", result.ConversationID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	return cmd
}

// ConversationsCmd creates the conversations command group.
func ConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Browse chat history",
	}

	var (
		limit  int
		cursor string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/chat/conversations" + pageQuery(cursor, limit))
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			var page ConversationPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(page)
			}
			if len(page.Items) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}
			for i, c := range page.Items {
				fmt.Printf("%d. %s\n", i+1, c.Title)
				fmt.Printf("   ID: %s\n", c.ID)
				fmt.Printf("   Updated: %s\n", c.UpdatedAt)
			}
			printMore(page.HasMore, page.Cursor)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	list.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/chat/conversations/" + url.PathEscape(args[0]) + "/messages")
			if err != nil {
				return fmt.Errorf("messages failed: %w", err)
			}

			var transcript ConversationMessages
			if err := json.Unmarshal(resp.Data, &transcript); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(transcript)
			}
			for _, m := range transcript.Messages {
				fmt.Printf("%s [%s]\n%s\n", strings.ToUpper(m.Role), m.CreatedAt, m.Content)
				printCitations(m.Citations)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)
	return cmd
}

func printCitations(citations []Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, c := range citations {
		location := fmt.Sprintf("lines %d-%d", c.StartLine, c.EndLine)
		if c.SectionTitle != nil {
			location = *c.SectionTitle + ", " + location
		}
		fmt.Printf("  [%d] %s (%s)\n", c.Index, c.DocName, location)
	}
}
