package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// DocumentItem mirrors the document resource returned by the API.
type DocumentItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	ContentType    string `json:"content_type"`
	SizeBytes      int64  `json:"size_bytes"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	ChunkCount     int    `json:"chunk_count"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// UploadResult is the summary returned after indexing a document.
type UploadResult struct {
	DocumentID     string `json:"document_id"`
	DocumentName   string `json:"document_name"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	ChunkCount     int    `json:"chunk_count"`
}

// ChunkItem is one indexed chunk of a document.
type ChunkItem struct {
	ID           string  `json:"id"`
	Index        int     `json:"index"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	SectionTitle *string `json:"section_title"`
	Content      string  `json:"content"`
}

// DocumentPage is a page of documents.
type DocumentPage struct {
	Items   []DocumentItem `json:"items"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

// DocsCmd creates the document command group.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Upload and manage indexed documents",
	}

	cmd.AddCommand(docsUploadCmd())
	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsGetCmd())
	cmd.AddCommand(docsChunksCmd())
	cmd.AddCommand(docsDownloadCmd())
	cmd.AddCommand(docsDeleteCmd())

	return cmd
}

func docsUploadCmd() *cobra.Command {
	var replaceID string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and index it",
		Long:  "Uploads a .txt or .pdf file. With --replace, the existing document keeps its ID and is re-indexed from the new file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			method, path := http.MethodPost, "/documents"
			if replaceID != "" {
				method, path = http.MethodPut, "/documents/"+url.PathEscape(replaceID)
			}

			var progress ProgressFunc
			if !outputJSON {
				progress = printProgress("Uploading")
			}
			resp, err := api.UploadDocument(method, path, args[0], progress)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			var result UploadResult
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(result)
			}
			fmt.Printf("Indexed %s\n", result.DocumentName)
			fmt.Printf("  ID: %s\n", result.DocumentID)
			fmt.Printf("  Lines: %d, Characters: %d, Chunks: %d\n", result.LineCount, result.CharacterCount, result.ChunkCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&replaceID, "replace", "", "Replace the content of an existing document ID")
	return cmd
}

func docsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents" + pageQuery(cursor, limit))
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			var page DocumentPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(page)
			}
			if len(page.Items) == 0 {
				fmt.Println("No documents found.")
				return nil
			}

			fmt.Printf("Found %d documents:\n\n", len(page.Items))
			for i, d := range page.Items {
				fmt.Printf("%d. %s (%s, %d chunks)\n", i+1, d.Name, d.ContentType, d.ChunkCount)
				fmt.Printf("   ID: %s\n", d.ID)
				fmt.Printf("   Updated: %s\n", d.UpdatedAt)
			}
			printMore(page.HasMore, page.Cursor)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	return cmd
}

func docsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show document metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			var doc DocumentItem
			if err := json.Unmarshal(resp.Data, &doc); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(doc)
			}
			fmt.Printf("%s\n", doc.Name)
			fmt.Printf("  ID: %s\n", doc.ID)
			fmt.Printf("  Type: %s, Size: %d bytes\n", doc.ContentType, doc.SizeBytes)
			fmt.Printf("  Lines: %d, Characters: %d, Chunks: %d\n", doc.LineCount, doc.CharacterCount, doc.ChunkCount)
			fmt.Printf("  Created: %s\n", doc.CreatedAt)
			fmt.Printf("  Updated: %s\n", doc.UpdatedAt)
			return nil
		},
	}
}

func docsChunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <id>",
		Short: "Show the indexed chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents/" + url.PathEscape(args[0]) + "/chunks")
			if err != nil {
				return fmt.Errorf("chunks failed: %w", err)
			}

			var chunks []ChunkItem
			if err := json.Unmarshal(resp.Data, &chunks); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return printJSON(chunks)
			}
			for i, c := range chunks {
				header := fmt.Sprintf("[%d] lines %d-%d", c.Index, c.StartLine, c.EndLine)
				if c.SectionTitle != nil {
					header += " " + *c.SectionTitle
				}
				fmt.Println(header)
				fmt.Println(c.Content)
				if i < len(chunks)-1 {
					fmt.Println(strings.Repeat("-", 40))
				}
			}
			return nil
		},
	}
}

func docsDownloadCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the original uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			path := outputPath
			if path == "" {
				resp, err := api.Get("/documents/" + url.PathEscape(args[0]))
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}
				var doc DocumentItem
				if err := json.Unmarshal(resp.Data, &doc); err != nil {
					return fmt.Errorf("failed to parse response: %w", err)
				}
				path = doc.Name
			}

			resp, err := api.Get("/documents/" + url.PathEscape(args[0]) + "/download")
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			var link struct {
				DownloadURL string `json:"download_url"`
			}
			if err := json.Unmarshal(resp.Data, &link); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			target, err := api.ResolveURL(link.DownloadURL)
			if err != nil {
				return err
			}
			if err := api.DownloadFileWithProgress(target, path, printProgress("Downloading")); err != nil {
				_ = os.Remove(path)
				return err
			}

			fmt.Printf("Saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output path (default: document name)")
	return cmd
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete("/documents/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}

			if outputJSON {
				return printJSON(map[string]any{"id": args[0], "deleted": true})
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func pageQuery(cursor string, limit int) string {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func printMore(hasMore bool, cursor string) {
	if hasMore && cursor != "" {
		fmt.Printf("\n%s\n", strings.Repeat("-", 40))
		fmt.Printf("More results available. Use --cursor %s\n", cursor)
	}
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
