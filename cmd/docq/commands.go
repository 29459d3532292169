package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and index it for chat",
	Long: `Upload a PDF and index it for chat.

Examples:
  docq upload ./paper.pdf
  docq upload ./paper.pdf --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		doc, err := client.uploadDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Uploaded %s (id %s)", doc.Name, doc.ID)

		if !wait {
			return nil
		}

		for {
			time.Sleep(time.Second)
			doc, err = client.getDocument(cmd.Context(), doc.ID)
			if err != nil {
				return err
			}
			switch doc.Status {
			case "ready":
				printSuccess("Indexed %d pages", doc.PageCount)
				return nil
			case "failed":
				printError("Indexing failed: %s", doc.Error)
				return fmt.Errorf("indexing failed")
			}
		}
	},
}

func init() {
	uploadCmd.Flags().Bool("wait", false, "wait for indexing to finish")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <document-id> <question>",
	Short: "Ask a question about an uploaded document",
	Long: `Ask a question about an uploaded document. The answer is streamed
to stdout token by token and recorded in the document's conversation
history.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID := args[0]
		question := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if err := client.chat(cmd.Context(), docID, question, os.Stdout); err != nil {
			return err
		}
		fmt.Println()
		return nil
	},
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage uploaded documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		docs, err := client.listDocuments(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			status := d.Status
			if d.Status == "failed" && d.Error != "" {
				status = fmt.Sprintf("failed (%s)", d.Error)
			}
			fmt.Printf("%s  %-10s  %s\n",
				colorize(colorCyan, d.ID[:8]),
				status,
				d.Name,
			)
		}
		return nil
	},
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		doc, err := client.getDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printStatus("ID", "%s", doc.ID)
		printStatus("Name", "%s", doc.Name)
		printStatus("Status", "%s", doc.Status)
		if doc.PageCount > 0 {
			printStatus("Pages", "%d", doc.PageCount)
		}
		if doc.Error != "" {
			printStatus("Error", "%s", doc.Error)
		}
		printStatus("Created", "%s", doc.CreatedAt)
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document, its vectors, and its conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 50, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}
