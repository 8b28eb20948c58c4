package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/zentiam/assistd/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question.

Without --session a fresh session is created and its id printed, so a
conversation can be continued:

  assistd ask "what are your opening hours"
  assistd ask --session 4be71c2a "and on weekends?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if sessionID == "" {
			resp, err := client.post("/chatbot/session", nil)
			if err != nil {
				return err
			}
			var created map[string]string
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			sessionID = created["session_id"]
			printStep("session %s", sessionID)
		}

		resp, err := client.post("/chatbot/chat", map[string]string{
			"session_id": sessionID,
			"message":    question,
		})
		if err != nil {
			return err
		}

		var reply struct {
			Response string `json:"response"`
			Matched  bool   `json:"matched"`
			Source   string `json:"source"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Response)
		if !reply.Matched {
			printWarning("no confident match; the question was queued for review")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "existing session id to continue")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect visitor sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/chatbot/sessions?limit=%d", limit))
		if err != nil {
			return err
		}

		var listing struct {
			Sessions []struct {
				ID           string `json:"id"`
				CreatedAt    string `json:"created_at"`
				Status       string `json:"status"`
				MessageCount int    `json:"message_count"`
				Contact      struct {
					Name string `json:"name"`
				} `json:"contact"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &listing); err != nil {
			return err
		}

		if len(listing.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range listing.Sessions {
			name := s.Contact.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("%s  %s  %-6s  %3d msgs  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.CreatedAt,
				s.Status,
				s.MessageCount,
				name,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/chatbot/session/" + args[0])
		if err != nil {
			return err
		}

		var sess any
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
}

// --- answers ---

var answersCmd = &cobra.Command{
	Use:   "answers",
	Short: "Manage approved answers (admin)",
}

var answersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approved answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminGet("/admin/approved-answers")
		if err != nil {
			return err
		}

		var listing struct {
			Answers []struct {
				ID         string   `json:"id"`
				Pattern    string   `json:"question_pattern"`
				Answer     string   `json:"approved_answer"`
				Tags       []string `json:"context_tags"`
				UsageCount int      `json:"usage_count"`
			} `json:"answers"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &listing); err != nil {
			return err
		}

		if listing.Total == 0 {
			fmt.Println("No approved answers.")
			return nil
		}

		for _, a := range listing.Answers {
			fmt.Printf("\n%s  %s\n", colorize(colorCyan, a.ID[:8]), colorize(colorBold, a.Pattern))
			if len(a.Tags) > 0 {
				fmt.Printf("  tags: %s\n", strings.Join(a.Tags, ", "))
			}
			answer := a.Answer
			if len(answer) > 200 {
				answer = answer[:200] + "..."
			}
			fmt.Printf("  %s (used %d times)\n", answer, a.UsageCount)
		}
		return nil
	},
}

var answersAddCmd = &cobra.Command{
	Use:   "add <pattern> <answer>",
	Short: "Create or replace an approved answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPost("/admin/approved-answers", map[string]any{
			"question_pattern": args[0],
			"approved_answer":  args[1],
			"context_tags":     tags,
		})
		if err != nil {
			return err
		}

		var result struct {
			ID      string `json:"id"`
			Version int64  `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored answer %s (knowledge version %d)", result.ID, result.Version)
		return nil
	},
}

var answersEditCmd = &cobra.Command{
	Use:   "edit <id> <pattern> <answer>",
	Short: "Replace an approved answer in place",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}
		deactivate, _ := cmd.Flags().GetBool("deactivate")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPut("/admin/approved-answers/"+args[0], map[string]any{
			"question_pattern": args[1],
			"approved_answer":  args[2],
			"context_tags":     tags,
			"is_active":        !deactivate,
		})
		if err != nil {
			return err
		}

		var result struct {
			Version int64 `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Updated answer %s (knowledge version %d)", args[0], result.Version)
		return nil
	},
}

var answersRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an approved answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminDelete("/admin/approved-answers/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted answer %s", args[0])
		return nil
	},
}

func init() {
	answersAddCmd.Flags().String("tags", "", "comma-separated tags improving fuzzy matching")
	answersEditCmd.Flags().String("tags", "", "comma-separated tags improving fuzzy matching")
	answersEditCmd.Flags().Bool("deactivate", false, "keep the answer but stop serving it")
	answersCmd.AddCommand(answersListCmd)
	answersCmd.AddCommand(answersAddCmd)
	answersCmd.AddCommand(answersEditCmd)
	answersCmd.AddCommand(answersRemoveCmd)
}

// --- learning queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Review the learning queue (admin)",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending learning items",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminGet("/admin/learning-queue?status=" + status)
		if err != nil {
			return err
		}

		var listing struct {
			Items []struct {
				ID           string `json:"id"`
				UserQuestion string `json:"user_question"`
				Rating       string `json:"rating"`
				CreatedAt    string `json:"created_at"`
			} `json:"items"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &listing); err != nil {
			return err
		}

		if listing.Total == 0 {
			fmt.Printf("No %s items.\n", status)
			return nil
		}

		for _, it := range listing.Items {
			fmt.Printf("%s  %-10s  %s\n",
				colorize(colorCyan, it.ID[:8]),
				it.Rating,
				it.UserQuestion,
			)
		}
		return nil
	},
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <id> <answer>",
	Short: "Approve an item with an improved answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPost("/admin/learning-queue/"+args[0]+"/approve", map[string]any{
			"improved_answer": args[1],
			"tags":            tags,
		})
		if err != nil {
			return err
		}

		var result struct {
			Version int64 `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Approved %s (knowledge version %d)", args[0], result.Version)
		return nil
	},
}

var queueDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Dismiss an item without teaching the bot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPost("/admin/learning-queue/"+args[0]+"/dismiss", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Dismissed %s", args[0])
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("status", "pending", "filter by status: pending, approved, dismissed")
	queueApproveCmd.Flags().String("tags", "", "comma-separated tags for the new answer")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueApproveCmd)
	queueCmd.AddCommand(queueDismissCmd)
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show learning metrics (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminGet(fmt.Sprintf("/admin/learning-metrics?days=%d", days))
		if err != nil {
			return err
		}

		var report any
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	metricsCmd.Flags().Int("days", 7, "trend window in days")
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Export sessions to the configured sheet (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.adminPost("/admin/sheets/sync", nil)
		if err != nil {
			return err
		}

		var result struct {
			Synced int `json:"synced_count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Exported %d sessions", result.Synced)
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document (.txt, .pdf, .pptx) into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
		if err := mw.Close(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req, err := http.NewRequest(http.MethodPost, client.baseURL+"/chatbot/upload", &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := client.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable — is assistd running? (%w)", err)
		}

		var result struct {
			SnapshotID int64 `json:"snapshot_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %s (knowledge version %d)", filepath.Base(args[0]), result.SnapshotID)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token <plaintext>",
	Short: "Hash an admin token for admin.token_hash",
	Long: `Hash an admin token for admin.token_hash.

The hash goes into config; the plaintext goes into ASSISTD_ADMIN_TOKEN for
the CLI and into Authorization headers for direct API calls:

  assistd token "my-secret" | xargs assistd config set admin.token_hash`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing token: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}
