package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/sentinel/internal/api"
	"github.com/kalambet/sentinel/internal/config"
	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/service"
)

// exportPageSize is the page size used when exporting feedback.
const exportPageSize = 500

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score <username>",
	Short: "Score one Reddit account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := service.ValidateUsername(args[0]); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		score, err := fetchScore(cmd.Context(), client, args[0], force)
		if err != nil {
			return err
		}
		if asJSON {
			return writeIndented(os.Stdout, score)
		}
		printScore(score)
		return nil
	},
}

func fetchScore(ctx context.Context, c *apiClient, username string, force bool) (api.ScoreResponse, error) {
	var score api.ScoreResponse
	path := "/v1/score/" + url.PathEscape(username)
	if force {
		path += "?force_refresh=true"
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return score, err
	}
	err = decodeJSON(resp, &score)
	return score, err
}

func init() {
	scoreCmd.Flags().Bool("force", false, "ignore the cached score and recompute")
	scoreCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch <username>...",
	Short: "Score up to 50 Reddit accounts",
	Args:  cobra.RangeArgs(1, 50),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/analyze/batch", api.BatchRequest{
			Usernames:    args,
			ForceRefresh: force,
		})
		if err != nil {
			return err
		}
		var out api.BatchResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if asJSON {
			return writeIndented(os.Stdout, out)
		}
		printBatch(out)
		return nil
	},
}

func init() {
	batchCmd.Flags().Bool("force", false, "ignore cached scores and recompute")
	batchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit or export analyst feedback",
}

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit <username> <kind>",
	Short: "Label an account (false_positive, false_negative, confirmed_bot, confirmed_human)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		kind, err := feedback.ParseKind(args[1])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/feedback", api.FeedbackRequest{
			Username:     args[0],
			FeedbackType: string(kind),
			Notes:        note,
		})
		if err != nil {
			return err
		}
		var out api.FeedbackResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("%s", out.Message)
		if kind.Disputes() {
			printStep("Rescore queued for %s", args[0])
		}
		return nil
	},
}

var feedbackExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all feedback as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := exportFeedback(cmd.Context(), client, w)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d feedback records to %s", n, output)
		}
		return nil
	},
}

// exportFeedback pages through /v1/feedback writing one record per line.
func exportFeedback(ctx context.Context, c *apiClient, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	total := 0
	for {
		resp, err := c.get(ctx, fmt.Sprintf("/v1/feedback?limit=%d&offset=%d", exportPageSize, total))
		if err != nil {
			return total, err
		}
		var records []feedback.Record
		if err := decodeJSON(resp, &records); err != nil {
			return total, err
		}
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return total, fmt.Errorf("writing record: %w", err)
			}
		}
		total += len(records)
		if len(records) < exportPageSize {
			return total, nil
		}
	}
}

func init() {
	feedbackSubmitCmd.Flags().String("note", "", "optional note stored with the label")
	feedbackExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	feedbackCmd.AddCommand(feedbackSubmitCmd)
	feedbackCmd.AddCommand(feedbackExportCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scoring and feedback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stats, err := fetchStats(cmd.Context(), client)
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the scoring tools over the Model Context Protocol on stdin/stdout.

The scoring stack runs in-process; logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfigAndLogger()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.runBackground(ctx)

		stdio := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Service: a.svc, Version: version}))
		logger.Info("MCP server started (stdio transport)")
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
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
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
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

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
