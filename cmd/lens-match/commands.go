package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/lens-match/internal/api"
	"github.com/ironsheep/lens-match/internal/config"
	"github.com/ironsheep/lens-match/internal/lens"
	"github.com/ironsheep/lens-match/internal/ocr"
	"github.com/ironsheep/lens-match/internal/rules"
	"github.com/ironsheep/lens-match/internal/server"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Run the MCP (Model Context Protocol) server over stdin/stdout.

Configure it in your MCP client (e.g., Claude Desktop). Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a.logger.Debug("starting MCP server", "version", Version, "built", BuildTime, "commit", GitCommit)
		go a.svc.Warmup(ctx)

		return server.New(a.svc, Version, a.logger).Run(ctx)
	},
}

// --- http ---

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.cfg.App.HTTPAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go a.svc.Warmup(ctx)

		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewHandler(a.svc, a.cfg.App.HTTPToken, a.logger),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("lens-match listening", "addr", addr, "auth", a.cfg.App.HTTPToken != "")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	httpCmd.Flags().String("addr", "", "listen address (default $LENS_HTTP_ADDR)")
}

// --- recognize ---

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Match an image file against the stored rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		out, err := a.svc.RecognizeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}

		w := cmd.OutOrStdout()
		if !out.Matched {
			printWarning("No rule matched (%s)", out.Elapsed.Round(time.Millisecond))
			return nil
		}
		printSuccess("Matched %s (%s)", colorize(colorBold, out.RuleName), out.RuleID)
		for _, fb := range out.Feedback {
			fmt.Fprintf(w, "[%s] %s\n", fb.Type, fb.Content)
		}
		return nil
	},
}

func init() {
	recognizeCmd.Flags().Bool("json", false, "print the outcome as JSON")
}

// --- rules ---

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage recognition rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		rs, err := a.svc.Rules()
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), rs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tNAME\tKIND\tTARGET")
		for i, r := range rs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.ID, r.Name, r.Kind, describeTarget(r))
		}
		return tw.Flush()
	},
}

func describeTarget(r rules.Rule) string {
	if r.Kind != rules.KindEmbeddingSimilarity {
		return r.Target
	}
	if !r.HasReference() {
		return "(no reference)"
	}
	return fmt.Sprintf("%d-dim reference, threshold %.2f", len(r.ReferenceEmbedding), r.Threshold())
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Long: `Add a rule at the end of the evaluation order.

Examples:
  lens-match rules add --name "Exit sign" --kind text --target exit --feedback "text:This way out"
  lens-match rules add --name Mug --kind label --target mug
  lens-match rules add --name "My bike" --kind similarity --reference ./bike.jpg --threshold 0.9 \
      --feedback "video:https://example.com/bike.mp4"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		target, _ := cmd.Flags().GetString("target")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		reference, _ := cmd.Flags().GetString("reference")
		feedbackArgs, _ := cmd.Flags().GetStringArray("feedback")

		if kind == "" {
			return fmt.Errorf("--kind is required")
		}
		feedback, err := parseFeedback(feedbackArgs)
		if err != nil {
			return err
		}

		d := lens.Draft{
			ID:                  id,
			Name:                name,
			Kind:                kind,
			Target:              target,
			SimilarityThreshold: threshold,
			Feedback:            feedback,
		}
		if reference != "" {
			f, err := os.Open(reference)
			if err != nil {
				return fmt.Errorf("opening reference image: %w", err)
			}
			defer f.Close()
			d.Reference = f
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		r, err := a.svc.AddRule(cmd.Context(), d)
		if err != nil {
			return err
		}
		printSuccess("Added rule %s", r.ID)
		return nil
	},
}

// parseFeedback parses "type:content" items. A bare string is text feedback.
func parseFeedback(items []string) ([]rules.Feedback, error) {
	out := make([]rules.Feedback, 0, len(items))
	for _, item := range items {
		typ, content, ok := strings.Cut(item, ":")
		switch rules.FeedbackType(typ) {
		case rules.FeedbackText, rules.FeedbackImage, rules.FeedbackVideo, rules.FeedbackAudio:
		default:
			typ, content, ok = string(rules.FeedbackText), item, true
		}
		if !ok || strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("empty feedback item %q", item)
		}
		out = append(out, rules.Feedback{Type: rules.FeedbackType(typ), Content: content})
	}
	return out, nil
}

func init() {
	rulesAddCmd.Flags().String("id", "", "rule id (generated when omitted; an existing id is updated)")
	rulesAddCmd.Flags().String("name", "", "display name")
	rulesAddCmd.Flags().String("kind", "", "text, label or similarity")
	rulesAddCmd.Flags().String("target", "", "substring to match for text and label rules")
	rulesAddCmd.Flags().Float64("threshold", 0, "similarity threshold in (0,1] (default 0.85)")
	rulesAddCmd.Flags().String("reference", "", "reference image for similarity rules")
	rulesAddCmd.Flags().StringArray("feedback", nil, `feedback item "type:content" (repeatable)`)
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.DeleteRule(args[0]); err != nil {
			return fmt.Errorf("rule %s: %w", args[0], err)
		}
		printSuccess("Deleted rule %s", args[0])
		return nil
	},
}

var rulesReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Move rules to the front of the evaluation order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.svc.ReorderRules(args); err != nil {
			return err
		}
		printSuccess("Reordered %d rule(s)", len(args))
		return nil
	},
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the default rules into an empty store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.svc.SeedDefaults()
		if err != nil {
			return err
		}
		if n == 0 {
			printWarning("Store already has rules; nothing seeded")
			return nil
		}
		printSuccess("Installed %d default rule(s)", n)
		return nil
	},
}

func init() {
	rulesListCmd.Flags().Bool("json", false, "print rules as JSON")
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesDeleteCmd, rulesReorderCmd, rulesSeedCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent recognitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		hist, err := a.svc.History(limit)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), hist)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tMATCHED\tRULE\tELAPSED")
		for _, rec := range hist {
			rule := rec.MatchedRuleID
			if rule == "" {
				rule = "-"
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", rec.CreatedAt.Local().Format(time.DateTime), rec.Success, rule, rec.Elapsed)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum entries to show")
	historyCmd.Flags().Bool("json", false, "print history as JSON")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load every configured backend and report its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		printStep("Loading backends")
		a.svc.Warmup(cmd.Context())

		w := cmd.OutOrStdout()
		if a.cfg.Text.Backend == config.BackendTesseract {
			info := ocr.Probe(ocr.Options{Languages: a.cfg.Text.Languages, TessdataPrefix: a.cfg.Text.TessdataPrefix})
			if info.Available {
				fmt.Fprintf(w, "tesseract %s (%s)\n", info.Version, strings.Join(info.Languages, "+"))
			} else {
				fmt.Fprintf(w, "tesseract unavailable: %s\n", info.Error)
			}
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODALITY\tCONFIGURED\tSTATE\tERROR")
		for _, st := range a.svc.RuntimeStatus() {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", st.Modality, st.Configured, st.State, st.LastError)
		}
		return tw.Flush()
	},
}
