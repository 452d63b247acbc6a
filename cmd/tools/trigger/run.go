package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/campus-notice/internal/app"
	"github.com/david/campus-notice/internal/models"
	"github.com/david/campus-notice/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for a target URL and print the outcome.",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		profileText, _ := cmd.Flags().GetString("profile")
		profileFile, _ := cmd.Flags().GetString("profile-file")
		boards, _ := cmd.Flags().GetStringSlice("boards")
		interval, _ := cmd.Flags().GetInt("interval")
		lastSent, _ := cmd.Flags().GetString("last-sent")
		save, _ := cmd.Flags().GetBool("save")
		asJSON, _ := cmd.Flags().GetBool("json")

		profile, err := loadProfile(profileText, profileFile)
		if err != nil {
			return err
		}

		if lastSent != "" {
			sent, err := time.Parse(time.RFC3339, lastSent)
			if err != nil {
				return fmt.Errorf("--last-sent: %w", err)
			}
			days := interval
			if days <= 0 {
				days = profile.IntervalDays
			}
			if !pipeline.DueForDelivery(sent, days, time.Now(), cfg.Location()) {
				fmt.Printf("Not due: last sent %s, interval %d days.\n", sent.Format(time.RFC3339), days)
				return nil
			}
		}

		a, err := app.Build(cmd.Context(), cfg, save)
		if err != nil {
			return err
		}
		defer a.Close()

		out := a.Orchestrator.Run(cmd.Context(), pipeline.Request{
			TargetURL:    target,
			Profile:      profile,
			Boards:       boards,
			IntervalDays: interval,
		})

		if save && a.Store != nil {
			if err := a.Store.SaveRun(cmd.Context(), out.Record()); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out.Response)
		}
		printOutcome(out)
		return nil
	},
}

func loadProfile(text, file string) (models.UserProfile, error) {
	var p models.UserProfile
	if file == "" {
		p.Text = strings.TrimSpace(text)
		return p, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%s: %w", file, err)
	}
	return p, nil
}

func printOutcome(out pipeline.Outcome) {
	res := out.Result
	fmt.Printf("%s  %s (%d days)\n%s\n\n", res.Status, out.TargetURL, out.LookbackDays, res.Message)

	boards := table.NewWriter()
	boards.SetOutputMirror(os.Stdout)
	boards.AppendHeader(table.Row{"Board", "Stage", "Listed", "In Window", "Aligned", "Note"})
	for _, b := range res.Boards {
		note := b.Error
		if note == "" {
			note = b.Warning
		}
		boards.AppendRow(table.Row{b.Board, b.Stage, b.Listed, b.Scanned, b.Aligned, note})
	}
	boards.Render()

	if len(res.Aligned) == 0 {
		return
	}
	fmt.Println()
	items := table.NewWriter()
	items.SetOutputMirror(os.Stdout)
	items.AppendHeader(table.Row{"#", "Score", "Board", "Title", "Summary", "Link"})
	for i, it := range res.Aligned {
		items.AppendRow(table.Row{i + 1, fmt.Sprintf("%.2f", it.Score), it.BoardName, truncate(it.Title, 40), truncate(it.Summary, 60), it.Link})
	}
	items.Render()
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("target", "t", "", "target board URL (required)")
	runCmd.Flags().StringP("profile", "p", "", "free-text user profile")
	runCmd.Flags().String("profile-file", "", "JSON user profile file (overrides --profile)")
	runCmd.Flags().StringSlice("boards", nil, "restrict to these boards (name or category)")
	runCmd.Flags().Int("interval", 0, "lookback window in days (0 uses profile, source, then config)")
	runCmd.Flags().String("last-sent", "", "RFC3339 time of the last delivery; skip the run when not yet due")
	runCmd.Flags().Bool("save", false, "persist the run to the configured store")
	runCmd.Flags().Bool("json", false, "print the outbound response as JSON")
	_ = runCmd.MarkFlagRequired("target")
}
