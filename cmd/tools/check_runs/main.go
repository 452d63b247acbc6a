package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/campus-notice/internal/config"
	"github.com/david/campus-notice/internal/db"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

func main() {
	configPath := flag.String("config", "", "config file")
	source := flag.String("source", "", "only runs of this source id")
	status := flag.String("status", "", "only runs with this status")
	limit := flag.Int("limit", 10, "number of runs")
	flag.Parse()

	log := logging.For("check_runs")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	dsn := cfg.DatabaseURL
	if cfg.StoreDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	store, err := db.Open(ctx, cfg.StoreDriver, dsn, nil)
	if err != nil {
		log.Fatal(err)
	}
	if store == nil {
		log.Fatal("STORE_DRIVER is none; no run history to show")
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, db.ListParams{SourceID: *source, Status: models.Status(*status), Limit: *limit})
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "Scanned", "Aligned", "Errors", "Best", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{r.SourceID, r.Status, r.Scanned, r.Aligned, r.BoardErrors, r.BestScore, duration, r.StartedAt.Format("01-02 15:04:05")})
	}
	t.Render()
}
