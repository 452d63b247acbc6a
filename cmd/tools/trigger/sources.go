package main

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/campus-notice/internal/ingest"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured sources and their boards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := ingest.LoadRegistry(cfg.SourcesFile)
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Adapter", "Match", "Boards"})
		for _, src := range reg.Sources {
			names := make([]string, 0, len(src.Boards))
			for _, b := range src.Boards {
				names = append(names, b.Name)
			}
			t.AppendRow(table.Row{src.ID, src.Name, src.Adapter, strings.Join(src.Match, ", "), strings.Join(names, ", ")})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
