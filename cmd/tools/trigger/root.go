package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/david/campus-notice/internal/config"
	"github.com/david/campus-notice/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run and inspect the campus notice pipeline from the command line.",
	Long: `trigger runs the announcement pipeline for one target URL without the HTTP server,
lists the configured sources, and mints service tokens for callers of /crawl/request.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		level, _ := cmd.Flags().GetString("loglevel")
		if level == "" {
			level = cfg.LogLevel
		}
		if err := logging.SetLevel(level); err != nil {
			return err
		}
		logging.SetFormat(cfg.LogFormat)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.campus-notice.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "", "Set log level. Available: debug, info, warn, error, fatal")
}
