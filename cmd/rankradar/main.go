package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rankradar",
		Short:         "Capture OpenRouter model and app rankings into a time-series store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(modelsCmd())
	root.AddCommand(appsCmd())
	root.AddCommand(allCmd())
	root.AddCommand(latestCmd())
	root.AddCommand(runCmd())
	root.AddCommand(schemaCmd())

	return root
}

func modelsCmd() *cobra.Command {
	var periods []string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Scrape and persist the models ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), periods, nil, true, false)
		},
	}

	cmd.Flags().StringSliceVar(&periods, "period", nil, "periods to scrape (e.g., day,week); default from config")
	return cmd
}

func appsCmd() *cobra.Command {
	var periods []string

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Scrape and persist the apps ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), nil, periods, false, true)
		},
	}

	cmd.Flags().StringSliceVar(&periods, "period", nil, "periods to scrape (e.g., day,week); default from config")
	return cmd
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Scrape models then apps for every configured period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), nil, nil, true, true)
		},
	}
}

func latestCmd() *cobra.Command {
	var (
		period string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:       "latest models|apps",
		Short:     "Show the most recent snapshot of a ranking",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"models", "apps"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(cmd.Context(), cmd.OutOrStdout(), args[0], period, limit, format)
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "period to show (default: all periods)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max ranks per period")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json or csv")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scrape daemon on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func schemaCmd() *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL for the ranking tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.OutOrStdout(), dialect)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "SQL dialect (postgres or sqlite)")
	return cmd
}
