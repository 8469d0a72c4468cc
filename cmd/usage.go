package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/nikogura/cv-tailor/pkg/config"
	"github.com/nikogura/cv-tailor/pkg/history"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var usageJSON bool

//nolint:gochecknoglobals // Cobra boilerplate
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage across past runs",
	Long: `Scans every ledger under the output directory, refreshes the usage index
and prints token totals per run and per provider, plus advice that keeps
coming back across runs.

Example:
  cv-tailor usage
  cv-tailor usage --output-dir ~/Documents/CVs --json`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (default from config)")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Print the summary as JSON")
}

func runUsage(cmd *cobra.Command, args []string) (err error) {
	dir := outputDir
	if dir == "" {
		var cfg config.Config
		cfg, err = config.Load(getConfigFile())
		if err != nil {
			err = errors.Wrap(err, "failed to load config")
			return err
		}
		dir = cfg.Defaults.OutputDir
	}

	var indexer *history.Indexer
	indexer, err = history.NewIndexer(dir, logrus.StandardLogger())
	if err != nil {
		return err
	}

	var index history.UsageIndex
	index, err = indexer.Index(context.Background())
	if err != nil {
		return err
	}

	summary := history.Summarize(index)

	if usageJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(summary)
		if err != nil {
			err = errors.Wrap(err, "failed to encode usage summary")
			return err
		}
		return err
	}

	printUsage(index, summary)
	return err
}

func printUsage(index history.UsageIndex, summary history.Summary) {
	if summary.Runs == 0 {
		fmt.Println("No runs found.")
		return
	}

	fmt.Printf("Runs: %d (latest %s)\n\n", summary.Runs, summary.LatestRun.Format("2006-01-02 15:04"))

	for _, run := range index.Runs {
		fmt.Printf("  %s  %-30s  %-10s %6d tokens  (%d sections)\n",
			run.StartedAt.Format("2006-01-02"), run.JobTitle, run.Provider, run.Usage.TotalTokens, run.Sections)
	}

	fmt.Printf("\nTotal: %d tokens (%d prompt, %d cached, %d completion)\n",
		summary.Total.TotalTokens, summary.Total.PromptTokens, summary.Total.CachedPromptTokens, summary.Total.CompletionTokens)
	fmt.Printf("Average per run: %d tokens\n", summary.AverageTokensPerRun)
	fmt.Printf("Cached prompt tokens: %.1f%%\n", summary.CacheHitPercent)

	providers := make([]string, 0, len(summary.ByProvider))
	for provider := range summary.ByProvider {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	fmt.Println("\nBy provider:")
	for _, provider := range providers {
		fmt.Printf("  %-10s %d tokens\n", provider, summary.ByProvider[provider].TotalTokens)
	}

	if len(summary.RecurringAdvice) > 0 {
		fmt.Println("\nRecurring recommendations:")
		for _, rec := range summary.RecurringAdvice {
			fmt.Printf("  (%dx) %s\n", rec.Count, rec.Text)
		}
	}
}
