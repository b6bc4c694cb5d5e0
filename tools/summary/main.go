// Command summary aggregates the CSV message log into per-day totals.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"telemetry-alarms/internal/audit"
)

var (
	rootCmd = &cobra.Command{
		Use:          "summary",
		Short:        "Summarize the telemetry message log by day",
		SilenceUsage: true,
		RunE:         runSummary,
	}

	inputPath  string
	outputPath string
	format     string
)

func init() {
	rootCmd.Flags().StringVar(&inputPath, "input", "messages_log.csv", "Message log CSV file")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Output file (default messages_summary.<format>)")
	rootCmd.Flags().StringVar(&format, "format", "csv", "Output format (csv, xlsx, pdf)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSummary(cmd *cobra.Command, _ []string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer file.Close()

	entries, err := audit.ReadCSV(file)
	if err != nil {
		return fmt.Errorf("read message log: %w", err)
	}
	days := audit.Summarize(entries)

	var body []byte
	switch strings.ToLower(format) {
	case "csv":
		body, err = audit.BuildSummaryCSV(days)
	case "xlsx":
		body, err = audit.BuildSummaryXLSX(days)
	case "pdf":
		body, err = audit.BuildSummaryPDF(days)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}

	out := outputPath
	if out == "" {
		out = filepath.Join(filepath.Dir(inputPath), "messages_summary."+strings.ToLower(format))
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Summary of %d messages over %d days written to %s\n", len(entries), len(days), out)
	return nil
}
