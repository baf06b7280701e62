package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/questline/guiderag/internal/store"
	"github.com/questline/guiderag/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search telemetry",
		Long: `Display persisted search telemetry:
  - Search, cache-hit, web-search, and zero-result counters
  - Top query terms
  - Recent zero-result queries
  - Latency distribution`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsOutput is the JSON output format for search stats.
type StatsOutput struct {
	Summary             StatsSummary     `json:"summary"`
	TopTerms            []StatsTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// StatsSummary provides overview counters.
type StatsSummary struct {
	TotalSearches int64   `json:"total_searches"`
	CacheHits     int64   `json:"cache_hits"`
	WebSearches   int64   `json:"web_searches"`
	ZeroResults   int64   `json:"zero_results"`
	CacheHitPct   float64 `json:"cache_hit_pct"`
}

func runStats(cmd *cobra.Command, jsonOutput bool, days int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.Cache.Dir, "documents.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no knowledge base found in %s\nRun 'guiderag index' to create one", cfg.Cache.Dir)
	}

	docs, err := store.NewSQLiteDocumentStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer func() { _ = docs.Close() }()

	metricsStore, err := telemetry.NewSQLiteMetricsStore(docs.DB())
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}

	output, err := collectStats(metricsStore, days)
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}
	printStats(cmd, output)
	return nil
}

func collectStats(metricsStore *telemetry.SQLiteMetricsStore, days int) (*StatsOutput, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	fromDate, toDate := from.Format("2006-01-02"), to.Format("2006-01-02")

	counters, err := metricsStore.GetCounters(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	topTerms, err := metricsStore.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}
	zeroResults, err := metricsStore.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}
	latency, err := metricsStore.GetLatencyCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	output := &StatsOutput{
		Summary: StatsSummary{
			TotalSearches: counters["total"],
			CacheHits:     counters["cache_hit"],
			WebSearches:   counters["web_search"],
			ZeroResults:   counters["zero_result"],
		},
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: make(map[string]int64, len(latency)),
	}
	if output.Summary.TotalSearches > 0 {
		output.Summary.CacheHitPct = 100 * float64(output.Summary.CacheHits) / float64(output.Summary.TotalSearches)
	}
	for _, tc := range topTerms {
		output.TopTerms = append(output.TopTerms, StatsTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range latency {
		output.LatencyDistribution[string(bucket)] = count
	}
	return output, nil
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func printStats(cmd *cobra.Command, output *StatsOutput) {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Search Statistics")
	fmt.Fprintln(w, "=================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Searches: %d\n", output.Summary.TotalSearches)
	fmt.Fprintf(w, "Cache Hits:     %d (%.1f%%)\n", output.Summary.CacheHits, output.Summary.CacheHitPct)
	fmt.Fprintf(w, "Web Searches:   %d\n", output.Summary.WebSearches)
	fmt.Fprintf(w, "Zero Results:   %d\n", output.Summary.ZeroResults)
	fmt.Fprintln(w)

	if len(output.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range output.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
	}
	fmt.Fprintln(w)

	if len(output.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range output.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
	}
	fmt.Fprintln(w)

	if len(output.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		buckets := []telemetry.LatencyBucket{
			telemetry.BucketP50, telemetry.BucketP200, telemetry.BucketP500,
			telemetry.BucketP2000, telemetry.BucketSlow,
		}
		labels := map[telemetry.LatencyBucket]string{
			telemetry.BucketP50:   "<50ms",
			telemetry.BucketP200:  "50-200ms",
			telemetry.BucketP500:  "200-500ms",
			telemetry.BucketP2000: "500ms-2s",
			telemetry.BucketSlow:  ">=2s",
		}
		for _, b := range buckets {
			if count, ok := output.LatencyDistribution[string(b)]; ok {
				fmt.Fprintf(w, "  %s: %d\n", labels[b], count)
			}
		}
	}
}
