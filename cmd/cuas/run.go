package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/pipeline"
)

func runCmd(e *env) *cobra.Command {
	var (
		nowFlag   string
		sinceDays int
		trace     bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score, correlate and predict over stored records",
		Long: `Run one batch over the stored incidents, posts and channels and save
the result as the latest run. Records older than the lookback (the
longest correlation window plus the prediction age limit) are not read.

Invalid configuration or lexicon aborts the run. Invalid records are
reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseTime(nowFlag)
			if err != nil {
				return err
			}
			eng, err := e.engine(nil, trace)
			if err != nil {
				return err
			}
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := runBatch(st, eng, e.cfg.Windows, batchOptions{now: now, sinceDays: sinceDays})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printSummary(e.out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "Reference time, RFC 3339 or YYYY-MM-DD (default: current time)")
	cmd.Flags().IntVar(&sinceDays, "since-days", 0, "Read records this many days before the reference time (default: lookback)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Emit one event per evaluated post/incident pair")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func printSummary(w io.Writer, res *pipeline.Result) {
	s := res.Summary
	fmt.Fprintf(w, "Run %s (lexicon %s, reference %s)\n",
		res.RunID, res.LexiconVersion, res.Now.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  read         %d incidents, %d posts, %d channels\n", s.Incidents, s.Posts, s.Channels)
	fmt.Fprintf(w, "  posts        %s\n", countsLine(s.PostTiers, []model.Severity{
		model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow}))
	fmt.Fprintf(w, "  correlations %s\n", countsLine(s.Strengths, []model.Strength{model.StrengthHigh, model.StrengthMedium}))
	fmt.Fprintf(w, "  predictions  %s\n", countsLine(s.Predictions, []model.PredictionStatus{
		model.PredictionActive, model.PredictionExpired}))
	fmt.Fprintf(w, "  channels     %s\n", countsLine(s.ChannelTiers, []model.MonitorTier{
		model.Tier1, model.Tier2, model.Tier3, model.Tier4}))
	if s.Ambiguous > 0 {
		fmt.Fprintf(w, "  ambiguous    %d location references\n", s.Ambiguous)
	}
	if len(res.Errors) == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped %d records:\n", len(res.Errors))
	for _, re := range res.Errors {
		fmt.Fprintf(w, "  %v\n", re)
	}
}

// countsLine renders counts in the given key order, then any other keys
// sorted.
func countsLine[K ~string](counts map[K]int, order []K) string {
	var parts []string
	seen := make(map[K]bool, len(order))
	for _, k := range order {
		seen[k] = true
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	var rest []string
	for k, n := range counts {
		if !seen[k] {
			rest = append(rest, fmt.Sprintf("%d %s", n, k))
		}
	}
	sort.Strings(rest)
	return strings.Join(append(parts, rest...), ", ")
}
