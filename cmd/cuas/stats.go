package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func statsCmd(e *env) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Stored record counts and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			incidents, posts, channels, err := st.Counts()
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Database:    %s\n", e.cfg.DB())
			fmt.Fprintf(e.out, "Incidents:   %d\n", incidents)
			fmt.Fprintf(e.out, "Posts:       %d\n", posts)
			fmt.Fprintf(e.out, "Channels:    %d\n", channels)

			history, err := st.RunSummaries(runs)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Fprintln(e.out, "\nNo runs recorded.")
				return nil
			}
			fmt.Fprintf(e.out, "\nRecent runs (%d):\n", len(history))
			fmt.Fprintf(e.out, "  %-8s  %-16s  %-10s  %5s  %5s  %5s  %5s  %5s\n",
				"run", "finished", "lexicon", "posts", "corr", "pred", "chan", "errs")
			for _, r := range history {
				fmt.Fprintf(e.out, "  %-8s  %-16s  %-10s  %5d  %5d  %5d  %5d  %5d\n",
					shortRunID(r.ID), r.FinishedAt.Format("2006-01-02 15:04"), truncate(r.LexiconVersion, 10),
					r.Posts, r.Correlations, r.Predictions, r.Channels, r.Errors)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 10, "Number of recent runs to list")
	return cmd
}

func searchCmd(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over stored posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			query := strings.Join(args, " ")
			posts, err := st.SearchPosts(query, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%d posts match %q\n", len(posts), query)
			for _, p := range posts {
				fmt.Fprintf(e.out, "  %-14s @%-16s %s  %s\n",
					truncate(p.ID, 14), truncate(p.ChannelID, 16), p.Timestamp.Format("2006-01-02"),
					truncate(strings.Join(strings.Fields(p.Text), " "), 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	return cmd
}
