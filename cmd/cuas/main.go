// Command cuas collects drone incident reports and social posts, scores and
// correlates them, and shows the results.
//
// Usage:
//
//	cuas ingest             Fetch incident feeds once (or --every)
//	cuas import <file>      Import posts, incidents and channels from JSON
//	cuas run                Run a batch over stored records and save it
//	cuas report             Report viewer (TUI, or --plain)
//	cuas serve              Serve /metrics and /report.json
//	cuas events             JSONL event log viewer
//	cuas stats              Record counts and run history
//	cuas search <query>     Full-text search over stored posts
//	cuas config init        Write the default config file
package main

import (
	"fmt"
	"os"
)

const (
	Version   = "0.3.0"
	BuildTime = "dev"
	appName   = "cuas"
)

func main() {
	cmd, e := newRoot()
	err := cmd.Execute()
	e.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
