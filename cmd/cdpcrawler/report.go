package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"cdpcrawler/internal/crawl"
)

// printSummary writes the terminal report of a run
func printSummary(w io.Writer, s *crawl.Summary) {
	fmt.Fprintf(w, "\nCrawl %s from %s\n", s.RunID, s.Seed)
	fmt.Fprintf(w, "  elapsed:  %s\n", s.Elapsed.Truncate(time.Second))
	fmt.Fprintf(w, "  devices:  %d\n", s.Total)
	fmt.Fprintf(w, "  done:     %d\n", s.Done)
	fmt.Fprintf(w, "  failed:   %d\n", s.Failed)
	if s.Pending > 0 {
		fmt.Fprintf(w, "  pending:  %d (rerun to resume)\n", s.Pending)
	}
	if s.Stopped {
		fmt.Fprintln(w, "  stopped before completion")
	}

	if len(s.FailedKeys) == 0 {
		return
	}
	fmt.Fprintln(w, "\nFailed devices:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  DEVICE\tATTEMPTS\tLAST ERROR")
	for _, f := range s.FailedKeys {
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", f.Key, f.Attempts, f.LastError)
	}
	tw.Flush()
}
