package main

import (
	"EkgPlatform/internal/core/domain"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printDeadLetterTable(w io.Writer, list []*domain.DeadLetter) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No dead letters.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, dl := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			dl.ID, dl.EventName, dl.Reason, dl.Attempts,
			dl.FailedAt.Local().Format(time.DateTime), truncate(dl.Error, 60))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
