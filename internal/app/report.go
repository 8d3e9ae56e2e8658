package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/run"
)

// printPlan writes one line per descriptor, in expansion order.
func printPlan(w io.Writer, plan *campaign.Plan, descs []*run.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRUN\tPARAMS\tOUTDIR\tCOMMAND")
	for _, d := range descs {
		argv, err := plan.Command(d)
		if err != nil {
			return fmt.Errorf("building command for %s: %w", d, err)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.Index(), d.Key(), d.Params(), d.OutputDir(), strings.Join(argv, " "))
	}
	return tw.Flush()
}

// printSummary writes the outcome of every descriptor, in expansion order.
func printSummary(w io.Writer, descs []*run.Descriptor, results map[string]*run.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tEXIT\tDURATION\tOUTDIR")
	for _, d := range descs {
		o, ok := results[d.Key()]
		if !ok {
			continue
		}
		status := string(o.Status)
		if o.Reused {
			status += " (reused)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", d.Index(), status, o.ExitCode, o.Duration().Round(time.Millisecond), d.OutputDir())
	}
	return tw.Flush()
}
