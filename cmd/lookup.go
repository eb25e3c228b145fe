package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/violation-cli/internal/model"
)

var (
	lookupState     string
	lookupNoBrowser bool
	lookupJSON      bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <plate>",
	Short: "Look up violations for a license plate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initLookup(ctx, !lookupNoBrowser)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.Acquire(ctx, args[0], lookupState)
		if lookupJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
		} else {
			formatResult(os.Stdout, res)
		}
		return err
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupState, "state", "NY", "plate registration state")
	lookupCmd.Flags().BoolVar(&lookupNoBrowser, "no-browser", false, "skip the browser path and use only the structured source")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(lookupCmd)
}

func formatResult(w io.Writer, res *model.AcquisitionResult) {
	fmt.Fprintf(w, "Plate:       %s (%s)\n", res.Plate, res.State)
	fmt.Fprintf(w, "Sources:     %s\n", joinSources(res.Sources))
	fmt.Fprintf(w, "Violations:  %d (%d paid, %d outstanding)\n",
		res.Summary.TotalViolations, res.Summary.Paid, res.Summary.Outstanding)
	fmt.Fprintf(w, "Amount due:  $%.2f\n", res.Summary.TotalAmountDue)
	if len(res.Summary.Agencies) > 0 {
		fmt.Fprintf(w, "Agencies:    %s\n", strings.Join(res.Summary.Agencies, ", "))
	}
	if res.Completeness.Total > 0 {
		fmt.Fprintf(w, "Quality:     %.0f%% high quality\n", res.Completeness.HighQuality*100)
	}
	if len(res.Artifacts) > 0 {
		fmt.Fprintf(w, "Artifacts:   %d downloaded (%.0f%%)\n",
			countDownloaded(res.Artifacts), model.ArtifactSuccessRate(res.Artifacts)*100)
	}
	fmt.Fprintf(w, "Elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "Warning:     %s\n", warn)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", res.Error)
	}

	if len(res.Violations) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUMMONS\tDATE\tVIOLATION\tFINE\tDUE\tSTATUS\tSOURCES")
	for _, v := range res.Violations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			orDash(v.SummonsNumber),
			orDash(v.IssueDate),
			orDash(truncate(v.ViolationCode, 40)),
			money(v.FineAmount),
			money(v.AmountDue),
			v.Status,
			joinSources(v.SourceTags),
		)
	}
	tw.Flush() //nolint:errcheck
}

func joinSources(tags []model.SourceTag) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func countDownloaded(outcomes []model.ArtifactOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

func money(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", *f)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
