package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/violation-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored lookups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		plate, _ := cmd.Flags().GetString("plate")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		results, err := st.ListResults(ctx, store.ResultFilter{Plate: plate, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No lookups found.")
			return nil
		}
		formatHistory(os.Stdout, results)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("plate", "", "only show lookups for this plate")
	historyCmd.Flags().Int("limit", 20, "maximum number of lookups to show")
	historyCmd.Flags().Bool("json", false, "print stored results as JSON")
	rootCmd.AddCommand(historyCmd)
}

func formatHistory(w io.Writer, results []store.StoredResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLATE\tSTATE\tVIOLATIONS\tDUE\tWHEN\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t$%.2f\t%s\t%s\n",
			shortID(r.ID),
			r.Plate,
			r.State,
			r.ViolationCount,
			r.AmountDue,
			r.CreatedAt.Local().Format(time.DateTime),
			orDash(truncate(r.Error, 50)),
		)
	}
	tw.Flush() //nolint:errcheck
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
