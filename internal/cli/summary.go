package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show or compute daily glucose summaries",
	Long: `Lists stored daily summaries for an owner. With --compute, first builds the
summaries for the given day for every owner with readings.`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().String("owner", "", "Owner to report on")
	summaryCmd.Flags().String("from", "", "First day, YYYY-MM-DD (default yesterday)")
	summaryCmd.Flags().Int("days", 1, "Number of days to list")
	summaryCmd.Flags().Bool("compute", false, "Compute summaries for --from before listing")
}

func runSummary(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	from, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")
	compute, _ := cmd.Flags().GetBool("compute")

	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if from != "" {
		d, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
		day = d
	}
	if days < 1 {
		days = 1
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if compute {
		n, err := a.scheduler.DailySummary(cmd.Context(), day)
		if err != nil {
			return fmt.Errorf("compute summaries: %w", err)
		}
		fmt.Printf("Computed %d summaries for %s\n", n, day.Format(time.DateOnly))
	}
	if owner == "" {
		return nil
	}

	sums, err := a.store.ListDailySummaries(cmd.Context(), owner, day, day.AddDate(0, 0, days))
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	fmt.Printf("=== Glucose Summary for %s ===\n", owner)
	fmt.Printf("Period: %s to %s\n\n", day.Format(time.DateOnly), day.AddDate(0, 0, days-1).Format(time.DateOnly))
	if len(sums) == 0 {
		fmt.Println("No summaries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DAY\tREADINGS\tMEAN\tMIN\tMAX\tIN RANGE\n")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%d\t%.1f\t%d\t%d\t%.1f%%\n",
			s.Day.Format(time.DateOnly), s.Count, s.Mean, s.Min, s.Max, s.TimeInRangePct)
	}
	return w.Flush()
}
