package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/monitor"
)

var readingCmd = &cobra.Command{
	Use:   "reading",
	Short: "Record and list glucose readings",
}

var readingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a manual fingerstick reading",
	RunE:  runReadingAdd,
}

var readingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent readings",
	RunE:  runReadingList,
}

func init() {
	rootCmd.AddCommand(readingCmd)
	readingCmd.AddCommand(readingAddCmd, readingListCmd)
	readingCmd.PersistentFlags().String("owner", "", "Owner of the readings")
	_ = readingCmd.MarkPersistentFlagRequired("owner")

	readingAddCmd.Flags().IntP("value", "v", 0, "Glucose value in mg/dL")
	readingAddCmd.Flags().StringP("trend", "t", "", "Trend (e.g. stable, rising, falling)")
	readingAddCmd.Flags().String("at", "", "Timestamp in RFC 3339 (default now)")
	_ = readingAddCmd.MarkFlagRequired("value")

	readingListCmd.Flags().Int("hours", 24, "How far back to list")
}

func runReadingAdd(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	value, _ := cmd.Flags().GetInt("value")
	trend, _ := cmd.Flags().GetString("trend")
	atFlag, _ := cmd.Flags().GetString("at")

	at := time.Now()
	if atFlag != "" {
		t, err := time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		at = t
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	reading, alert, err := a.tracker.AddManual(cmd.Context(), owner, value, model.Trend(trend), at)
	if errors.Is(err, monitor.ErrDuplicateReading) {
		return fmt.Errorf("a reading already exists at %s", at.Format(time.RFC3339))
	}
	if reading == nil {
		return fmt.Errorf("add reading: %w", err)
	}

	fmt.Printf("Recorded %d mg/dL (%s) at %s\n", reading.Value, reading.Trend, reading.Timestamp.Format(time.RFC3339))
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: alert check failed: %v\n", err)
	}
	if alert != nil {
		fmt.Printf("ALERT [%s] %s: %s\n", alert.Type, alert.Title, alert.Message)
	}
	return nil
}

func runReadingList(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	hours, _ := cmd.Flags().GetInt("hours")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	readings, err := a.store.FindReadings(cmd.Context(), model.ReadingFilter{
		OwnerID: owner,
		Start:   time.Now().Add(-time.Duration(hours) * time.Hour),
	})
	if err != nil {
		return fmt.Errorf("find readings: %w", err)
	}
	if len(readings) == 0 {
		fmt.Println("No readings.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIMESTAMP\tVALUE\tTREND\tSOURCE\n")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Timestamp.Format("2006-01-02 15:04"), r.Value, r.Trend, r.Source)
	}
	return w.Flush()
}
