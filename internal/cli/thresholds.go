package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Manage personal alert thresholds",
}

var thresholdsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a user's low/high thresholds",
	RunE:  runThresholdsSet,
}

var thresholdsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's effective thresholds",
	RunE:  runThresholdsShow,
}

func init() {
	rootCmd.AddCommand(thresholdsCmd)
	thresholdsCmd.AddCommand(thresholdsSetCmd, thresholdsShowCmd)
	thresholdsCmd.PersistentFlags().String("user", "", "User id")
	_ = thresholdsCmd.MarkPersistentFlagRequired("user")

	thresholdsSetCmd.Flags().Int("low", model.NewUserLow, "Low threshold in mg/dL")
	thresholdsSetCmd.Flags().Int("high", model.NewUserHigh, "High threshold in mg/dL")
	thresholdsSetCmd.Flags().Int("high-delay", 0, "Minutes above high before a sustained-high alert (0 alerts immediately)")
}

func runThresholdsSet(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")
	low, _ := cmd.Flags().GetInt("low")
	high, _ := cmd.Flags().GetInt("high")
	delay, _ := cmd.Flags().GetInt("high-delay")

	settings := model.ThresholdSettings{Low: low, High: high, HighAlertDelayMinutes: delay}
	if err := settings.Validate(); err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SetThresholds(cmd.Context(), user, settings); err != nil {
		return err
	}
	fmt.Printf("Thresholds for %s: low %d, high %d, high delay %dm\n", user, low, high, delay)
	return nil
}

func runThresholdsShow(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := a.store.GetThresholds(cmd.Context(), user)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	source := "personal"
	if stored == nil {
		source = "fallback"
	}
	got := stored.Resolved()
	fmt.Printf("Thresholds for %s (%s): low %d, high %d, high delay %dm\n",
		user, source, got.Low, got.High, got.HighAlertDelayMinutes)
	return nil
}
