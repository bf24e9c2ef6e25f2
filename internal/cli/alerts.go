package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var alertCmd = &cobra.Command{
	Use:     "alerts",
	Aliases: []string{"alert"},
	Short:   "List, acknowledge and resolve glucose alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's alerts",
	RunE:  runAlertList,
}

var alertAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAck,
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertResolve,
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.AddCommand(alertListCmd, alertAckCmd, alertResolveCmd)

	alertListCmd.Flags().String("owner", "", "Owner whose alerts to list")
	alertListCmd.Flags().StringSlice("status", nil, "Filter by status (active, acknowledged, resolved, expired)")
	alertListCmd.Flags().String("type", "", "Filter by alert type")
	_ = alertListCmd.MarkFlagRequired("owner")

	alertAckCmd.Flags().String("as", "", "Acting user")
	alertAckCmd.Flags().StringP("message", "m", "", "Optional note")
	_ = alertAckCmd.MarkFlagRequired("as")

	alertResolveCmd.Flags().String("as", "", "Acting user")
	_ = alertResolveCmd.MarkFlagRequired("as")
}

func runAlertList(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	alertType, _ := cmd.Flags().GetString("type")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := model.AlertFilter{OwnerID: owner, Type: model.AlertType(alertType)}
	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, model.AlertStatus(s))
	}

	list, err := a.alerts.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No alerts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tCREATED\tTYPE\tSEVERITY\tVALUE\tSTATUS\tACKS\n")
	for _, al := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			al.ID,
			al.CreatedAt.Format("2006-01-02 15:04"),
			al.Type, al.Severity, al.GlucoseValue, al.Status,
			len(al.Acknowledgments),
		)
	}
	return w.Flush()
}

func runAlertAck(cmd *cobra.Command, args []string) error {
	actor, _ := cmd.Flags().GetString("as")
	note, _ := cmd.Flags().GetString("message")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	alert, err := a.fanout.Acknowledge(cmd.Context(), args[0], actor, note)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	fmt.Printf("Alert %s is %s (%d acknowledgments)\n", alert.ID, alert.Status, len(alert.Acknowledgments))
	return nil
}

func runAlertResolve(cmd *cobra.Command, args []string) error {
	actor, _ := cmd.Flags().GetString("as")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	alert, err := a.fanout.Resolve(cmd.Context(), args[0], actor)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	fmt.Printf("Alert %s resolved\n", alert.ID)
	return nil
}
