package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var careCmd = &cobra.Command{
	Use:   "care",
	Short: "Manage an owner's care network",
}

var careAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a care-network member",
	RunE:  runCareAdd,
}

var careListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's care network",
	RunE:  runCareList,
}

func init() {
	rootCmd.AddCommand(careCmd)
	careCmd.AddCommand(careAddCmd, careListCmd)
	careCmd.PersistentFlags().String("owner", "", "Owner of the care network")
	_ = careCmd.MarkPersistentFlagRequired("owner")

	careAddCmd.Flags().String("recipient", "", "Recipient user id (empty for a pending invite)")
	careAddCmd.Flags().String("status", string(model.CareActive), "Status (pending, active, paused)")
	careAddCmd.Flags().Bool("low", true, "Receive low alerts")
	careAddCmd.Flags().Bool("high", true, "Receive high alerts")
}

func parseCareStatus(s string) (model.CareStatus, error) {
	switch st := model.CareStatus(s); st {
	case model.CarePending, model.CareActive, model.CarePaused:
		return st, nil
	}
	return "", &model.ValidationError{Field: "status", Value: s, Reason: "must be pending, active or paused"}
}

func runCareAdd(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	recipient, _ := cmd.Flags().GetString("recipient")
	statusFlag, _ := cmd.Flags().GetString("status")
	low, _ := cmd.Flags().GetBool("low")
	high, _ := cmd.Flags().GetBool("high")

	status, err := parseCareStatus(statusFlag)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	rel := &model.CareRelationship{
		OwnerID:     owner,
		RecipientID: recipient,
		Status:      status,
		Permissions: model.Permissions{ReceiveLowAlerts: low, ReceiveHighAlerts: high},
	}
	if err := a.store.SaveCareRelationship(cmd.Context(), rel); err != nil {
		return err
	}
	fmt.Printf("Care relationship %s created\n", rel.ID)
	return nil
}

func runCareList(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	rels, err := a.store.ListCareRelationships(cmd.Context(), owner)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Println("No care relationships.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tRECIPIENT\tSTATUS\tLOW\tHIGH\n")
	for _, r := range rels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n",
			r.ID, r.RecipientID, r.Status, r.Permissions.ReceiveLowAlerts, r.Permissions.ReceiveHighAlerts)
	}
	return w.Flush()
}
