package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users, thresholds and care networks from a YAML file",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringP("file", "f", "", "Seed file")
	_ = seedCmd.MarkFlagRequired("file")
}

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID            string                   `yaml:"id"`
	Thresholds    *model.ThresholdSettings `yaml:"thresholds"`
	Notifications map[string]bool          `yaml:"notifications"`
	Care          []seedCare               `yaml:"care"`
}

type seedCare struct {
	Recipient   string            `yaml:"recipient"`
	Status      string            `yaml:"status"`
	Permissions model.Permissions `yaml:"permissions"`
}

// seedStore is the subset of storage the seed command writes to.
type seedStore interface {
	SetThresholds(ctx context.Context, ownerID string, settings model.ThresholdSettings) error
	SaveCareRelationship(ctx context.Context, rel *model.CareRelationship) error
	SetNotificationPreference(ctx context.Context, userID string, category model.NotificationCategory, enabled bool) error
}

func parseSeed(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("user %d: id is required", i)
		}
		if u.Thresholds != nil {
			if err := u.Thresholds.Validate(); err != nil {
				return nil, fmt.Errorf("user %s: %w", u.ID, err)
			}
		}
		for cat := range u.Notifications {
			switch model.NotificationCategory(cat) {
			case model.CategoryGlucoseAlerts, model.CategoryAcknowledgments, model.CategoryAlertResolved:
			default:
				return nil, fmt.Errorf("user %s: unknown notification category %q", u.ID, cat)
			}
		}
		for j, c := range u.Care {
			if c.Status == "" {
				f.Users[i].Care[j].Status = string(model.CareActive)
				continue
			}
			if _, err := parseCareStatus(c.Status); err != nil {
				return nil, fmt.Errorf("user %s care %d: %w", u.ID, j, err)
			}
		}
	}
	return &f, nil
}

// applySeed writes the file's contents and returns how many users it touched.
func applySeed(ctx context.Context, store seedStore, f *seedFile) (int, error) {
	for _, u := range f.Users {
		if u.Thresholds != nil {
			if err := store.SetThresholds(ctx, u.ID, *u.Thresholds); err != nil {
				return 0, err
			}
		}
		for cat, enabled := range u.Notifications {
			if err := store.SetNotificationPreference(ctx, u.ID, model.NotificationCategory(cat), enabled); err != nil {
				return 0, err
			}
		}
		for _, c := range u.Care {
			rel := &model.CareRelationship{
				OwnerID:     u.ID,
				RecipientID: c.Recipient,
				Status:      model.CareStatus(c.Status),
				Permissions: c.Permissions,
			}
			if err := store.SaveCareRelationship(ctx, rel); err != nil {
				return 0, err
			}
		}
	}
	return len(f.Users), nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	f, err := parseSeed(data)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := applySeed(cmd.Context(), a.store, f)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d users\n", n)
	return nil
}
