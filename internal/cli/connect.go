package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect an owner to an upstream provider",
}

var connectShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Connect with Dexcom Share username and password",
	RunE:  runConnectShare,
}

var connectOAuthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Connect with a Dexcom OAuth authorization code",
	Long: `Without --code, prints the authorization URL to open in a browser.
With --code, exchanges the code returned to the redirect URI for tokens.`,
	RunE: runConnectOAuth,
}

var connectNightscoutCmd = &cobra.Command{
	Use:   "nightscout",
	Short: "Connect a Nightscout site",
	RunE:  runConnectNightscout,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Clear an owner's provider session",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	connectCmd.AddCommand(connectShareCmd, connectOAuthCmd, connectNightscoutCmd)

	connectCmd.PersistentFlags().String("owner", "", "Owner to connect")
	_ = connectCmd.MarkPersistentFlagRequired("owner")

	connectShareCmd.Flags().StringP("username", "u", "", "Share username")
	connectShareCmd.Flags().String("password", "", "Share password")
	connectShareCmd.Flags().String("region", "", "Share region (us, ous, jp)")
	_ = connectShareCmd.MarkFlagRequired("username")
	_ = connectShareCmd.MarkFlagRequired("password")

	connectOAuthCmd.Flags().String("code", "", "Authorization code")
	connectOAuthCmd.Flags().String("state", "", "Opaque state echoed back to the redirect URI")

	connectNightscoutCmd.Flags().String("url", "", "Nightscout site URL")
	connectNightscoutCmd.Flags().String("secret", "", "API secret")
	_ = connectNightscoutCmd.MarkFlagRequired("url")

	disconnectCmd.Flags().String("owner", "", "Owner to disconnect")
	_ = disconnectCmd.MarkFlagRequired("owner")
}

func runConnectShare(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	region, _ := cmd.Flags().GetString("region")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.share.Connect(cmd.Context(), owner, username, password, region); err != nil {
		return fmt.Errorf("connect share: %w", err)
	}
	fmt.Printf("Share connected for %s\n", owner)
	return nil
}

func runConnectOAuth(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	code, _ := cmd.Flags().GetString("code")
	state, _ := cmd.Flags().GetString("state")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if code == "" {
		if state == "" {
			state = owner
		}
		fmt.Println(a.oauth.AuthorizeURL(state))
		return nil
	}

	if err := a.oauth.Connect(cmd.Context(), owner, code); err != nil {
		return fmt.Errorf("connect oauth: %w", err)
	}
	fmt.Printf("OAuth connected for %s\n", owner)
	return nil
}

func runConnectNightscout(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	url, _ := cmd.Flags().GetString("url")
	secret, _ := cmd.Flags().GetString("secret")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.nightscout.Connect(cmd.Context(), owner, url, secret); err != nil {
		return fmt.Errorf("connect nightscout: %w", err)
	}
	fmt.Printf("Nightscout connected for %s\n", owner)
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.registry.Get(model.ProviderKind(args[0]))
	if err != nil {
		return err
	}
	if err := p.Disconnect(cmd.Context(), owner); err != nil {
		return fmt.Errorf("disconnect %s: %w", args[0], err)
	}
	fmt.Printf("%s disconnected for %s\n", args[0], owner)
	return nil
}
