package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutAll bool

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored tokens",
	Long: `Remove the stored tokens of the configured client.

Tokens are only deleted locally; they are not revoked at the provider and
stay valid there until they expire.

Examples:
  echoauth logout          # Forget the configured client's tokens
  echoauth logout --all    # Forget every stored token`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Remove the tokens of every client")
}

func runLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if logoutAll {
		cfg, err := loadConfig(cmd, false)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		records, err := store.List()
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := store.Delete(record.Key()); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Removed %d stored token set(s).\n", len(records))
		return nil
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := env.store.Delete(env.session.Key()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed stored tokens for client %s at %s.\n", env.cfg.ClientID, env.cfg.TokenURI)
	return nil
}
