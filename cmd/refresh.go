package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

var refreshToken string

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the stored refresh token for new tokens",
	Long: `Exchange the stored refresh token for a new access token.

Token values are never printed; the output shows short fingerprints so you
can tell whether the provider issued new tokens.

Examples:
  echoauth refresh                          # Refresh the stored tokens
  echoauth refresh --refresh-token "$RT"    # Start from a refresh token obtained elsewhere`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token to use instead of the stored one")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}

	var previous, next *oauth.TokenSet
	if refreshToken != "" {
		previous = &oauth.TokenSet{RefreshToken: refreshToken}
		next, err = env.session.InitWithRefreshToken(cmd.Context(), refreshToken)
	} else {
		if err := env.resume(); err != nil {
			return err
		}
		previous = env.session.Current()
		next, err = env.session.Refresh(cmd.Context())
	}
	if err != nil {
		return err
	}

	printRefreshResult(cmd.OutOrStdout(), previous, next, time.Now())
	return nil
}

func printRefreshResult(w io.Writer, previous, next *oauth.TokenSet, now time.Time) {
	fmt.Fprintf(w, "%s\n", text.FgGreen.Sprint("Tokens refreshed"))
	fmt.Fprintf(w, "  Access token:  %s -> %s\n", logging.Fingerprint(previous.AccessToken), logging.Fingerprint(next.AccessToken))

	rotation := text.FgYellow.Sprint("unchanged")
	switch {
	case next.RefreshToken == "":
		rotation = text.FgYellow.Sprint("none (login again on expiry)")
	case next.RefreshToken != previous.RefreshToken:
		rotation = text.FgGreen.Sprint("rotated")
	}
	fmt.Fprintf(w, "  Refresh token: %s\n", rotation)
	fmt.Fprintf(w, "  Expires:       %s\n", formatExpiry(next.ExpiresAt(), now))
}
