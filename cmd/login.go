package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"echoauth/internal/browser"
	"echoauth/internal/session"
	"echoauth/pkg/oauth"
)

// Login-specific flags
var (
	loginNoBrowser bool
	loginState     string
	loginTimeout   time.Duration
	loginPrompt    string
)

// openBrowser is replaced in tests.
var openBrowser = browser.Open

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize echoauth with the OAuth provider",
	Long: `Run the OAuth 2.0 authorization code flow.

echoauth starts a listener on the configured redirect URI, opens the
provider's authorization page in your browser and waits for the redirect.
The authorization code is exchanged for tokens, which are stored for later
commands.

Examples:
  echoauth login                       # Authorize with the configured provider
  echoauth login --no-browser          # Print the URL instead of opening it
  echoauth login --prompt login        # Ask the provider to re-authenticate
  echoauth login --timeout 2m          # Give up after two minutes`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL without opening a browser")
	loginCmd.Flags().StringVar(&loginState, "state", "", "Use this state value instead of a random one")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "How long to wait for the redirect (default from config, 10m)")
	loginCmd.Flags().StringVar(&loginPrompt, "prompt", "", "Value of the prompt authorization parameter, e.g. login or consent")
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}

	timeout := env.cfg.CallbackTimeout
	if loginTimeout > 0 {
		timeout = loginTimeout
	}

	out := cmd.OutOrStdout()
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Waiting for authorization in the browser..."

	opts := session.LoginOptions{
		State:   loginState,
		Timeout: timeout,
		OpenURL: func(authURL string) error {
			fmt.Fprintf(out, "Open this URL to authorize echoauth:\n\n  %s\n\n", authURL)
			if !loginNoBrowser {
				if err := openBrowser(authURL); err != nil {
					fmt.Fprintf(out, "%s Could not open a browser: %v\n", text.FgYellow.Sprint("!"), err)
				}
			}
			s.Start()
			return nil
		},
	}
	if loginPrompt != "" {
		opts.AuthParams = map[string]string{"prompt": loginPrompt}
	}

	tokens, err := env.session.Login(cmd.Context(), opts)
	s.Stop()
	if err != nil {
		return err
	}

	printLoginResult(out, tokens, env.store.Dir(), time.Now())
	return nil
}

func printLoginResult(w io.Writer, tokens *oauth.TokenSet, storeDir string, now time.Time) {
	fmt.Fprintf(w, "%s\n", text.FgGreen.Sprint("Authenticated"))
	fmt.Fprintf(w, "  Expires:   %s\n", formatExpiry(tokens.ExpiresAt(), now))
	if scopes := tokens.Scopes(); len(scopes) > 0 {
		fmt.Fprintf(w, "  Scopes:    %s\n", strings.Join(scopes, " "))
	}
	if tokens.HasRefreshToken() {
		fmt.Fprintf(w, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		fmt.Fprintf(w, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (login again on expiry)"))
	}
	fmt.Fprintf(w, "  Stored in: %s\n", storeDir)
}
