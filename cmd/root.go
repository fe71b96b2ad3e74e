package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"echoauth/internal/tokenstore"
	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no usable tokens are stored; run login.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow or a token request failed.
	ExitCodeAuthFailed = 3
	// ExitCodeConfigError indicates missing or invalid configuration.
	ExitCodeConfigError = 4
)

// Global flags
var (
	configPath  string
	envFilePath string
	logLevel    string
	logFormat   string
)

// rootCmd represents the base command for the echoauth application.
var rootCmd = &cobra.Command{
	Use:   "echoauth",
	Short: "OAuth 2.0 authorization code client for the demo echo API",
	Long: `echoauth obtains OAuth 2.0 tokens with the authorization code grant and
uses them to call a protected resource server.

login opens the provider's consent page in your browser and receives the
redirect on a local listener. Tokens are stored under ~/.config/echoauth/tokens
and used by get and post until they are refreshed or removed with logout.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(cmd, "", "")
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "echoauth version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var configErr *oauth.ConfigError
	if errors.As(err, &configErr) {
		return ExitCodeConfigError
	}

	if errors.Is(err, oauth.ErrNotAuthenticated) ||
		errors.Is(err, oauth.ErrNoRefreshToken) ||
		errors.Is(err, tokenstore.ErrNotFound) {
		return ExitCodeAuthRequired
	}

	var (
		timeoutErr   *oauth.CallbackTimeoutError
		mismatchErr  *oauth.StateMismatchError
		deniedErr    *oauth.AuthorizationDeniedError
		serverErr    *oauth.AuthServerError
		malformedErr *oauth.MalformedResponseError
	)
	if errors.As(err, &timeoutErr) ||
		errors.As(err, &mismatchErr) ||
		errors.As(err, &deniedErr) ||
		errors.As(err, &serverErr) ||
		errors.As(err, &malformedErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// initLogging configures the logger from the global flags. Values from the
// config file apply unless the flag was given explicitly.
func initLogging(cmd *cobra.Command, configLevel, configFormat string) error {
	levelName := logLevel
	if !cmd.Flags().Changed("log-level") && configLevel != "" {
		levelName = configLevel
	}
	formatName := logFormat
	if !cmd.Flags().Changed("log-format") && configFormat != "" {
		formatName = configFormat
	}

	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return &oauth.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	format, err := logging.ParseFormat(formatName)
	if err != nil {
		return &oauth.ConfigError{Field: "log_format", Reason: err.Error()}
	}
	logging.Init(level, format, cmd.ErrOrStderr())
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/echoauth/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", "", "dotenv file with ECHOAUTH_* variables (default is ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(newVersionCmd())
}
