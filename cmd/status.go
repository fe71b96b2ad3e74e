package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"echoauth/internal/tokenstore"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored tokens",
	Long: `Show the tokens stored for each client and provider.

Only metadata is shown: expiry, scopes and whether a refresh token is held.
The row of the configured client is marked with *.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	active := tokenstore.Key{TokenURI: cfg.TokenURI, ClientID: cfg.ClientID}
	renderStatus(cmd.OutOrStdout(), records, active, time.Now())
	return nil
}

func renderStatus(w io.Writer, records []*tokenstore.Record, active tokenstore.Key, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No stored tokens. Run: echoauth login"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		"",
		text.FgHiCyan.Sprint("TOKEN ENDPOINT"),
		text.FgHiCyan.Sprint("CLIENT"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
		text.FgHiCyan.Sprint("SCOPES"),
		text.FgHiCyan.Sprint("SAVED"),
	})

	for _, record := range records {
		marker := ""
		if record.Key() == active {
			marker = text.FgGreen.Sprint("*")
		}
		refresh := text.FgYellow.Sprint("no")
		if record.Tokens.HasRefreshToken() {
			refresh = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{
			marker,
			record.TokenURI,
			record.ClientID,
			formatExpiry(record.Tokens.ExpiresAt(), now),
			refresh,
			strings.Join(record.Tokens.Scopes(), " "),
			record.SavedAt.Local().Format(time.DateTime),
		})
	}
	t.Render()
}
