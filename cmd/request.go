package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"echoauth/internal/session"
	"echoauth/pkg/oauth"
)

// Request flags, shared by get and post
var (
	requestData        string
	requestContentType string
	requestHeaders     []string
	requestShowHeaders bool
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Send an authenticated GET request",
	Long: `Send a GET request with the stored access token.

The URL defaults to resourceUrl from the configuration. The response is
printed whatever its status; JSON bodies are indented.

Examples:
  echoauth get                                         # GET the configured resource
  echoauth get https://api.example.com/v1/things -i    # Include response headers`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRequest(http.MethodGet),
}

// postCmd represents the post command
var postCmd = &cobra.Command{
	Use:   "post [url]",
	Short: "Send an authenticated POST request",
	Long: `Send a POST request with the stored access token.

Examples:
  echoauth post --data '{"name":"thing"}'              # POST JSON to the configured resource
  echoauth post --data @thing.json                     # Read the body from a file
  echoauth post --data - < thing.json                  # Read the body from stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRequest(http.MethodPost),
}

func init() {
	for _, c := range []*cobra.Command{getCmd, postCmd} {
		c.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "Extra request header as 'Name: value' (repeatable)")
		c.Flags().BoolVarP(&requestShowHeaders, "show-headers", "i", false, "Print response headers")
	}
	postCmd.Flags().StringVarP(&requestData, "data", "d", "", "Request body; @file reads a file, - reads stdin")
	postCmd.Flags().StringVar(&requestContentType, "content-type", "application/json", "Content-Type of the request body")
}

func runRequest(method string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := env.resume(); err != nil {
			return err
		}

		target := env.cfg.ResourceURL
		if len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			return &oauth.ConfigError{Field: "resource_url", Reason: "must be set or passed as an argument"}
		}

		header, err := parseHeaders(requestHeaders)
		if err != nil {
			return err
		}
		req := session.Request{Method: method, URL: target, Header: header}
		if method == http.MethodPost {
			if req.Body, err = readBody(requestData, cmd.InOrStdin()); err != nil {
				return err
			}
			if requestContentType != "" {
				req.Header.Set("Content-Type", requestContentType)
			}
		}

		resp, err := env.session.Do(cmd.Context(), req)
		if err != nil {
			return err
		}
		printResponse(cmd.OutOrStdout(), resp, requestShowHeaders)
		return responseError(resp)
	}
}

// parseHeaders turns "Name: value" strings into a header.
func parseHeaders(values []string) (http.Header, error) {
	header := http.Header{}
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want 'Name: value'", v)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}

func readBody(data string, stdin io.Reader) ([]byte, error) {
	switch {
	case data == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(data, "@"):
		body, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		return body, nil
	default:
		return []byte(data), nil
	}
}

// responseError reports an error status so the exit code reflects it.
// The response has already been printed.
func responseError(resp *session.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("resource server rejected the access token: %w", oauth.ErrNotAuthenticated)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

func printResponse(w io.Writer, resp *session.Response, showHeaders bool) {
	fmt.Fprintf(w, "HTTP %s\n", statusColor(resp.StatusCode).Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))

	if showHeaders {
		names := make([]string, 0, len(resp.Header))
		for name := range resp.Header {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, value := range resp.Header[name] {
				fmt.Fprintf(w, "%s: %s\n", text.FgHiCyan.Sprint(name), value)
			}
		}
	}

	if c := resp.Challenge; c != nil {
		switch {
		case c.IsInvalidToken():
			fmt.Fprintf(w, "%s access token rejected (%s); run: echoauth refresh\n", text.FgYellow.Sprint("!"), c.ErrorDescription)
		case c.IsInsufficientScope():
			fmt.Fprintf(w, "%s insufficient scope; required: %s\n", text.FgYellow.Sprint("!"), c.Scope)
		}
	}

	if len(resp.Body) > 0 {
		fmt.Fprintln(w)
		var pretty bytes.Buffer
		if json.Indent(&pretty, resp.Body, "", "  ") == nil {
			fmt.Fprintln(w, pretty.String())
		} else {
			fmt.Fprintln(w, strings.TrimRight(string(resp.Body), "\n"))
		}
	}

	if remaining, ok := tokenContextExpiry(resp.Body); ok {
		fmt.Fprintf(w, "\nAccess token expires in %d minutes.\n", int(remaining.Minutes()))
	}
}

func statusColor(code int) text.Color {
	switch {
	case code >= 200 && code < 300:
		return text.FgGreen
	case code >= 400:
		return text.FgRed
	default:
		return text.FgYellow
	}
}

// tokenContextExpiry reads the remaining token lifetime the demo echo API
// reports. tokenContext is itself a JSON document inside a string field.
func tokenContextExpiry(body []byte) (time.Duration, bool) {
	var envelope struct {
		TokenContext string `json:"tokenContext"`
	}
	if json.Unmarshal(body, &envelope) != nil || envelope.TokenContext == "" {
		return 0, false
	}
	var tc struct {
		ExpiresIn *float64 `json:"expires_in"`
	}
	if json.Unmarshal([]byte(envelope.TokenContext), &tc) != nil || tc.ExpiresIn == nil {
		return 0, false
	}
	return time.Duration(*tc.ExpiresIn * float64(time.Second)), true
}
