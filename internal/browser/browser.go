// Package browser opens URLs in the user's default web browser.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// launcher starts cmd without waiting for it. Tests replace it.
var launcher = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// Open opens rawURL in the default web browser on Linux, macOS or Windows.
// Only http and https URLs are accepted.
func Open(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", u.Scheme)
	}

	cmd, err := command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}

	// The browser keeps running after this process exits.
	if err := launcher(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func command(goos, rawURL string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", rawURL), nil
	case "darwin":
		return exec.Command("open", rawURL), nil
	case "windows":
		// rundll32 avoids cmd.exe interpreting & in the query string.
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
