package backend

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"staten/internal/clients"
	"staten/internal/logging"
)

// processName is the executable name of a host client, used to stop it.
func processName(client clients.Client, goos string) string {
	switch client {
	case clients.Claude:
		if goos == "windows" {
			return "Claude.exe"
		}
		return "Claude"
	case clients.Cursor:
		if goos == "windows" {
			return "Cursor.exe"
		}
		return "Cursor"
	}
	return ""
}

// CheckHostInstalled looks for the host application at its configured
// location, falling back to a PATH lookup when no location is known.
func (b *Backend) CheckHostInstalled(ctx context.Context, client clients.Client) (bool, error) {
	if !client.Valid() {
		return false, fmt.Errorf("%w: %d", clients.ErrUnknownClient, int(client))
	}
	if path := b.cfg.HostAppPath(client); path != "" {
		_, err := os.Stat(path)
		return err == nil, nil
	}

	lookup := "which"
	if b.goos == "windows" {
		lookup = "where"
	}
	out, err := b.execCommand(ctx, lookup, strings.ToLower(client.String())).CombinedOutput()
	if err != nil {
		logging.Debugf("%s not found on PATH: %s", client.DisplayName(), strings.TrimSpace(string(out)))
		return false, nil
	}
	return true, nil
}

// RestartHostApp quits the host client if it is running and starts it again.
func (b *Backend) RestartHostApp(ctx context.Context, client clients.Client) error {
	if !client.SupportsRestart() {
		return fmt.Errorf("%w for %s", ErrRestartUnsupported, client.DisplayName())
	}
	name := processName(client, b.goos)
	appPath := b.cfg.HostAppPath(client)

	switch b.goos {
	case "darwin":
		// Quitting fails when the app is not running; that is fine.
		if out, err := b.execCommand(ctx, "osascript", "-e", fmt.Sprintf(`quit app "%s"`, name)).CombinedOutput(); err != nil {
			logging.Debugf("quit %s: %v: %s", name, err, strings.TrimSpace(string(out)))
		}
		target := name
		if appPath != "" {
			target = appPath
		}
		return b.execCommand(ctx, "open", "-a", target).Start()
	case "windows":
		if out, err := b.execCommand(ctx, "taskkill", "/IM", name, "/F").CombinedOutput(); err != nil {
			logging.Debugf("taskkill %s: %v: %s", name, err, strings.TrimSpace(string(out)))
		}
		if appPath == "" {
			return fmt.Errorf("%w: unknown install location of %s", ErrRestartUnsupported, client.DisplayName())
		}
		return b.execCommand(ctx, filepath.Join(appPath, name)).Start()
	}
	return fmt.Errorf("%w on %s", ErrRestartUnsupported, b.goos)
}

// OpenExternalURL opens an http(s) URL in the default browser.
func (b *Backend) OpenExternalURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: only http and https are allowed", raw)
	}

	var runner commandRunner
	switch b.goos {
	case "darwin":
		runner = b.execCommand(ctx, "open", u.String())
	case "windows":
		runner = b.execCommand(ctx, "rundll32", "url.dll,FileProtocolHandler", u.String())
	default:
		runner = b.execCommand(ctx, "xdg-open", u.String())
	}
	return runner.Start()
}
