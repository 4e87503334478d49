// Package gateway defines the command channel to the native backend.
package gateway

import (
	"context"

	"staten/internal/clients"
)

// Statuses reports per-app state for one client, keyed by app name.
type Statuses struct {
	Installed  map[string]bool `json:"installed"`
	Configured map[string]bool `json:"configured"`
}

// Gateway issues named commands to the backend. Every method may fail with an
// implementation-defined error; callers treat any failure as recoverable.
type Gateway interface {
	Install(ctx context.Context, app string, client clients.Client, env map[string]string) error
	Uninstall(ctx context.Context, app string, client clients.Client) error
	IsInstalled(ctx context.Context, app string, client clients.Client) (bool, error)

	GetAppEnv(ctx context.Context, app string, client clients.Client) (map[string]string, error)
	SaveAppEnv(ctx context.Context, app string, client clients.Client, env map[string]string) error

	InstallBootstrapApp(ctx context.Context, client clients.Client) error
	UninstallBootstrapApp(ctx context.Context, client clients.Client) error

	CheckHostInstalled(ctx context.Context, client clients.Client) (bool, error)
	CheckOnboardingActionCompleted(ctx context.Context) (bool, error)
	ResetOnboardingCompleted(ctx context.Context) error

	RestartHostApp(ctx context.Context, client clients.Client) error
	OpenExternalURL(ctx context.Context, url string) error

	GetAppStatuses(ctx context.Context, client clients.Client) (Statuses, error)
}
