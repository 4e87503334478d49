package cli

import (
	"context"

	"staten/internal/clients"
)

// Manager abstracts core operations for the CLI.
type Manager interface {
	ClientShow(ctx context.Context) (ClientStatus, error)
	ClientUse(ctx context.Context, client clients.Client) error

	AppList(ctx context.Context, includeHidden bool) ([]App, error)
	AppStatus(ctx context.Context, name string) (App, error)
	AppToggle(ctx context.Context, name string, opts ToggleOptions) <-chan ProgressEvent
	AppConfigure(ctx context.Context, name string, opts ToggleOptions) <-chan ProgressEvent
	AppEnv(ctx context.Context, name string) (map[string]string, error)

	OnboardingStatus(ctx context.Context) (OnboardingStatus, error)
	OnboardingRun(ctx context.Context, opts RunOptions) <-chan ProgressEvent
	OnboardingComplete(ctx context.Context) error
	OnboardingReset(ctx context.Context) <-chan ProgressEvent
	OnboardingBootstrap(ctx context.Context, enabled bool) <-chan ProgressEvent

	ServeMCP(ctx context.Context) error
	RunUI(ctx context.Context) error
}
