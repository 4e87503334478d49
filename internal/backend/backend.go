// Package backend is the native side of staten: it edits host client MCP
// configuration files and keeps app settings and flags in sqlite.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/config"
	"staten/internal/database"
	"staten/internal/gateway"
	"staten/internal/logging"
)

var (
	// ErrUnknownApp is returned for names missing from the catalog.
	ErrUnknownApp = errors.New("unknown app")
	// ErrRestartUnsupported is returned when the host cannot be restarted here.
	ErrRestartUnsupported = errors.New("restart not supported")
)

// Runtime name that resolves to the staten binary itself.
const selfRuntime = "staten"

// Backend implements gateway.Gateway against the local machine.
type Backend struct {
	cfg         *config.Config
	catalog     *catalog.Catalog
	store       *database.Store
	execCommand execCommandFunc
	goos        string
	executable  string

	// mu serializes read-modify-write cycles on host config files.
	mu sync.Mutex
}

var _ gateway.Gateway = (*Backend)(nil)

// Option customizes a Backend.
type Option func(*Backend)

// WithExecutable sets the binary registered for the bootstrap app.
func WithExecutable(path string) Option {
	return func(b *Backend) {
		b.executable = path
	}
}

func withExecCommand(fn execCommandFunc) Option {
	return func(b *Backend) {
		b.execCommand = fn
	}
}

func withGOOS(goos string) Option {
	return func(b *Backend) {
		b.goos = goos
	}
}

// New returns a backend. The store must stay open for the backend's lifetime.
func New(cfg *config.Config, cat *catalog.Catalog, store *database.Store, opts ...Option) (*Backend, error) {
	if cfg == nil || cat == nil || store == nil {
		return nil, errors.New("config, catalog and store are required")
	}
	b := &Backend{
		cfg:         cfg,
		catalog:     cat,
		store:       store,
		execCommand: defaultExecCommand,
		goos:        runtime.GOOS,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.executable == "" {
		if exe, err := os.Executable(); err == nil {
			b.executable = exe
		} else {
			b.executable = selfRuntime
		}
	}
	return b, nil
}

func (b *Backend) app(name string) (catalog.App, error) {
	app, err := b.catalog.Get(name)
	if err != nil {
		return catalog.App{}, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return app, nil
}

func (b *Backend) configPath(client clients.Client) (string, error) {
	path := b.cfg.HostConfigPath(client)
	if path == "" {
		return "", fmt.Errorf("%w: %d", clients.ErrUnknownClient, int(client))
	}
	return path, nil
}

// track records a mutation in the operation log around fn.
func (b *Backend) track(ctx context.Context, op, app string, client clients.Client, fn func() error) error {
	id, err := b.store.RecordOperation(ctx, op, app, client.String())
	if err != nil {
		logging.Warnf("Failed to record %s of %s: %v", op, app, err)
		return fn()
	}
	opErr := fn()
	if err := b.store.CompleteOperation(ctx, id, opErr); err != nil {
		logging.Warnf("Failed to complete operation %s: %v", id, err)
	}
	return opErr
}

// Install registers app in the client's host config. A non-nil env is saved
// first and then used, together with previously stored values, to expand
// ${NAME} placeholders in the server arguments.
func (b *Backend) Install(ctx context.Context, name string, client clients.Client, env map[string]string) error {
	app, err := b.app(name)
	if err != nil {
		return err
	}
	return b.track(ctx, "install", name, client, func() error {
		if env != nil {
			if err := b.store.SaveAppEnv(ctx, name, client.String(), env); err != nil {
				return err
			}
		}
		return b.register(ctx, app, client)
	})
}

func (b *Backend) register(ctx context.Context, app catalog.App, client clients.Client) error {
	path, err := b.configPath(client)
	if err != nil {
		return err
	}
	stored, err := b.store.AppEnv(ctx, app.Name, client.String())
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := readHostConfig(path)
	if err != nil {
		return err
	}
	env := mergeEnv(doc.entryEnv(app.Server.Key), stored)
	doc.set(app.Server.Key, serverEntry{
		Command: b.command(app.Server.Runtime),
		Args:    expandArgs(app.Server.Args, env),
		Env:     env,
	})
	if err := writeHostConfig(path, doc); err != nil {
		return err
	}
	logging.Infof("Installed %s in %s", app.Name, client.DisplayName())
	return nil
}

func (b *Backend) command(runtimeName string) string {
	if runtimeName == selfRuntime {
		return b.executable
	}
	return runtimeName
}

// Uninstall removes app from the client's host config. Removing an app
// that is not registered succeeds.
func (b *Backend) Uninstall(ctx context.Context, name string, client clients.Client) error {
	app, err := b.app(name)
	if err != nil {
		return err
	}
	path, err := b.configPath(client)
	if err != nil {
		return err
	}
	return b.track(ctx, "uninstall", name, client, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		doc, err := readHostConfig(path)
		if err != nil {
			return err
		}
		if !doc.remove(app.Server.Key) {
			return nil
		}
		if err := writeHostConfig(path, doc); err != nil {
			return err
		}
		logging.Infof("Uninstalled %s from %s", app.Name, client.DisplayName())
		return nil
	})
}

// IsInstalled reports whether app is registered in the client's host config.
func (b *Backend) IsInstalled(_ context.Context, name string, client clients.Client) (bool, error) {
	app, err := b.app(name)
	if err != nil {
		return false, err
	}
	doc, err := b.readConfig(client)
	if err != nil {
		return false, err
	}
	return doc.has(app.Server.Key), nil
}

func (b *Backend) readConfig(client clients.Client) (hostConfig, error) {
	path, err := b.configPath(client)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return readHostConfig(path)
}

// GetAppEnv returns the stored configuration of app, over whatever env the
// host config already carries for it.
func (b *Backend) GetAppEnv(ctx context.Context, name string, client clients.Client) (map[string]string, error) {
	app, err := b.app(name)
	if err != nil {
		return nil, err
	}
	doc, err := b.readConfig(client)
	if err != nil {
		return nil, err
	}
	stored, err := b.store.AppEnv(ctx, name, client.String())
	if err != nil {
		return nil, err
	}
	return mergeEnv(doc.entryEnv(app.Server.Key), stored), nil
}

// SaveAppEnv replaces the stored configuration of app. An installed app is
// re-registered so the host picks up the new values.
func (b *Backend) SaveAppEnv(ctx context.Context, name string, client clients.Client, env map[string]string) error {
	app, err := b.app(name)
	if err != nil {
		return err
	}
	return b.track(ctx, "save_env", name, client, func() error {
		if err := b.store.SaveAppEnv(ctx, name, client.String(), env); err != nil {
			return err
		}
		installed, err := b.IsInstalled(ctx, name, client)
		if err != nil || !installed {
			return err
		}
		return b.register(ctx, app, client)
	})
}

// InstallBootstrapApp registers the onboarding companion.
func (b *Backend) InstallBootstrapApp(ctx context.Context, client clients.Client) error {
	if err := b.Install(ctx, catalog.BootstrapAppName, client, nil); err != nil {
		return err
	}
	return b.store.SetFlag(ctx, database.FlagBootstrapInstalled, true)
}

// UninstallBootstrapApp removes the onboarding companion.
func (b *Backend) UninstallBootstrapApp(ctx context.Context, client clients.Client) error {
	if err := b.Uninstall(ctx, catalog.BootstrapAppName, client); err != nil {
		return err
	}
	return b.store.SetFlag(ctx, database.FlagBootstrapInstalled, false)
}

// CheckOnboardingActionCompleted reads the completion flag.
func (b *Backend) CheckOnboardingActionCompleted(ctx context.Context) (bool, error) {
	return b.store.Flag(ctx, database.FlagOnboardingCompleted)
}

// MarkOnboardingActionCompleted sets the completion flag.
func (b *Backend) MarkOnboardingActionCompleted(ctx context.Context) error {
	return b.store.SetFlag(ctx, database.FlagOnboardingCompleted, true)
}

// ResetOnboardingCompleted clears the completion flag.
func (b *Backend) ResetOnboardingCompleted(ctx context.Context) error {
	return b.store.SetFlag(ctx, database.FlagOnboardingCompleted, false)
}

// GetAppStatuses reports, for every catalog app, whether it is registered in
// the client and whether all of its setup keys have a stored value.
func (b *Backend) GetAppStatuses(ctx context.Context, client clients.Client) (gateway.Statuses, error) {
	doc, err := b.readConfig(client)
	if err != nil {
		return gateway.Statuses{}, err
	}
	statuses := gateway.Statuses{
		Installed:  make(map[string]bool),
		Configured: make(map[string]bool),
	}
	for _, name := range b.catalog.Names() {
		app, _ := b.catalog.Get(name)
		statuses.Installed[name] = doc.has(app.Server.Key)

		env, err := b.store.AppEnv(ctx, name, client.String())
		if err != nil {
			return gateway.Statuses{}, err
		}
		env = mergeEnv(doc.entryEnv(app.Server.Key), env)
		configured := true
		for _, key := range app.SetupKeys() {
			if _, ok := env[key]; !ok {
				configured = false
				break
			}
		}
		statuses.Configured[name] = configured
	}
	return statuses, nil
}
