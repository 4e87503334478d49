// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/gateway"
)

// Command names recorded by Fake.
const (
	CmdInstall            = "install"
	CmdUninstall          = "uninstall"
	CmdIsInstalled        = "is_installed"
	CmdGetAppEnv          = "get_app_env"
	CmdSaveAppEnv         = "save_app_env"
	CmdInstallBootstrap   = "install_bootstrap_app"
	CmdUninstallBootstrap = "uninstall_bootstrap_app"
	CmdCheckHost          = "check_host_installed"
	CmdCheckOnboarding    = "check_onboarding_completed"
	CmdResetOnboarding    = "reset_onboarding_completed"
	CmdRestartHost        = "restart_host_app"
	CmdOpenURL            = "open_external_url"
	CmdGetAppStatuses     = "get_app_statuses"
)

// Call is one recorded command.
type Call struct {
	Command string
	App     string
	Client  clients.Client
	Env     map[string]string
	URL     string
}

// Fake is a thread-safe gateway backed by maps. Errors set in Fail are
// returned by the matching command without changing state.
type Fake struct {
	mu sync.Mutex

	Installed     map[string]bool
	Env           map[string]map[string]string
	HostInstalled bool
	Completed     bool
	Fail          map[string]error

	// OnCall, when set, runs after a command is recorded and before it returns.
	OnCall func(Call)

	calls []Call
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Installed: make(map[string]bool),
		Env:       make(map[string]map[string]string),
		Fail:      make(map[string]error),
	}
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	err := f.Fail[c.Command]
	hook := f.OnCall
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

// SetFail makes command fail with err; nil clears it.
func (f *Fake) SetFail(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Fail, command)
		return
	}
	f.Fail[command] = err
}

// SetCompleted sets the onboarding action flag.
func (f *Fake) SetCompleted(done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Completed = done
}

// SetHostInstalled sets the host detection result.
func (f *Fake) SetHostInstalled(installed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HostInstalled = installed
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times command was issued.
func (f *Fake) Count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Command == command {
			n++
		}
	}
	return n
}

// Last returns the most recent call of command.
func (f *Fake) Last(command string) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Command == command {
			return f.calls[i], true
		}
	}
	return Call{}, false
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func key(app string, client clients.Client) string {
	return client.String() + "/" + app
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func (f *Fake) Install(_ context.Context, app string, client clients.Client, env map[string]string) error {
	if err := f.record(Call{Command: CmdInstall, App: app, Client: client, Env: copyEnv(env)}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Installed[key(app, client)] = true
	if env != nil {
		f.Env[key(app, client)] = copyEnv(env)
	}
	return nil
}

func (f *Fake) Uninstall(_ context.Context, app string, client clients.Client) error {
	if err := f.record(Call{Command: CmdUninstall, App: app, Client: client}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Installed, key(app, client))
	return nil
}

// MarkInstalled seeds installed state without recording a call.
func (f *Fake) MarkInstalled(app string, client clients.Client, installed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if installed {
		f.Installed[key(app, client)] = true
	} else {
		delete(f.Installed, key(app, client))
	}
}

func (f *Fake) IsInstalled(_ context.Context, app string, client clients.Client) (bool, error) {
	if err := f.record(Call{Command: CmdIsInstalled, App: app, Client: client}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Installed[key(app, client)], nil
}

func (f *Fake) GetAppEnv(_ context.Context, app string, client clients.Client) (map[string]string, error) {
	if err := f.record(Call{Command: CmdGetAppEnv, App: app, Client: client}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyEnv(f.Env[key(app, client)]), nil
}

// SeedEnv stores env for (app, client) without recording a call.
func (f *Fake) SeedEnv(app string, client clients.Client, env map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Env[key(app, client)] = copyEnv(env)
}

func (f *Fake) SaveAppEnv(_ context.Context, app string, client clients.Client, env map[string]string) error {
	if err := f.record(Call{Command: CmdSaveAppEnv, App: app, Client: client, Env: copyEnv(env)}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Env[key(app, client)] = copyEnv(env)
	return nil
}

func (f *Fake) InstallBootstrapApp(_ context.Context, client clients.Client) error {
	if err := f.record(Call{Command: CmdInstallBootstrap, App: catalog.BootstrapAppName, Client: client}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Installed[key(catalog.BootstrapAppName, client)] = true
	return nil
}

func (f *Fake) UninstallBootstrapApp(_ context.Context, client clients.Client) error {
	if err := f.record(Call{Command: CmdUninstallBootstrap, App: catalog.BootstrapAppName, Client: client}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Installed, key(catalog.BootstrapAppName, client))
	return nil
}

func (f *Fake) CheckHostInstalled(_ context.Context, client clients.Client) (bool, error) {
	if err := f.record(Call{Command: CmdCheckHost, Client: client}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HostInstalled, nil
}

func (f *Fake) CheckOnboardingActionCompleted(_ context.Context) (bool, error) {
	if err := f.record(Call{Command: CmdCheckOnboarding}); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Completed, nil
}

func (f *Fake) ResetOnboardingCompleted(_ context.Context) error {
	if err := f.record(Call{Command: CmdResetOnboarding}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Completed = false
	return nil
}

func (f *Fake) RestartHostApp(_ context.Context, client clients.Client) error {
	return f.record(Call{Command: CmdRestartHost, Client: client})
}

func (f *Fake) OpenExternalURL(_ context.Context, url string) error {
	return f.record(Call{Command: CmdOpenURL, URL: url})
}

func (f *Fake) GetAppStatuses(_ context.Context, client clients.Client) (gateway.Statuses, error) {
	if err := f.record(Call{Command: CmdGetAppStatuses, Client: client}); err != nil {
		return gateway.Statuses{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := gateway.Statuses{Installed: map[string]bool{}, Configured: map[string]bool{}}
	prefix := client.String() + "/"
	for k, v := range f.Installed {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			statuses.Installed[name] = v
		}
	}
	for k := range f.Env {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			statuses.Configured[name] = true
		}
	}
	return statuses, nil
}
