// Package install owns the install/uninstall toggle of a single app for the
// selected host client.
package install

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/configure"
	"staten/internal/gateway"
	"staten/internal/logging"
	"staten/internal/notify"
)

var (
	// ErrBusy is returned while another operation for the same app is in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrNotConfigurable is returned when the caller marked the app unavailable.
	ErrNotConfigurable = errors.New("app is not available yet")
	// ErrClosed is returned when the controller was torn down mid-operation.
	ErrClosed = errors.New("controller closed")
	// ErrNoPrompt is returned by ConfirmConfiguration without an open prompt.
	ErrNoPrompt = errors.New("no configuration prompt open")
)

const (
	actionInstall   = "install"
	actionUninstall = "uninstall"
)

// Outcome reports what a toggle did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeInstalled
	OutcomeUninstalled
	// OutcomeConfigurationRequired means a configuration prompt was opened
	// and nothing was sent to the backend.
	OutcomeConfigurationRequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeInstalled:
		return "installed"
	case OutcomeUninstalled:
		return "uninstalled"
	case OutcomeConfigurationRequired:
		return "configuration required"
	}
	return "unknown"
}

// Session yields the host client selected at call time.
type Session interface {
	Client() clients.Client
}

// Navigator routes the user to an app's configuration view.
type Navigator interface {
	OpenConfiguration(ctx context.Context, app catalog.App) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, app catalog.App) error

// OpenConfiguration implements Navigator.
func (f NavigatorFunc) OpenConfiguration(ctx context.Context, app catalog.App) error {
	return f(ctx, app)
}

// Deps are the collaborators of a Controller. Navigator and Guard are optional.
type Deps struct {
	Gateway   gateway.Gateway
	Session   Session
	Notifier  notify.Notifier
	Navigator Navigator
	Guard     *Guard
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfigurable sets the externally supplied availability of the app.
func WithConfigurable(ok bool) Option {
	return func(c *Controller) {
		c.configurable = ok
	}
}

// Controller toggles one app. Its mutex is never held across a gateway call.
type Controller struct {
	app       catalog.App
	gateway   gateway.Gateway
	session   Session
	notifier  notify.Notifier
	navigator Navigator
	guard     *Guard

	mu           sync.Mutex
	installed    bool
	configurable bool
	busy         bool
	closed       bool
	prompt       *configure.Collector
}

// New returns a controller for app whose current state is installed.
func New(app catalog.App, installed bool, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		app:          app,
		gateway:      deps.Gateway,
		session:      deps.Session,
		notifier:     deps.Notifier,
		navigator:    deps.Navigator,
		guard:        deps.Guard,
		installed:    installed,
		configurable: true,
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.guard == nil {
		c.guard = NewGuard()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// App returns the controlled app.
func (c *Controller) App() catalog.App {
	return c.app
}

// Installed reports the last authoritative installed state.
func (c *Controller) Installed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed
}

// Busy reports whether an operation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// SetConfigurable updates the externally supplied availability of the app.
func (c *Controller) SetConfigurable(ok bool) {
	c.mu.Lock()
	c.configurable = ok
	c.mu.Unlock()
}

// Prompt returns the open configuration prompt, or nil.
func (c *Controller) Prompt() *configure.Collector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// Toggle uninstalls an installed app, installs an app without setup fields,
// and opens a configuration prompt for an app that needs one. At most one
// mutation is issued per call.
func (c *Controller) Toggle(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return OutcomeNone, err
	}
	installed := c.installed

	if !installed && c.app.RequiresSetup() {
		if c.prompt != nil {
			c.mu.Unlock()
			return OutcomeConfigurationRequired, nil
		}
		prompt := configure.New(c.app, c.session, c.gateway, c.notifier)
		c.prompt = prompt
		c.busy = true
		c.mu.Unlock()

		prompt.Load(ctx)

		c.mu.Lock()
		c.busy = false
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return OutcomeNone, ErrClosed
		}
		return OutcomeConfigurationRequired, nil
	}

	if !c.guard.TryAcquire(c.app.Name) {
		c.mu.Unlock()
		return OutcomeNone, ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer c.release()

	client := c.session.Client()
	action := actionInstall
	var err error
	if installed {
		action = actionUninstall
		err = c.gateway.Uninstall(ctx, c.app.Name, client)
	} else {
		err = c.gateway.Install(ctx, c.app.Name, client, nil)
	}
	if c.isClosed() {
		return OutcomeNone, ErrClosed
	}
	if err != nil {
		return OutcomeNone, c.fail(action, gateway.Mutation(action, c.app.Name, err))
	}

	now, err := c.requery(ctx, action, client)
	if err != nil {
		return OutcomeNone, err
	}
	return c.acknowledge(ctx, now, client), nil
}

// ConfirmConfiguration saves the prompt's draft and, only if that succeeds,
// issues the deferred install with the saved values.
func (c *Controller) ConfirmConfiguration(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return OutcomeNone, ErrClosed
	}
	prompt := c.prompt
	if prompt == nil {
		c.mu.Unlock()
		return OutcomeNone, ErrNoPrompt
	}
	if c.busy || !c.guard.TryAcquire(c.app.Name) {
		c.mu.Unlock()
		return OutcomeNone, ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer c.release()

	if err := prompt.SaveAll(ctx); err != nil {
		return OutcomeNone, err
	}
	if c.isClosed() {
		return OutcomeNone, ErrClosed
	}

	client := c.session.Client()
	err := c.gateway.Install(ctx, c.app.Name, client, prompt.Values())
	if c.isClosed() {
		return OutcomeNone, ErrClosed
	}
	if err != nil {
		return OutcomeNone, c.fail(actionInstall, gateway.Mutation(actionInstall, c.app.Name, err))
	}

	now, err := c.requery(ctx, actionInstall, client)
	if err != nil {
		return OutcomeNone, err
	}
	c.CancelConfiguration()
	return c.acknowledge(ctx, now, client), nil
}

// CancelConfiguration closes the open prompt, if any.
func (c *Controller) CancelConfiguration() {
	c.mu.Lock()
	prompt := c.prompt
	c.prompt = nil
	c.mu.Unlock()
	if prompt != nil {
		prompt.Close()
	}
}

// Refresh re-reads the installed state from the backend.
func (c *Controller) Refresh(ctx context.Context) error {
	installed, err := c.gateway.IsInstalled(ctx, c.app.Name, c.session.Client())
	if c.isClosed() {
		return ErrClosed
	}
	if err != nil {
		failure := gateway.Query("refresh", c.app.Name, err)
		logging.Warnf("Failed to refresh %s: %v", c.app.Name, failure)
		return failure
	}
	c.mu.Lock()
	c.installed = installed
	c.mu.Unlock()
	return nil
}

// Close tears the controller down. In-flight operations finish without
// touching state or notifying.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.CancelConfiguration()
}

func (c *Controller) checkLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.configurable:
		return ErrNotConfigurable
	case c.busy:
		return ErrBusy
	}
	return nil
}

func (c *Controller) release() {
	c.guard.Release(c.app.Name)
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) requery(ctx context.Context, action string, client clients.Client) (bool, error) {
	installed, err := c.gateway.IsInstalled(ctx, c.app.Name, client)
	if c.isClosed() {
		return false, ErrClosed
	}
	if err != nil {
		return false, c.fail(action, gateway.Query(action, c.app.Name, err))
	}
	c.mu.Lock()
	c.installed = installed
	c.mu.Unlock()
	return installed, nil
}

func (c *Controller) acknowledge(ctx context.Context, installed bool, client clients.Client) Outcome {
	outcome, verb := OutcomeUninstalled, "uninstalled"
	if installed {
		outcome, verb = OutcomeInstalled, "installed"
	}

	n := notify.Success(fmt.Sprintf("%s %s", c.app.Name, verb))
	if client.SupportsRestart() {
		n = n.WithAction("Relaunch "+client.DisplayName(), c.relaunch(client))
	}
	c.notifier.Notify(n)

	if installed && c.app.RequiresSetup() && c.navigator != nil {
		if err := c.navigator.OpenConfiguration(ctx, c.app); err != nil {
			failure := gateway.Navigation("open configuration", c.app.Name, err)
			logging.Errorf("Failed to open configuration for %s: %v", c.app.Name, failure)
			c.notifier.Notify(notify.Error(fmt.Sprintf("Failed to open configuration for %s", c.app.Name)).WithErr(failure))
		}
	}
	return outcome
}

func (c *Controller) relaunch(client clients.Client) func(context.Context) error {
	gw, notifier := c.gateway, c.notifier
	return func(ctx context.Context) error {
		if err := gw.RestartHostApp(ctx, client); err != nil {
			failure := gateway.Navigation("restart", client.DisplayName(), err)
			logging.Errorf("Failed to restart %s app: %v", client.DisplayName(), failure)
			notifier.Notify(notify.Error(fmt.Sprintf("Failed to restart %s app", client.DisplayName())).WithErr(failure))
			return failure
		}
		notifier.Notify(notify.Info(fmt.Sprintf("%s app is restarting...", client.DisplayName())))
		return nil
	}
}

func (c *Controller) fail(action string, failure *gateway.Failure) error {
	logging.Errorf("Failed to %s %s: %v", action, c.app.Name, failure)
	c.notifier.Notify(notify.Error(fmt.Sprintf("Failed to %s %s", action, c.app.Name)).WithErr(failure))
	return failure
}
