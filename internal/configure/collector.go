// Package configure collects the setup values an app needs before install.
package configure

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/gateway"
	"staten/internal/logging"
	"staten/internal/notify"
)

var (
	// ErrUnknownField is returned when editing a key the app does not declare.
	ErrUnknownField = errors.New("unknown setup field")
	// ErrClosed is returned when the collector was discarded mid-operation.
	ErrClosed = errors.New("configuration prompt closed")
)

// Values maps setup keys to their values.
type Values map[string]string

// ClientSource yields the host client selected at call time.
type ClientSource interface {
	Client() clients.Client
}

// Collector holds an editable draft of one app's configuration. The draft
// always contains every setup key.
type Collector struct {
	app      catalog.App
	session  ClientSource
	gateway  gateway.Gateway
	notifier notify.Notifier

	mu     sync.Mutex
	draft  Values
	closed bool
}

// New returns a collector whose draft holds every setup key with an empty
// value.
func New(app catalog.App, session ClientSource, gw gateway.Gateway, notifier notify.Notifier) *Collector {
	if notifier == nil {
		notifier = notify.Discard
	}
	draft := make(Values, len(app.Setup))
	for _, field := range app.Setup {
		draft[field.Key] = ""
	}
	return &Collector{
		app:      app,
		session:  session,
		gateway:  gw,
		notifier: notifier,
		draft:    draft,
	}
}

// App returns the app being configured.
func (c *Collector) App() catalog.App {
	return c.app
}

// Fields returns the setup fields in declaration order.
func (c *Collector) Fields() []catalog.SetupField {
	return c.app.Setup
}

// Load overlays the values stored by the backend onto the draft. Failures
// are logged and leave the draft as it was.
func (c *Collector) Load(ctx context.Context) {
	client := c.session.Client()
	env, err := c.gateway.GetAppEnv(ctx, c.app.Name, client)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil {
		logging.Warnf("Failed to load configuration for %s: %v", c.app.Name, gateway.Query("load configuration", c.app.Name, err))
		return
	}
	maps.Copy(c.draft, env)
}

// SetField edits the draft. Nothing is sent to the backend.
func (c *Collector) SetField(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.draft[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	c.draft[key] = value
	return nil
}

// Value returns one draft value.
func (c *Collector) Value(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft[key]
}

// Values returns a copy of the draft.
func (c *Collector) Values() Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.draft)
}

// SaveAll persists the whole draft in a single command.
func (c *Collector) SaveAll(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	snapshot := maps.Clone(c.draft)
	c.mu.Unlock()

	err := c.gateway.SaveAppEnv(ctx, c.app.Name, c.session.Client(), snapshot)

	if c.isClosed() {
		return ErrClosed
	}
	if err != nil {
		failure := gateway.Mutation("save configuration", c.app.Name, err)
		logging.Errorf("Failed to save configuration values for %s: %v", c.app.Name, failure)
		c.notifier.Notify(notify.Error(fmt.Sprintf("Failed to save configuration values for %s", c.app.Name)).WithErr(failure))
		return failure
	}

	c.notifier.Notify(notify.Success(fmt.Sprintf("Saved all configuration values for %s", c.app.Name)))
	return nil
}

// Close discards the collector. Pending operations complete without effect.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Collector) Closed() bool {
	return c.isClosed()
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
