// Package catalog holds the static registry of installable apps.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed apps.yaml
var defaultRegistry []byte

// BootstrapAppName is the onboarding app installed after the first successful drag.
const BootstrapAppName = "Staten"

// ErrAppNotFound is returned when a lookup misses the registry.
var ErrAppNotFound = errors.New("app not found")

// FieldKind distinguishes display-only setup fields from credential inputs.
type FieldKind int

const (
	// KindText is an informational line shown to the user.
	KindText FieldKind = iota
	// KindSecret is a value the user types in, usually a credential.
	KindSecret
)

// String returns the registry spelling of the kind.
func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSecret:
		return "input"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// UnmarshalYAML accepts "text" and "input" (alias "secret").
func (k *FieldKind) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(value.Value) {
	case "", "text":
		*k = KindText
	case "input", "secret":
		*k = KindSecret
	default:
		return fmt.Errorf("unknown setup field type %q", value.Value)
	}
	return nil
}

// SetupField declares one configuration value an app needs before install.
type SetupField struct {
	Key         string    `yaml:"key"`
	Label       string    `yaml:"label"`
	Kind        FieldKind `yaml:"type"`
	Placeholder string    `yaml:"placeholder,omitempty"`
	// Text is shown in place of an input for KindText fields.
	Text        string    `yaml:"value,omitempty"`
}

// ServerSpec describes how the backend launches the app inside the host.
type ServerSpec struct {
	Key     string   `yaml:"key"`
	Runtime string   `yaml:"runtime"`
	Args    []string `yaml:"args"`
}

// App is an immutable catalog entry.
type App struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Category    string       `yaml:"category"`
	Price       string       `yaml:"price"`
	Developer   string       `yaml:"developer"`
	SourceURL   string       `yaml:"source_url,omitempty"`
	Setup       []SetupField `yaml:"setup,omitempty"`
	Server      ServerSpec   `yaml:"server"`
	Hidden      bool         `yaml:"hidden,omitempty"`
}

// RequiresSetup reports whether the app declares configuration fields.
func (a App) RequiresSetup() bool {
	return len(a.Setup) > 0
}

// SetupKeys returns the keys of all setup fields in declaration order.
func (a App) SetupKeys() []string {
	keys := make([]string, 0, len(a.Setup))
	for _, field := range a.Setup {
		keys = append(keys, field.Key)
	}
	return keys
}

// Catalog is an ordered, name-indexed set of apps.
type Catalog struct {
	apps  []App
	index map[string]int
}

type registryFile struct {
	Apps []App `yaml:"apps"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultRegistry)
}

// Load reads a registry file, falling back to the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML registry.
func Parse(raw []byte) (*Catalog, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return New(file.Apps)
}

// New builds a catalog and validates app and setup key uniqueness.
func New(apps []App) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(apps))}
	for _, app := range apps {
		if app.Name == "" {
			return nil, errors.New("app without name in registry")
		}
		if _, dup := c.index[app.Name]; dup {
			return nil, fmt.Errorf("duplicate app %q in registry", app.Name)
		}
		seen := make(map[string]bool, len(app.Setup))
		for _, field := range app.Setup {
			if field.Key == "" {
				return nil, fmt.Errorf("app %q has a setup field without key", app.Name)
			}
			if seen[field.Key] {
				return nil, fmt.Errorf("app %q declares setup key %q twice", app.Name, field.Key)
			}
			seen[field.Key] = true
		}
		if app.Server.Key == "" {
			app.Server.Key = strings.ToLower(strings.ReplaceAll(app.Name, " ", "-"))
		}
		c.index[app.Name] = len(c.apps)
		c.apps = append(c.apps, app)
	}
	return c, nil
}

// Get looks up an app by name.
func (c *Catalog) Get(name string) (App, error) {
	i, ok := c.index[name]
	if !ok {
		return App{}, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return c.apps[i], nil
}

// Apps returns the visible apps in registry order.
func (c *Catalog) Apps() []App {
	out := make([]App, 0, len(c.apps))
	for _, app := range c.apps {
		if !app.Hidden {
			out = append(out, app)
		}
	}
	return out
}

// All returns every app in registry order, hidden ones included.
func (c *Catalog) All() []App {
	return slices.Clone(c.apps)
}

// Names returns all app names, hidden ones included, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.apps))
	for _, app := range c.apps {
		names = append(names, app.Name)
	}
	sort.Strings(names)
	return names
}
