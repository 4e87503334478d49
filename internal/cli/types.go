package cli

import (
	"fmt"
	"sort"
	"strings"

	"staten/internal/onboarding"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidUsage = 2
)

// ProgressEvent is one line of CLI output. With --json each event is
// written as a JSON object on its own line.
type ProgressEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Percent int         `json:"percent,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventLog      = "log"
	EventProgress = "progress"
	EventSuccess  = "success"
	EventError    = "error"
	EventResult   = "result"
)

// Error codes attached to error events.
const (
	CodeUnknownApp            = "unknown_app"
	CodeUnknownField          = "unknown_field"
	CodeConfigurationRequired = "configuration_required"
	CodeBusy                  = "busy"
	CodeHostMissing           = "host_missing"
	CodeQueryFailed           = "query_failed"
	CodeMutationFailed        = "mutation_failed"
	CodeNavigationFailed      = "navigation_failed"
	CodeOnboardingTimeout     = "onboarding_timeout"
)

// Field describes a setup field of an app.
type Field struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Secret bool   `json:"secret"`
	Value  string `json:"value,omitempty"`
}

// App is the CLI view of a catalog entry for the selected client.
type App struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	Developer     string  `json:"developer"`
	Installed     bool    `json:"installed"`
	Configured    bool    `json:"configured"`
	RequiresSetup bool    `json:"requires_setup"`
	Fields        []Field `json:"fields,omitempty"`
}

// ClientStatus describes the selected host client.
type ClientStatus struct {
	Client        string `json:"client"`
	DisplayName   string `json:"display_name"`
	HostInstalled bool   `json:"host_installed"`
	CanRestart    bool   `json:"can_restart"`
}

// OnboardingStatus summarizes onboarding for the selected client.
type OnboardingStatus struct {
	Client           string `json:"client"`
	Finished         bool   `json:"finished"`
	ActionCompleted  bool   `json:"action_completed"`
	BootstrapEnabled bool   `json:"bootstrap_enabled"`
	HostInstalled    bool   `json:"host_installed"`
}

// ToggleOptions tune app toggle and configure.
type ToggleOptions struct {
	Values   map[string]string
	Relaunch bool
	Force    bool
}

// RunOptions tune the onboarding run.
type RunOptions struct {
	Launch bool
}

func renderApps(apps []App) string {
	var b strings.Builder
	for i, app := range apps {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(renderApp(app))
	}
	return b.String()
}

func renderApp(app App) string {
	state := "available"
	switch {
	case app.Installed:
		state = "installed"
	case app.RequiresSetup && !app.Configured:
		state = "needs setup"
	}
	return fmt.Sprintf("%-14s %-12s %s", app.Name, state, app.Description)
}

func renderEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+env[key])
	}
	return strings.Join(lines, "\n")
}

func renderOnboarding(status OnboardingStatus) string {
	return fmt.Sprintf("client: %s\nfinished: %t\nhello received: %t\nbootstrap enabled: %t\nhost installed: %t",
		status.Client, status.Finished, status.ActionCompleted, status.BootstrapEnabled, status.HostInstalled)
}

func stepEvent(state onboarding.State) ProgressEvent {
	percent := 0
	switch state.Step {
	case onboarding.StepDragPrompt:
		percent = 0
	case onboarding.StepHostLaunch:
		percent = 50
	case onboarding.StepDone:
		percent = 100
	}
	return ProgressEvent{
		Type:    EventProgress,
		Message: fmt.Sprintf("onboarding: %s", state.Step),
		Percent: percent,
		Data:    map[string]interface{}{"step": int(state.Step), "host_installed": state.HostInstalled},
	}
}
