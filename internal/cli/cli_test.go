package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"staten/internal/clients"
)

type fakeManager struct {
	clientStatus     ClientStatus
	usedClient       clients.Client
	apps             []App
	appErr           error
	env              map[string]string
	onboardingStatus OnboardingStatus
	completeErr      error
	toggleEvents     []ProgressEvent
	runEvents        []ProgressEvent

	lastApp     string
	lastOptions ToggleOptions
	lastRun     RunOptions
	bootstrap   []bool
	hidden      bool
}

func (f *fakeManager) ClientShow(_ context.Context) (ClientStatus, error) {
	return f.clientStatus, nil
}

func (f *fakeManager) ClientUse(_ context.Context, client clients.Client) error {
	f.usedClient = client
	return nil
}

func (f *fakeManager) AppList(_ context.Context, includeHidden bool) ([]App, error) {
	f.hidden = includeHidden
	return f.apps, f.appErr
}

func (f *fakeManager) AppStatus(_ context.Context, name string) (App, error) {
	f.lastApp = name
	if f.appErr != nil {
		return App{}, f.appErr
	}
	return App{Name: name}, nil
}

func (f *fakeManager) AppToggle(_ context.Context, name string, opts ToggleOptions) <-chan ProgressEvent {
	f.lastApp, f.lastOptions = name, opts
	return eventsToChan(f.toggleEvents)
}

func (f *fakeManager) AppConfigure(_ context.Context, name string, opts ToggleOptions) <-chan ProgressEvent {
	f.lastApp, f.lastOptions = name, opts
	return eventsToChan([]ProgressEvent{{Type: EventSuccess, Message: "saved"}})
}

func (f *fakeManager) AppEnv(_ context.Context, name string) (map[string]string, error) {
	f.lastApp = name
	return f.env, f.appErr
}

func (f *fakeManager) OnboardingStatus(_ context.Context) (OnboardingStatus, error) {
	return f.onboardingStatus, nil
}

func (f *fakeManager) OnboardingRun(_ context.Context, opts RunOptions) <-chan ProgressEvent {
	f.lastRun = opts
	return eventsToChan(f.runEvents)
}

func (f *fakeManager) OnboardingComplete(_ context.Context) error {
	return f.completeErr
}

func (f *fakeManager) OnboardingReset(_ context.Context) <-chan ProgressEvent {
	return eventsToChan([]ProgressEvent{{Type: EventSuccess, Message: "Onboarding reset"}})
}

func (f *fakeManager) OnboardingBootstrap(_ context.Context, enabled bool) <-chan ProgressEvent {
	f.bootstrap = append(f.bootstrap, enabled)
	return eventsToChan(nil)
}

func (f *fakeManager) ServeMCP(_ context.Context) error {
	return nil
}

func (f *fakeManager) RunUI(_ context.Context) error {
	return errors.New("no terminal")
}

func eventsToChan(events []ProgressEvent) <-chan ProgressEvent {
	ch := make(chan ProgressEvent, len(events))
	for _, event := range events {
		ch <- event
	}
	close(ch)
	return ch
}

func runCLI(t *testing.T, args []string, manager Manager) (int, string, string) {
	t.Helper()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	exitCode := Execute(args, manager, &stdout, &stderr)
	return exitCode, stdout.String(), stderr.String()
}

func decodeJSONLines(t *testing.T, output string) []ProgressEvent {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	events := make([]ProgressEvent, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var event ProgressEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("failed to decode JSON line %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "toggle without app", args: []string{"app", "toggle", "--json"}},
		{name: "unknown client", args: []string{"client", "use", "vscode"}},
		{name: "bad set pair", args: []string{"app", "toggle", "Linear", "--set", "novalue"}},
		{name: "configure without values", args: []string{"app", "configure", "Linear"}},
		{name: "bootstrap bad arg", args: []string{"onboarding", "bootstrap", "maybe"}},
		{name: "unknown command", args: []string{"frobnicate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exitCode, _, _ := runCLI(t, tt.args, &fakeManager{})
			if exitCode != ExitInvalidUsage {
				t.Fatalf("expected exit code %d, got %d", ExitInvalidUsage, exitCode)
			}
		})
	}
}

func TestAppToggleJSONOutput(t *testing.T) {
	manager := &fakeManager{
		toggleEvents: []ProgressEvent{
			{Type: EventLog, Message: "Installing Time for Claude Desktop"},
			{Type: EventSuccess, Message: "Time installed"},
		},
	}
	exitCode, stdout, _ := runCLI(t, []string{"app", "toggle", "Time", "--relaunch", "--json"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	events := decodeJSONLines(t, stdout)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventLog || events[1].Type != EventSuccess {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
	if manager.lastApp != "Time" || !manager.lastOptions.Relaunch {
		t.Fatalf("unexpected call: app=%q opts=%+v", manager.lastApp, manager.lastOptions)
	}
}

func TestAppToggleErrorExitCode(t *testing.T) {
	manager := &fakeManager{
		toggleEvents: []ProgressEvent{
			{Type: EventError, Message: "Failed to install Time", Code: CodeMutationFailed},
		},
	}
	exitCode, stdout, _ := runCLI(t, []string{"app", "toggle", "Time", "--json"}, manager)
	if exitCode != ExitRuntimeError {
		t.Fatalf("expected exit code %d, got %d", ExitRuntimeError, exitCode)
	}
	events := decodeJSONLines(t, stdout)
	if len(events) != 1 || events[0].Code != CodeMutationFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestToggleValuesMergeEnvFileAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linear.env")
	if err := os.WriteFile(path, []byte("LINEAR_API_KEY=from-file\nTEAM=core\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	manager := &fakeManager{}
	args := []string{"app", "toggle", "Linear", "--env-file", path, "--set", "LINEAR_API_KEY=from-flag", "--set", "EMPTY=", "--force"}
	exitCode, _, stderr := runCLI(t, args, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d (%s)", ExitSuccess, exitCode, stderr)
	}

	want := map[string]string{"LINEAR_API_KEY": "from-flag", "TEAM": "core", "EMPTY": ""}
	got := manager.lastOptions.Values
	if len(got) != len(want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("values[%q] = %q, want %q", k, got[k], v)
		}
	}
	if !manager.lastOptions.Force {
		t.Error("expected force option")
	}
}

func TestAppListText(t *testing.T) {
	manager := &fakeManager{
		apps: []App{
			{Name: "Time", Description: "Time and timezone conversion", Installed: true},
			{Name: "Linear", Description: "Issue tracking", RequiresSetup: true},
		},
	}
	exitCode, stdout, _ := runCLI(t, []string{"app", "list", "--all"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	if !manager.hidden {
		t.Error("expected --all to include hidden apps")
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", stdout)
	}
	if !strings.Contains(lines[0], "installed") || !strings.Contains(lines[1], "needs setup") {
		t.Fatalf("unexpected listing:\n%s", stdout)
	}
}

func TestAppStatusErrorJSON(t *testing.T) {
	manager := &fakeManager{appErr: errors.New("app not found: Nope")}
	exitCode, stdout, _ := runCLI(t, []string{"app", "status", "Nope", "--json"}, manager)
	if exitCode != ExitRuntimeError {
		t.Fatalf("expected exit code %d, got %d", ExitRuntimeError, exitCode)
	}
	events := decodeJSONLines(t, stdout)
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestAppEnvDotenv(t *testing.T) {
	manager := &fakeManager{env: map[string]string{"B": "two words", "A": "1"}}
	exitCode, stdout, _ := runCLI(t, []string{"app", "env", "Gmail", "--dotenv"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	want := "A=1\nB=\"two words\"\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func TestClientUse(t *testing.T) {
	manager := &fakeManager{}
	exitCode, stdout, _ := runCLI(t, []string{"client", "use", "cursor"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	if manager.usedClient != clients.Cursor {
		t.Fatalf("used client = %v, want cursor", manager.usedClient)
	}
	if !strings.Contains(stdout, "Cursor") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestClientShowDefault(t *testing.T) {
	manager := &fakeManager{clientStatus: ClientStatus{Client: "claude", DisplayName: "Claude Desktop"}}
	exitCode, stdout, _ := runCLI(t, []string{"client"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	if strings.TrimSpace(stdout) != "Claude Desktop (not installed)" {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestOnboardingRunFlags(t *testing.T) {
	manager := &fakeManager{
		runEvents: []ProgressEvent{
			{Type: EventProgress, Message: "onboarding: host-launch", Percent: 50},
			{Type: EventSuccess, Message: "Onboarding complete"},
		},
	}
	exitCode, stdout, _ := runCLI(t, []string{"onboarding", "run", "--launch", "--timeout", "1s", "--json"}, manager)
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	if !manager.lastRun.Launch {
		t.Error("expected launch option")
	}
	events := decodeJSONLines(t, stdout)
	if len(events) != 2 || events[0].Percent != 50 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestOnboardingBootstrap(t *testing.T) {
	manager := &fakeManager{onboardingStatus: OnboardingStatus{BootstrapEnabled: true}}

	exitCode, stdout, _ := runCLI(t, []string{"onboarding", "bootstrap"}, manager)
	if exitCode != ExitSuccess || strings.TrimSpace(stdout) != "on" {
		t.Fatalf("status: exit %d, output %q", exitCode, stdout)
	}

	for _, arg := range []string{"off", "on"} {
		if exitCode, _, _ := runCLI(t, []string{"onboarding", "bootstrap", arg}, manager); exitCode != ExitSuccess {
			t.Fatalf("bootstrap %s: exit %d", arg, exitCode)
		}
	}
	if len(manager.bootstrap) != 2 || manager.bootstrap[0] || !manager.bootstrap[1] {
		t.Fatalf("bootstrap calls = %v", manager.bootstrap)
	}
}

func TestOnboardingCompleteFailure(t *testing.T) {
	manager := &fakeManager{completeErr: errors.New("database is locked")}
	exitCode, _, stderr := runCLI(t, []string{"onboarding", "complete"}, manager)
	if exitCode != ExitRuntimeError {
		t.Fatalf("expected exit code %d, got %d", ExitRuntimeError, exitCode)
	}
	if !strings.Contains(stderr, "database is locked") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestVersionJSON(t *testing.T) {
	exitCode, stdout, _ := runCLI(t, []string{"version", "--json"}, &fakeManager{})
	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, exitCode)
	}
	events := decodeJSONLines(t, stdout)
	if len(events) != 1 || events[0].Type != EventResult {
		t.Fatalf("unexpected events: %+v", events)
	}
	if !strings.HasPrefix(events[0].Message, "staten ") {
		t.Fatalf("unexpected version message %q", events[0].Message)
	}
}

func TestUIFailure(t *testing.T) {
	exitCode, _, _ := runCLI(t, []string{"ui"}, &fakeManager{})
	if exitCode != ExitRuntimeError {
		t.Fatalf("expected exit code %d, got %d", ExitRuntimeError, exitCode)
	}
}
