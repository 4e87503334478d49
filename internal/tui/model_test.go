package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/gateway/gatewaytest"
	"staten/internal/onboarding"
	"staten/internal/session"
)

// harness drives Update synchronously. Commands run inline and messages
// sent from background work are delivered before the command's result,
// the order a running program would see them in.
type harness struct {
	t    *testing.T
	m    *Model
	gw   *gatewaytest.Fake
	sess *session.Session
	poll *onboarding.Broadcaster

	mu    sync.Mutex
	inbox []tea.Msg
	quit  bool
}

func newHarness(t *testing.T, finished bool, hostInstalled bool) *harness {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	gw := gatewaytest.New()
	gw.SetHostInstalled(hostInstalled)
	sess := session.New(clients.Claude)
	if err := sess.SetOnboardingFinished(t.Context(), finished); err != nil {
		t.Fatal(err)
	}
	poll := onboarding.NewBroadcaster()

	m := New(t.Context(), Deps{
		Catalog:     cat,
		Gateway:     gw,
		Session:     sess,
		Poll:        poll,
		DownloadURL: "https://example.com/download",
	})
	h := &harness{t: t, m: m, gw: gw, sess: sess, poll: poll}
	m.SetSender(h.enqueue)
	m.tick = func(time.Duration, func(time.Time) tea.Msg) tea.Cmd { return nil }
	t.Cleanup(func() {
		m.Close()
		m.seq.Wait()
	})

	h.run(m.Init())
	h.flush()
	return h
}

func (h *harness) enqueue(msg tea.Msg) {
	h.mu.Lock()
	h.inbox = append(h.inbox, msg)
	h.mu.Unlock()
}

func (h *harness) update(msg tea.Msg) {
	_, cmd := h.m.Update(msg)
	h.run(cmd)
	h.flush()
}

func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	h.flush()
	switch msg := msg.(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.run(c)
		}
	case tea.QuitMsg:
		h.quit = true
	default:
		h.update(msg)
	}
}

func (h *harness) flush() {
	for {
		h.mu.Lock()
		if len(h.inbox) == 0 {
			h.mu.Unlock()
			return
		}
		msg := h.inbox[0]
		h.inbox = h.inbox[1:]
		h.mu.Unlock()
		h.update(msg)
	}
}

func (h *harness) press(keys ...string) {
	for _, k := range keys {
		h.update(keyMsg(k))
	}
}

func (h *harness) typeText(text string) {
	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func (h *harness) selectApp(name string) {
	h.t.Helper()
	for i, app := range h.m.apps {
		if app.Name == name {
			h.m.cursor = i
			return
		}
	}
	h.t.Fatalf("app %q not in catalog", name)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestOnboardingWalkthrough(t *testing.T) {
	h := newHarness(t, false, true)
	if h.m.screen != screenOnboarding {
		t.Fatalf("screen = %v, want onboarding", h.m.screen)
	}
	if !strings.Contains(h.m.View(), "Add Staten") {
		t.Fatalf("onboarding view missing first step:\n%s", h.m.View())
	}

	h.press("enter")
	h.m.seq.Wait()
	if h.m.state.Step != onboarding.StepHostLaunch || !h.m.state.HostInstalled {
		t.Fatalf("state = %+v, want host launch with host installed", h.m.state)
	}
	if h.gw.Count(gatewaytest.CmdInstallBootstrap) != 1 {
		t.Fatalf("bootstrap installed %d times", h.gw.Count(gatewaytest.CmdInstallBootstrap))
	}

	h.press("enter")
	if h.gw.Count(gatewaytest.CmdRestartHost) != 1 {
		t.Fatal("enter should launch the host")
	}

	h.gw.SetCompleted(true)
	h.poll.Fire()
	h.flush()
	if h.m.state.Step != onboarding.StepDone {
		t.Fatalf("step = %v, want done", h.m.state.Step)
	}

	h.press("enter")
	if h.m.screen != screenCatalog {
		t.Fatal("finish should open the catalog")
	}
	if !h.sess.OnboardingFinished() {
		t.Fatal("session not marked finished")
	}
}

func TestFocusRechecksHost(t *testing.T) {
	h := newHarness(t, false, false)
	h.press("enter")
	if h.m.state.PrimaryAction() != onboarding.ActionDownloadHost {
		t.Fatalf("primary action = %v, want download", h.m.state.PrimaryAction())
	}

	h.press("enter")
	if call, ok := h.gw.Last(gatewaytest.CmdOpenURL); !ok || call.URL != "https://example.com/download" {
		t.Fatalf("download page not opened: %+v", call)
	}

	h.gw.SetHostInstalled(true)
	h.update(tea.FocusMsg{})
	if !h.m.state.HostInstalled || h.m.state.PrimaryAction() != onboarding.ActionLaunchHost {
		t.Fatalf("state after focus = %+v", h.m.state)
	}
}

func TestCatalogToggleShowsToast(t *testing.T) {
	h := newHarness(t, true, true)
	if h.m.screen != screenCatalog || !h.m.loaded {
		t.Fatalf("screen=%v loaded=%v", h.m.screen, h.m.loaded)
	}

	h.selectApp("Time")
	h.press("enter")
	if h.gw.Count(gatewaytest.CmdInstall) != 1 {
		t.Fatalf("install issued %d times", h.gw.Count(gatewaytest.CmdInstall))
	}
	if h.m.toast == nil || h.m.toast.Message != "Time installed" {
		t.Fatalf("toast = %+v", h.m.toast)
	}
	if !h.m.controllers["Time"].Installed() {
		t.Fatal("controller should report installed")
	}

	h.press("a")
	if h.gw.Count(gatewaytest.CmdRestartHost) != 1 {
		t.Fatal("toast action should relaunch the host")
	}
}

func TestCatalogSetupForm(t *testing.T) {
	h := newHarness(t, true, true)

	h.selectApp("Linear")
	h.press("enter")
	if h.m.form == nil || h.m.form.ctrl == nil {
		t.Fatal("expected install prompt")
	}
	if h.gw.Count(gatewaytest.CmdInstall) != 0 {
		t.Fatal("install issued before configuration")
	}

	h.typeText("lin_12")
	h.press("backspace")
	h.press("enter")

	if h.m.form != nil {
		t.Fatal("form should close after install")
	}
	install, ok := h.gw.Last(gatewaytest.CmdInstall)
	if !ok || install.Env["LINEAR_API_KEY"] != "lin_1" {
		t.Fatalf("install call = %+v", install)
	}
	if h.gw.Count(gatewaytest.CmdSaveAppEnv) != 1 {
		t.Fatal("values not saved before install")
	}
}

func TestCatalogFormCancel(t *testing.T) {
	h := newHarness(t, true, true)

	h.selectApp("Linear")
	h.press("enter")
	ctrl := h.m.form.ctrl
	h.press("esc")

	if h.m.form != nil || ctrl.Prompt() != nil {
		t.Fatal("esc should close the prompt")
	}
	if h.gw.Count(gatewaytest.CmdInstall) != 0 || h.gw.Count(gatewaytest.CmdSaveAppEnv) != 0 {
		t.Fatal("cancel must not mutate")
	}
}

func TestConfigureInstalledApp(t *testing.T) {
	h := newHarness(t, true, true)
	h.gw.SeedEnv("Gmail", clients.Claude, map[string]string{"gmail_info": "ada@example.com", "gmail_password": "old"})

	h.selectApp("Gmail")
	h.press("c")
	if h.m.form == nil || h.m.form.ctrl != nil {
		t.Fatal("expected edit form")
	}
	h.update(tea.KeyMsg{Type: tea.KeyCtrlU})
	h.typeText("new")
	h.press("enter")

	if h.m.form != nil {
		t.Fatal("form should close after save")
	}
	save, ok := h.gw.Last(gatewaytest.CmdSaveAppEnv)
	if !ok || save.Env["gmail_password"] != "new" || save.Env["gmail_info"] != "ada@example.com" {
		t.Fatalf("save call = %+v", save)
	}
	if h.gw.Count(gatewaytest.CmdInstall) != 0 {
		t.Fatal("editing values must not install")
	}
}

func TestHostMissingBlocksToggle(t *testing.T) {
	h := newHarness(t, true, false)

	h.selectApp("Time")
	h.press("enter")
	if h.gw.Count(gatewaytest.CmdInstall) != 0 {
		t.Fatal("install issued without host")
	}
	if h.m.toast == nil || h.m.toast.Message != "Claude is not installed" {
		t.Fatalf("toast = %+v", h.m.toast)
	}
}

func TestSwitchClientReloads(t *testing.T) {
	h := newHarness(t, true, true)
	h.selectApp("Time")
	h.press("enter")

	h.press("tab")
	if h.sess.Client() != clients.Cursor {
		t.Fatalf("client = %v, want cursor", h.sess.Client())
	}
	if len(h.m.controllers) != 0 {
		t.Fatal("controllers should be rebuilt for the new client")
	}
	call, ok := h.gw.Last(gatewaytest.CmdGetAppStatuses)
	if !ok || call.Client != clients.Cursor {
		t.Fatalf("statuses not reloaded for cursor: %+v", call)
	}
	if h.m.statuses.Installed["Time"] {
		t.Fatal("Time is not installed for cursor")
	}
}

func TestResetOnboardingFromCatalog(t *testing.T) {
	h := newHarness(t, true, true)

	h.press("r")
	if h.m.screen != screenOnboarding {
		t.Fatal("reset should show onboarding")
	}
	if h.sess.OnboardingFinished() {
		t.Fatal("session still finished")
	}
	if h.gw.Count(gatewaytest.CmdResetOnboarding) != 1 {
		t.Fatal("backend flag not reset")
	}
}

func TestResetOnboardingFailureKeepsCatalog(t *testing.T) {
	h := newHarness(t, true, true)
	h.gw.SetFail(gatewaytest.CmdResetOnboarding, errors.New("locked"))

	h.press("r")
	if h.m.screen != screenCatalog {
		t.Fatal("failed reset must stay on the catalog")
	}
	if !h.sess.OnboardingFinished() {
		t.Fatal("session cleared although the backend flag was kept")
	}
	if h.m.toast == nil || h.m.toast.Message != "Failed to reset onboarding" {
		t.Fatalf("toast = %+v", h.m.toast)
	}
}

func TestToggleBootstrapApp(t *testing.T) {
	h := newHarness(t, true, true)

	h.press("b")
	if !h.m.statuses.Installed[catalog.BootstrapAppName] {
		t.Fatal("bootstrap app should be installed")
	}
	h.press("b")
	if h.gw.Count(gatewaytest.CmdUninstallBootstrap) != 1 {
		t.Fatal("second press should uninstall")
	}
}

func TestQuit(t *testing.T) {
	h := newHarness(t, true, true)
	h.press("q")
	if !h.quit {
		t.Fatal("q should quit")
	}
}
