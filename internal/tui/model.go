// Package tui is the terminal front end: the onboarding screen followed by
// the app catalog.
package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/configure"
	"staten/internal/gateway"
	"staten/internal/install"
	"staten/internal/logging"
	"staten/internal/notify"
	"staten/internal/onboarding"
	"staten/internal/session"
)

// Deps are the collaborators of the terminal UI.
type Deps struct {
	Catalog      *catalog.Catalog
	Gateway      gateway.Gateway
	Session      *session.Session
	PollInterval time.Duration
	DownloadURL  string
	// Poll overrides the completion poll schedule.
	Poll onboarding.Trigger
}

type screen int

const (
	screenOnboarding screen = iota
	screenCatalog
)

// Messages delivered to Update.
type (
	statusesMsg struct {
		client        clients.Client
		statuses      gateway.Statuses
		hostInstalled bool
		err           error
	}
	stateMsg        struct{ state onboarding.State }
	notificationMsg struct{ n notify.Notification }
	toastExpiredMsg struct{ id int }
	toggledMsg      struct {
		app     string
		outcome install.Outcome
		err     error
	}
	formLoadedMsg struct{ form *form }
	formSavedMsg  struct {
		app string
		err error
	}
	openConfigureMsg struct{ app catalog.App }
	onboardingMsg    struct {
		action string
		err    error
	}
	clientChangedMsg struct {
		client clients.Client
		err    error
	}
	actionDoneMsg struct{ err error }
)

// Model is the root bubbletea model.
type Model struct {
	ctx  context.Context
	deps Deps
	send func(tea.Msg)
	tick func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

	screen   screen
	seq      *onboarding.Sequencer
	focus    *onboarding.Broadcaster
	settings *onboarding.Settings
	state    onboarding.State

	apps          []catalog.App
	cursor        int
	guard         *install.Guard
	controllers   map[string]*install.Controller
	statuses      gateway.Statuses
	hostInstalled bool
	loaded        bool

	form    *form
	toast   *notify.Notification
	toastID int

	width  int
	height int
}

// New builds the model. Send must be wired with SetSender before the
// program starts so background work can reach Update.
func New(ctx context.Context, deps Deps) *Model {
	m := &Model{
		ctx:         ctx,
		deps:        deps,
		send:        func(tea.Msg) {},
		tick:        tea.Tick,
		focus:       onboarding.NewBroadcaster(),
		guard:       install.NewGuard(),
		controllers: make(map[string]*install.Controller),
		statuses:    gateway.Statuses{Installed: map[string]bool{}, Configured: map[string]bool{}},
	}
	for _, app := range deps.Catalog.Apps() {
		if !app.Hidden {
			m.apps = append(m.apps, app)
		}
	}
	m.settings = &onboarding.Settings{
		Gateway:  deps.Gateway,
		Session:  deps.Session,
		Finished: deps.Session,
		Notifier: m.notifier(),
	}
	m.seq = m.newSequencer()
	if deps.Session.OnboardingFinished() {
		m.screen = screenCatalog
	}
	return m
}

// SetSender routes asynchronous messages, usually to tea.Program.Send.
func (m *Model) SetSender(send func(tea.Msg)) {
	m.send = send
}

func (m *Model) newSequencer() *onboarding.Sequencer {
	poll := m.deps.Poll
	if poll == nil {
		poll = onboarding.NewIntervalTrigger(m.deps.PollInterval)
	}
	return onboarding.New(onboarding.Deps{
		Gateway:     m.deps.Gateway,
		Session:     m.deps.Session,
		Poll:        poll,
		Focus:       m.focus,
		DownloadURL: m.deps.DownloadURL,
		OnChange: func(state onboarding.State) {
			m.send(stateMsg{state: state})
		},
		OnComplete: func(ctx context.Context) error {
			return m.deps.Session.SetOnboardingFinished(ctx, true)
		},
	})
}

func (m *Model) notifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		m.send(notificationMsg{n: n})
	})
}

func (m *Model) navigator() install.Navigator {
	return install.NavigatorFunc(func(_ context.Context, app catalog.App) error {
		m.send(openConfigureMsg{app: app})
		return nil
	})
}

// Init loads the catalog status.
func (m *Model) Init() tea.Cmd {
	return m.loadStatuses()
}

// Close releases the sequencer and every controller.
func (m *Model) Close() {
	m.seq.Close()
	for _, ctrl := range m.controllers {
		ctrl.Close()
	}
}

func (m *Model) loadStatuses() tea.Cmd {
	gw, client := m.deps.Gateway, m.deps.Session.Client()
	ctx := m.ctx
	return func() tea.Msg {
		statuses, err := gw.GetAppStatuses(ctx, client)
		if err != nil {
			return statusesMsg{client: client, err: gateway.Query("load statuses", "", err)}
		}
		host, err := gw.CheckHostInstalled(ctx, client)
		if err != nil {
			logging.Warnf("Failed to check %s installation: %v", client.DisplayName(), err)
			host = true
		}
		return statusesMsg{client: client, statuses: statuses, hostInstalled: host}
	}
}

func (m *Model) controller(app catalog.App) *install.Controller {
	if ctrl, ok := m.controllers[app.Name]; ok {
		return ctrl
	}
	ctrl := install.New(app, m.statuses.Installed[app.Name], install.Deps{
		Gateway:   m.deps.Gateway,
		Session:   m.deps.Session,
		Notifier:  m.notifier(),
		Navigator: m.navigator(),
		Guard:     m.guard,
	}, install.WithConfigurable(m.hostInstalled))
	m.controllers[app.Name] = ctrl
	return ctrl
}

func (m *Model) resetControllers() {
	for name, ctrl := range m.controllers {
		ctrl.Close()
		delete(m.controllers, name)
	}
	m.form = nil
}

func (m *Model) selected() (catalog.App, bool) {
	if m.cursor < 0 || m.cursor >= len(m.apps) {
		return catalog.App{}, false
	}
	return m.apps[m.cursor], true
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.FocusMsg:
		return m, m.onFocus()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.form != nil {
			return m, m.updateForm(msg)
		}
		if m.screen == screenOnboarding {
			return m, m.updateOnboarding(msg)
		}
		return m, m.updateCatalog(msg)

	case statusesMsg:
		if msg.err != nil {
			logging.Warnf("Failed to load statuses: %v", msg.err)
			return m, m.show(notify.Error("Failed to load apps"))
		}
		if msg.client != m.deps.Session.Client() {
			return m, nil
		}
		m.statuses = msg.statuses
		m.hostInstalled = msg.hostInstalled
		m.loaded = true
		for _, ctrl := range m.controllers {
			ctrl.SetConfigurable(msg.hostInstalled)
		}
		return m, nil

	case stateMsg:
		m.state = msg.state
		return m, nil

	case notificationMsg:
		return m, m.show(msg.n)

	case toastExpiredMsg:
		if m.toast != nil && msg.id == m.toastID {
			m.toast = nil
		}
		return m, nil

	case toggledMsg:
		return m, m.toggled(msg)

	case openConfigureMsg:
		return m, m.openEditForm(msg.app)

	case formLoadedMsg:
		if m.form == nil {
			m.form = msg.form
		} else {
			msg.form.collector.Close()
		}
		return m, nil

	case formSavedMsg:
		if m.form != nil && m.form.app.Name == msg.app {
			m.form.saving = false
			if msg.err == nil {
				m.closeForm()
			}
		}
		return m, m.loadStatuses()

	case onboardingMsg:
		if errors.Is(msg.err, onboarding.ErrWrongStep) || errors.Is(msg.err, onboarding.ErrClosed) {
			return m, nil
		}
		if msg.err != nil {
			logging.Warnf("Onboarding %s failed: %v", msg.action, msg.err)
			return m, m.show(notify.Error(onboardingFailure(msg.action)))
		}
		switch msg.action {
		case "finish":
			m.screen = screenCatalog
			return m, m.loadStatuses()
		case "reset":
			m.screen = screenOnboarding
			return m, m.show(notify.Success("Onboarding reset"))
		}
		return m, nil

	case clientChangedMsg:
		if msg.err != nil {
			logging.Errorf("Failed to switch client: %v", msg.err)
			return m, m.show(notify.Error("Failed to switch client"))
		}
		m.resetControllers()
		m.loaded = false
		return m, tea.Batch(
			m.show(notify.Info("Using "+msg.client.DisplayName())),
			m.loadStatuses(),
		)

	case actionDoneMsg:
		return m, nil
	}
	return m, nil
}

func onboardingFailure(action string) string {
	switch action {
	case "drag":
		return "Failed to add Staten"
	case "launch":
		return "Failed to open the host app"
	case "download":
		return "Failed to open the download page"
	case "reset":
		return "Failed to reset onboarding"
	}
	return "Failed to finish onboarding"
}

// onFocus re-checks host detection and completion while onboarding and
// refreshes installed state in the catalog.
func (m *Model) onFocus() tea.Cmd {
	focus := m.focus
	cmds := []tea.Cmd{
		func() tea.Msg {
			focus.Fire()
			return nil
		},
		m.loadStatuses(),
	}
	for _, ctrl := range m.controllers {
		if ctrl.Busy() {
			continue
		}
		ctrl := ctrl
		ctx := m.ctx
		cmds = append(cmds, func() tea.Msg {
			if err := ctrl.Refresh(ctx); err != nil {
				logging.Debugf("Refresh of %s skipped: %v", ctrl.App().Name, err)
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (m *Model) show(n notify.Notification) tea.Cmd {
	m.toastID++
	m.toast = &n
	id := m.toastID
	duration := n.Duration
	if duration <= 0 {
		duration = notify.DefaultDuration
	}
	return m.tick(duration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (m *Model) runToastAction() tea.Cmd {
	if m.toast == nil || m.toast.Action == nil {
		return nil
	}
	action := m.toast.Action
	m.toast = nil
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: action.Run(ctx)}
	}
}

func (m *Model) updateOnboarding(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "enter", " ":
	default:
		return nil
	}

	seq, ctx := m.seq, m.ctx
	switch m.state.Step {
	case onboarding.StepDragPrompt:
		return func() tea.Msg {
			return onboardingMsg{action: "drag", err: seq.DragSucceeded(ctx)}
		}
	case onboarding.StepHostLaunch:
		if m.state.PrimaryAction() == onboarding.ActionLaunchHost {
			return func() tea.Msg {
				return onboardingMsg{action: "launch", err: seq.LaunchHost(ctx)}
			}
		}
		return func() tea.Msg {
			return onboardingMsg{action: "download", err: seq.DownloadHost(ctx)}
		}
	case onboarding.StepDone:
		return func() tea.Msg {
			return onboardingMsg{action: "finish", err: seq.Finish(ctx)}
		}
	}
	return nil
}

func (m *Model) updateCatalog(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.apps)-1 {
			m.cursor++
		}
	case "enter", " ":
		return m.toggleSelected()
	case "c":
		if app, ok := m.selected(); ok && app.RequiresSetup() {
			return m.openEditForm(app)
		}
	case "a":
		return m.runToastAction()
	case "tab":
		return m.switchClient()
	case "b":
		return m.toggleBootstrap()
	case "r":
		return m.resetOnboarding()
	}
	return nil
}

func (m *Model) toggleSelected() tea.Cmd {
	app, ok := m.selected()
	if !ok || !m.loaded {
		return nil
	}
	ctrl := m.controller(app)
	ctx := m.ctx
	return func() tea.Msg {
		outcome, err := ctrl.Toggle(ctx)
		return toggledMsg{app: app.Name, outcome: outcome, err: err}
	}
}

func (m *Model) toggled(msg toggledMsg) tea.Cmd {
	switch {
	case msg.err == nil && msg.outcome == install.OutcomeConfigurationRequired:
		ctrl := m.controllers[msg.app]
		if ctrl == nil || ctrl.Prompt() == nil {
			return nil
		}
		if m.form != nil && m.form.ctrl != ctrl {
			m.closeForm()
		}
		m.form = newForm(ctrl.App(), ctrl.Prompt(), ctrl)
		return nil
	case msg.err == nil:
		return m.loadStatuses()
	}

	switch {
	case errors.Is(msg.err, install.ErrBusy):
		return m.show(notify.Info(msg.app + " is busy"))
	case errors.Is(msg.err, install.ErrNotConfigurable):
		return m.show(notify.Error(m.deps.Session.Client().DisplayName() + " is not installed"))
	case errors.Is(msg.err, install.ErrClosed):
		return nil
	}
	return m.loadStatuses()
}

func (m *Model) openEditForm(app catalog.App) tea.Cmd {
	if m.form != nil {
		return nil
	}
	collector := configure.New(app, m.deps.Session, m.deps.Gateway, m.notifier())
	ctx := m.ctx
	return func() tea.Msg {
		collector.Load(ctx)
		return formLoadedMsg{form: newForm(app, collector, nil)}
	}
}

func (m *Model) closeForm() {
	if m.form == nil {
		return
	}
	if m.form.ctrl != nil {
		m.form.ctrl.CancelConfiguration()
	} else {
		m.form.collector.Close()
	}
	m.form = nil
}

func (m *Model) switchClient() tea.Cmd {
	current := m.deps.Session.Client()
	next := clients.All[0]
	for i, c := range clients.All {
		if c == current {
			next = clients.All[(i+1)%len(clients.All)]
		}
	}
	sess, ctx := m.deps.Session, m.ctx
	return func() tea.Msg {
		return clientChangedMsg{client: next, err: sess.SetClient(ctx, next)}
	}
}

func (m *Model) toggleBootstrap() tea.Cmd {
	settings, ctx := m.settings, m.ctx
	enable := !m.statuses.Installed[catalog.BootstrapAppName]
	reload := m.loadStatuses()
	return func() tea.Msg {
		_ = settings.SetBootstrapEnabled(ctx, enable)
		return reload()
	}
}

func (m *Model) resetOnboarding() tea.Cmd {
	seq, sess, ctx := m.seq, m.deps.Session, m.ctx
	return func() tea.Msg {
		if err := seq.Reset(ctx); err != nil {
			return onboardingMsg{action: "reset", err: err}
		}
		return onboardingMsg{action: "reset", err: sess.SetOnboardingFinished(ctx, false)}
	}
}
