package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"staten/internal/bootstrap"
	"staten/internal/catalog"
	"staten/internal/clients"
	"staten/internal/configure"
	"staten/internal/gateway"
	"staten/internal/install"
	"staten/internal/logging"
	"staten/internal/notify"
	"staten/internal/onboarding"
	"staten/internal/session"
	"staten/internal/version"
)

// ServiceDeps wires the CLI to the installer core.
type ServiceDeps struct {
	Catalog      *catalog.Catalog
	Gateway      gateway.Gateway
	Session      *session.Session
	Marker       bootstrap.Marker
	PollInterval time.Duration
	DownloadURL  string
	// UI runs the interactive catalog. Nil disables the ui command.
	UI func(ctx context.Context) error
}

// Service implements Manager on top of the installer core.
type Service struct {
	deps  ServiceDeps
	guard *install.Guard
}

var _ Manager = (*Service)(nil)

// NewService returns a Manager backed by deps.
func NewService(deps ServiceDeps) *Service {
	if deps.PollInterval <= 0 {
		deps.PollInterval = onboarding.DefaultPollInterval
	}
	return &Service{deps: deps, guard: install.NewGuard()}
}

// emitter turns notifications into progress events. Events sent after
// close are dropped.
type emitter struct {
	ctx context.Context
	out chan ProgressEvent

	mu      sync.Mutex
	closed  bool
	actions []notify.Action
}

func newEmitter(ctx context.Context) *emitter {
	return &emitter{ctx: ctx, out: make(chan ProgressEvent, 16)}
}

func (e *emitter) emit(event ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.out <- event:
		return
	default:
	}
	select {
	case e.out <- event:
	case <-e.ctx.Done():
	}
}

func (e *emitter) fail(code string, err error) {
	e.emit(ProgressEvent{Type: EventError, Message: err.Error(), Code: code})
}

// Notify implements notify.Notifier.
func (e *emitter) Notify(n notify.Notification) {
	event := ProgressEvent{Type: EventLog, Message: n.Message}
	switch n.Level {
	case notify.LevelSuccess:
		event.Type = EventSuccess
	case notify.LevelError:
		event.Type = EventError
		event.Code = kindCode(gateway.KindOf(n.Err))
	case notify.LevelInfo:
	}
	e.emit(event)

	if n.Action != nil {
		e.mu.Lock()
		e.actions = append(e.actions, *n.Action)
		e.mu.Unlock()
	}
}

func (e *emitter) takeActions() []notify.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	actions := e.actions
	e.actions = nil
	return actions
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.out)
}

func (s *Service) stream(ctx context.Context, run func(e *emitter)) <-chan ProgressEvent {
	e := newEmitter(ctx)
	go func() {
		defer e.close()
		run(e)
	}()
	return e.out
}

// failureCode maps core sentinel errors to event codes. Gateway failures
// are reported through notifications and never reach it.
func failureCode(err error) string {
	switch {
	case errors.Is(err, install.ErrBusy):
		return CodeBusy
	case errors.Is(err, install.ErrNotConfigurable):
		return CodeHostMissing
	case errors.Is(err, configure.ErrUnknownField):
		return CodeUnknownField
	}
	return CodeMutationFailed
}

// kindCode maps a gateway failure kind to an event code. Failures of
// unknown kind come from mutations.
func kindCode(kind gateway.Kind) string {
	switch kind {
	case gateway.QueryFailure:
		return CodeQueryFailed
	case gateway.NavigationFailure:
		return CodeNavigationFailed
	case gateway.MutationFailure:
	}
	return CodeMutationFailed
}

func (s *Service) app(name string) (catalog.App, error) {
	app, err := s.deps.Catalog.Get(name)
	if err != nil {
		return catalog.App{}, fmt.Errorf("%w: %s", err, name)
	}
	return app, nil
}

// ClientShow reports the selected client and whether its host app is present.
func (s *Service) ClientShow(ctx context.Context) (ClientStatus, error) {
	client := s.deps.Session.Client()
	installed, err := s.deps.Gateway.CheckHostInstalled(ctx, client)
	if err != nil {
		return ClientStatus{}, gateway.Query("check host", client.DisplayName(), err)
	}
	return ClientStatus{
		Client:        client.String(),
		DisplayName:   client.DisplayName(),
		HostInstalled: installed,
		CanRestart:    client.SupportsRestart(),
	}, nil
}

// ClientUse changes the selected client.
func (s *Service) ClientUse(ctx context.Context, client clients.Client) error {
	return s.deps.Session.SetClient(ctx, client)
}

// AppList lists catalog apps with their status for the selected client.
func (s *Service) AppList(ctx context.Context, includeHidden bool) ([]App, error) {
	client := s.deps.Session.Client()
	statuses, err := s.deps.Gateway.GetAppStatuses(ctx, client)
	if err != nil {
		return nil, gateway.Query("list", "", err)
	}
	apps := make([]App, 0, len(s.deps.Catalog.Apps()))
	for _, app := range s.deps.Catalog.All() {
		if app.Hidden && !includeHidden {
			continue
		}
		apps = append(apps, appView(app, statuses, nil))
	}
	return apps, nil
}

// AppStatus describes one app including its current setup values.
// Secret values are masked.
func (s *Service) AppStatus(ctx context.Context, name string) (App, error) {
	app, err := s.app(name)
	if err != nil {
		return App{}, err
	}
	client := s.deps.Session.Client()
	statuses, err := s.deps.Gateway.GetAppStatuses(ctx, client)
	if err != nil {
		return App{}, gateway.Query("status", app.Name, err)
	}
	var env map[string]string
	if app.RequiresSetup() {
		env, err = s.deps.Gateway.GetAppEnv(ctx, app.Name, client)
		if err != nil {
			logging.Warnf("Failed to load configuration for %s: %v", app.Name, err)
		}
	}
	return appView(app, statuses, env), nil
}

func appView(app catalog.App, statuses gateway.Statuses, env map[string]string) App {
	view := App{
		Name:          app.Name,
		Description:   app.Description,
		Category:      app.Category,
		Developer:     app.Developer,
		Installed:     statuses.Installed[app.Name],
		Configured:    statuses.Configured[app.Name],
		RequiresSetup: app.RequiresSetup(),
	}
	for _, field := range app.Setup {
		f := Field{Key: field.Key, Label: field.Label, Secret: field.Kind == catalog.KindSecret}
		if value, ok := env[field.Key]; ok {
			f.Value = value
			if f.Secret && value != "" {
				f.Value = "********"
			}
		}
		view.Fields = append(view.Fields, f)
	}
	return view
}

// AppToggle installs or uninstalls an app. Apps with setup fields need
// values from opts; they are saved before the install is issued.
func (s *Service) AppToggle(ctx context.Context, name string, opts ToggleOptions) <-chan ProgressEvent {
	return s.stream(ctx, func(e *emitter) {
		app, err := s.app(name)
		if err != nil {
			e.fail(CodeUnknownApp, err)
			return
		}
		client := s.deps.Session.Client()

		installed, err := s.deps.Gateway.IsInstalled(ctx, app.Name, client)
		if err != nil {
			e.fail(CodeQueryFailed, gateway.Query("toggle", app.Name, err))
			return
		}
		configurable := true
		if !installed && !opts.Force {
			configurable, err = s.deps.Gateway.CheckHostInstalled(ctx, client)
			if err != nil {
				logging.Warnf("Failed to check %s installation: %v", client.DisplayName(), err)
				configurable = true
			}
		}

		ctrl := install.New(app, installed, install.Deps{
			Gateway:  s.deps.Gateway,
			Session:  s.deps.Session,
			Notifier: e,
			Guard:    s.guard,
		}, install.WithConfigurable(configurable))
		defer ctrl.Close()

		verb := "Installing"
		if installed {
			verb = "Uninstalling"
		}
		e.emit(ProgressEvent{Type: EventLog, Message: fmt.Sprintf("%s %s for %s", verb, app.Name, client.DisplayName())})

		outcome, err := ctrl.Toggle(ctx)
		if err != nil {
			if errors.Is(err, install.ErrNotConfigurable) {
				err = fmt.Errorf("%w: %s is not installed, install it first or pass --force", err, client.DisplayName())
			}
			if !isFailure(err) {
				e.fail(failureCode(err), err)
			}
			return
		}
		if outcome == install.OutcomeConfigurationRequired {
			outcome, err = s.confirm(ctx, e, ctrl, opts.Values)
			if err != nil {
				return
			}
		}
		logging.Infof("Toggled %s for %s: %s", app.Name, client, outcome)
		s.relaunch(ctx, e, opts.Relaunch)
	})
}

func isFailure(err error) bool {
	var failure *gateway.Failure
	return errors.As(err, &failure)
}

func (s *Service) confirm(ctx context.Context, e *emitter, ctrl *install.Controller, values map[string]string) (install.Outcome, error) {
	prompt := ctrl.Prompt()
	if prompt == nil {
		e.fail(CodeMutationFailed, install.ErrNoPrompt)
		return install.OutcomeNone, install.ErrNoPrompt
	}
	if len(values) == 0 {
		err := fmt.Errorf("%s needs configuration: pass --set for %v", ctrl.App().Name, ctrl.App().SetupKeys())
		e.emit(ProgressEvent{
			Type:    EventError,
			Message: err.Error(),
			Code:    CodeConfigurationRequired,
			Data:    promptFields(prompt),
		})
		return install.OutcomeNone, err
	}
	if err := applyValues(prompt, values); err != nil {
		e.fail(CodeUnknownField, err)
		return install.OutcomeNone, err
	}
	outcome, err := ctrl.ConfirmConfiguration(ctx)
	if err != nil && !isFailure(err) {
		e.fail(failureCode(err), err)
	}
	return outcome, err
}

func applyValues(prompt *configure.Collector, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := prompt.SetField(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

func promptFields(prompt *configure.Collector) []Field {
	fields := make([]Field, 0, len(prompt.Fields()))
	for _, field := range prompt.Fields() {
		fields = append(fields, Field{
			Key:    field.Key,
			Label:  field.Label,
			Secret: field.Kind == catalog.KindSecret,
		})
	}
	return fields
}

func (s *Service) relaunch(ctx context.Context, e *emitter, run bool) {
	for _, action := range e.takeActions() {
		if !run {
			e.emit(ProgressEvent{Type: EventLog, Message: fmt.Sprintf("Available action: %s (pass --relaunch)", action.Label)})
			continue
		}
		if err := action.Run(ctx); err != nil {
			logging.Warnf("Action %q failed: %v", action.Label, err)
		}
	}
}

// AppConfigure saves setup values for an app without toggling it. An
// installed app is re-registered by the backend with the new values.
func (s *Service) AppConfigure(ctx context.Context, name string, opts ToggleOptions) <-chan ProgressEvent {
	return s.stream(ctx, func(e *emitter) {
		app, err := s.app(name)
		if err != nil {
			e.fail(CodeUnknownApp, err)
			return
		}
		if !app.RequiresSetup() {
			e.fail(CodeUnknownField, fmt.Errorf("%s has no setup fields", app.Name))
			return
		}
		collector := configure.New(app, s.deps.Session, s.deps.Gateway, e)
		defer collector.Close()
		collector.Load(ctx)
		if err := applyValues(collector, opts.Values); err != nil {
			e.fail(CodeUnknownField, err)
			return
		}
		if err := collector.SaveAll(ctx); err != nil {
			return
		}
		s.relaunch(ctx, e, opts.Relaunch)
	})
}

// AppEnv returns the stored configuration values of an app.
func (s *Service) AppEnv(ctx context.Context, name string) (map[string]string, error) {
	app, err := s.app(name)
	if err != nil {
		return nil, err
	}
	env, err := s.deps.Gateway.GetAppEnv(ctx, app.Name, s.deps.Session.Client())
	if err != nil {
		return nil, gateway.Query("get env", app.Name, err)
	}
	return env, nil
}

func (s *Service) settings(notifier notify.Notifier) *onboarding.Settings {
	return &onboarding.Settings{
		Gateway:  s.deps.Gateway,
		Session:  s.deps.Session,
		Finished: s.deps.Session,
		Notifier: notifier,
	}
}

// OnboardingStatus reads the onboarding flags for the selected client.
func (s *Service) OnboardingStatus(ctx context.Context) (OnboardingStatus, error) {
	client := s.deps.Session.Client()
	status := OnboardingStatus{Client: client.String(), Finished: s.deps.Session.OnboardingFinished()}

	completed, err := s.deps.Gateway.CheckOnboardingActionCompleted(ctx)
	if err != nil {
		return OnboardingStatus{}, gateway.Query("check onboarding", "", err)
	}
	status.ActionCompleted = completed

	if status.BootstrapEnabled, err = s.settings(notify.Discard).BootstrapEnabled(ctx); err != nil {
		return OnboardingStatus{}, err
	}
	if status.HostInstalled, err = s.deps.Gateway.CheckHostInstalled(ctx, client); err != nil {
		return OnboardingStatus{}, gateway.Query("check host", client.DisplayName(), err)
	}
	return status, nil
}

// OnboardingRun walks the onboarding flow in the terminal. Running the
// command stands in for the drag gesture; it then waits until the host
// reports the greeting or ctx ends.
func (s *Service) OnboardingRun(ctx context.Context, opts RunOptions) <-chan ProgressEvent {
	return s.stream(ctx, func(e *emitter) {
		done := make(chan struct{})
		var once sync.Once

		seq := onboarding.New(onboarding.Deps{
			Gateway:     s.deps.Gateway,
			Session:     s.deps.Session,
			Poll:        onboarding.NewIntervalTrigger(s.deps.PollInterval),
			DownloadURL: s.deps.DownloadURL,
			OnChange: func(state onboarding.State) {
				e.emit(stepEvent(state))
				if state.Step == onboarding.StepDone {
					once.Do(func() { close(done) })
				}
			},
			OnComplete: func(ctx context.Context) error {
				return s.deps.Session.SetOnboardingFinished(ctx, true)
			},
		})
		defer func() {
			seq.Close()
			seq.Wait()
		}()

		client := s.deps.Session.Client()
		if err := seq.DragSucceeded(ctx); err != nil {
			e.fail(CodeMutationFailed, err)
			return
		}

		if seq.State().Step == onboarding.StepHostLaunch {
			e.emit(ProgressEvent{Type: EventLog, Message: fmt.Sprintf("Open %s and say \"Hej Staten\" to finish", client.DisplayName())})
			if opts.Launch {
				s.launch(ctx, e, seq, client)
			}
		}

		select {
		case <-done:
		case <-ctx.Done():
			e.fail(CodeOnboardingTimeout, fmt.Errorf("onboarding did not finish: %w", ctx.Err()))
			return
		}

		if err := seq.Finish(ctx); err != nil {
			e.fail(CodeMutationFailed, fmt.Errorf("finish onboarding: %w", err))
			return
		}
		e.emit(ProgressEvent{Type: EventSuccess, Message: "Onboarding complete"})
	})
}

func (s *Service) launch(ctx context.Context, e *emitter, seq *onboarding.Sequencer, client clients.Client) {
	var err error
	switch seq.PrimaryAction() {
	case onboarding.ActionLaunchHost:
		e.emit(ProgressEvent{Type: EventLog, Message: fmt.Sprintf("Launching %s", client.DisplayName())})
		err = seq.LaunchHost(ctx)
	case onboarding.ActionDownloadHost:
		e.emit(ProgressEvent{Type: EventLog, Message: fmt.Sprintf("Opening the %s download page", client.DisplayName())})
		err = seq.DownloadHost(ctx)
	}
	if err != nil {
		e.emit(ProgressEvent{Type: EventLog, Message: err.Error(), Code: CodeNavigationFailed})
	}
}

// OnboardingComplete sets the onboarding action flag, as the bootstrap
// server's hello tool does.
func (s *Service) OnboardingComplete(ctx context.Context) error {
	if s.deps.Marker == nil {
		return errors.New("onboarding marker is not configured")
	}
	return s.deps.Marker.MarkOnboardingActionCompleted(ctx)
}

// OnboardingReset makes onboarding run again on next start.
func (s *Service) OnboardingReset(ctx context.Context) <-chan ProgressEvent {
	return s.stream(ctx, func(e *emitter) {
		_ = s.settings(e).Reset(ctx)
	})
}

// OnboardingBootstrap installs or removes the bootstrap app.
func (s *Service) OnboardingBootstrap(ctx context.Context, enabled bool) <-chan ProgressEvent {
	return s.stream(ctx, func(e *emitter) {
		_ = s.settings(e).SetBootstrapEnabled(ctx, enabled)
	})
}

// ServeMCP runs the bootstrap MCP server on stdio.
func (s *Service) ServeMCP(ctx context.Context) error {
	if s.deps.Marker == nil {
		return errors.New("onboarding marker is not configured")
	}
	return bootstrap.Serve(ctx, bootstrap.NewServer(s.deps.Marker, version.Get().Version))
}

// RunUI starts the interactive catalog.
func (s *Service) RunUI(ctx context.Context) error {
	if s.deps.UI == nil {
		return errors.New("interactive mode is not available")
	}
	return s.deps.UI(ctx)
}
