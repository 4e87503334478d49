// Package onboarding drives the three-step first-run flow: drag the app into
// the host, greet it there, then move on to the catalog.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"staten/internal/clients"
	"staten/internal/gateway"
	"staten/internal/logging"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("onboarding closed")
	// ErrWrongStep is returned when an action does not apply to the current step.
	ErrWrongStep = errors.New("action not available in current step")
)

// Session yields the host client selected at call time.
type Session interface {
	Client() clients.Client
}

// Deps are the collaborators of a Sequencer. Poll defaults to a 2 second
// IntervalTrigger; a nil Focus never fires.
type Deps struct {
	Gateway     gateway.Gateway
	Session     Session
	Poll        Trigger
	Focus       Trigger
	DownloadURL string

	// OnChange observes every state change. It runs outside the sequencer's lock.
	OnChange func(State)
	// OnComplete persists that the flow itself is finished.
	OnComplete func(ctx context.Context) error
}

// Sequencer is the onboarding state machine. Poll and focus subscriptions
// exist only while in StepHostLaunch; each entry into that step gets a new
// epoch and callbacks from an older epoch are ignored.
type Sequencer struct {
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	epoch       uint64
	closed      bool
	unsubscribe func()
}

// New returns a sequencer at StepDragPrompt.
func New(deps Deps) *Sequencer {
	if deps.Poll == nil {
		deps.Poll = NewIntervalTrigger(DefaultPollInterval)
	}
	if deps.Focus == nil {
		deps.Focus = NewBroadcaster()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{deps: deps, ctx: ctx, cancel: cancel}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PrimaryAction returns the action offered in StepHostLaunch.
func (s *Sequencer) PrimaryAction() Action {
	return s.State().PrimaryAction()
}

// DragSucceeded advances from StepDragPrompt to StepHostLaunch. The bootstrap
// app is installed in the background; its outcome is only logged and never
// affects the step.
func (s *Sequencer) DragSucceeded(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Step != StepDragPrompt {
		s.mu.Unlock()
		return fmt.Errorf("%w: drag in %s", ErrWrongStep, s.state.Step)
	}
	s.state.Step = StepHostLaunch
	s.epoch++
	epoch := s.epoch
	state := s.state
	s.wg.Add(1)
	s.mu.Unlock()

	client := s.deps.Session.Client()
	s.changed(state)

	go func() {
		defer s.wg.Done()
		if err := s.deps.Gateway.InstallBootstrapApp(s.ctx, client); err != nil {
			logging.Warnf("Failed to install bootstrap app for %s: %v", client, gateway.Mutation("install", "bootstrap", err))
			return
		}
		logging.Infof("Installed bootstrap app for %s", client)
	}()

	s.enterHostLaunch(ctx, epoch)
	return nil
}

// LaunchHost restarts or opens the host client.
func (s *Sequencer) LaunchHost(ctx context.Context) error {
	if err := s.require(StepHostLaunch); err != nil {
		return err
	}
	client := s.deps.Session.Client()
	err := s.deps.Gateway.RestartHostApp(ctx, client)
	if s.isClosed() {
		return ErrClosed
	}
	if err != nil {
		failure := gateway.Navigation("launch", client.DisplayName(), err)
		logging.Errorf("Failed to open %s: %v", client.DisplayName(), failure)
		return failure
	}
	return nil
}

// DownloadHost opens the host client's download page.
func (s *Sequencer) DownloadHost(ctx context.Context) error {
	if err := s.require(StepHostLaunch); err != nil {
		return err
	}
	err := s.deps.Gateway.OpenExternalURL(ctx, s.deps.DownloadURL)
	if s.isClosed() {
		return ErrClosed
	}
	if err != nil {
		failure := gateway.Navigation("open download page", "", err)
		logging.Errorf("Failed to open download page: %v", failure)
		return failure
	}
	return nil
}

// Finish hands completion to the caller. Only valid in StepDone.
func (s *Sequencer) Finish(ctx context.Context) error {
	if err := s.require(StepDone); err != nil {
		return err
	}
	if s.deps.OnComplete == nil {
		return nil
	}
	return s.deps.OnComplete(ctx)
}

// Reset clears the backend completion flag and returns to StepDragPrompt.
func (s *Sequencer) Reset(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.deps.Gateway.ResetOnboardingCompleted(ctx)
	if err != nil {
		failure := gateway.Mutation("reset", "onboarding", err)
		logging.Errorf("Failed to reset onboarding: %v", failure)
		return failure
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.epoch++
	s.state = State{Step: StepDragPrompt}
	unsubscribe := s.takeSubscriptionLocked()
	state := s.state
	s.mu.Unlock()

	unsubscribe()
	s.changed(state)
	return nil
}

// Close cancels subscriptions and background work. Callbacks still in
// flight complete without effect.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	unsubscribe := s.takeSubscriptionLocked()
	s.mu.Unlock()

	unsubscribe()
	s.cancel()
}

// Wait blocks until background side effects, such as the bootstrap
// install, have finished.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) enterHostLaunch(ctx context.Context, epoch uint64) {
	stopPoll := s.deps.Poll.Subscribe(func() {
		s.checkCompletion(s.ctx, epoch)
	})
	stopFocus := s.deps.Focus.Subscribe(func() {
		s.checkHost(s.ctx, epoch)
		s.checkCompletion(s.ctx, epoch)
	})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			stopPoll()
			stopFocus()
		})
	}

	s.mu.Lock()
	if !s.currentLocked(epoch) {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.checkHost(ctx, epoch)
	s.checkCompletion(ctx, epoch)
}

func (s *Sequencer) checkHost(ctx context.Context, epoch uint64) {
	if !s.current(epoch) {
		return
	}
	client := s.deps.Session.Client()
	installed, err := s.deps.Gateway.CheckHostInstalled(ctx, client)

	s.mu.Lock()
	if !s.currentLocked(epoch) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		logging.Warnf("Failed to check %s installation: %v", client.DisplayName(), gateway.Query("check host", client.DisplayName(), err))
		return
	}
	if s.state.HostInstalled == installed {
		s.mu.Unlock()
		return
	}
	s.state.HostInstalled = installed
	state := s.state
	s.mu.Unlock()

	s.changed(state)
}

func (s *Sequencer) checkCompletion(ctx context.Context, epoch uint64) {
	if !s.current(epoch) {
		return
	}
	done, err := s.deps.Gateway.CheckOnboardingActionCompleted(ctx)

	s.mu.Lock()
	if !s.currentLocked(epoch) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		logging.Warnf("Failed to check onboarding status: %v", gateway.Query("check onboarding", "", err))
		return
	}
	if !done {
		s.mu.Unlock()
		return
	}
	s.state.Step = StepDone
	s.epoch++
	unsubscribe := s.takeSubscriptionLocked()
	state := s.state
	s.mu.Unlock()

	unsubscribe()
	logging.Infof("Onboarding action completed")
	s.changed(state)
}

// currentLocked reports whether callbacks of epoch may still act.
func (s *Sequencer) currentLocked(epoch uint64) bool {
	return !s.closed && s.epoch == epoch && s.state.Step == StepHostLaunch
}

func (s *Sequencer) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(epoch)
}

func (s *Sequencer) takeSubscriptionLocked() func() {
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	if unsubscribe == nil {
		return func() {}
	}
	return unsubscribe
}

func (s *Sequencer) require(step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Step != step {
		return fmt.Errorf("%w: %s", ErrWrongStep, s.state.Step)
	}
	return nil
}

func (s *Sequencer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sequencer) changed(state State) {
	if s.deps.OnChange != nil {
		s.deps.OnChange(state)
	}
}
