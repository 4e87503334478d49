package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"staten/internal/clients"
	"staten/internal/gateway"
	"staten/internal/gateway/gatewaytest"
	"staten/internal/session"
)

type fixture struct {
	gw      *gatewaytest.Fake
	poll    *Broadcaster
	focus   *Broadcaster
	seq     *Sequencer
	mu      sync.Mutex
	changes []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:    gatewaytest.New(),
		poll:  NewBroadcaster(),
		focus: NewBroadcaster(),
	}
	f.seq = New(Deps{
		Gateway:     f.gw,
		Session:     session.New(clients.Claude),
		Poll:        f.poll,
		Focus:       f.focus,
		DownloadURL: "https://claude.ai/download",
		OnChange: func(s State) {
			f.mu.Lock()
			f.changes = append(f.changes, s)
			f.mu.Unlock()
		},
	})
	t.Cleanup(func() {
		f.seq.Close()
		f.seq.Wait()
	})
	return f
}

func (f *fixture) doneTransitions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.changes {
		if s.Step == StepDone {
			n++
		}
	}
	return n
}

func (f *fixture) enterHostLaunch(t *testing.T) {
	t.Helper()
	if err := f.seq.DragSucceeded(t.Context()); err != nil {
		t.Fatalf("DragSucceeded() error = %v", err)
	}
	f.seq.Wait()
	if got := f.seq.State().Step; got != StepHostLaunch {
		t.Fatalf("step = %v, want host-launch", got)
	}
}

func TestDragInstallsBootstrapOnce(t *testing.T) {
	tests := []struct {
		name string
		fail error
	}{
		{name: "bootstrap succeeds"},
		{name: "bootstrap fails", fail: errors.New("host config locked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gw.SetFail(gatewaytest.CmdInstallBootstrap, tt.fail)

			if got := f.seq.State().Step; got != StepDragPrompt {
				t.Fatalf("initial step = %v", got)
			}

			f.enterHostLaunch(t)

			if n := f.gw.Count(gatewaytest.CmdInstallBootstrap); n != 1 {
				t.Errorf("bootstrap install issued %d times, want 1", n)
			}
			call, _ := f.gw.Last(gatewaytest.CmdInstallBootstrap)
			if call.Client != clients.Claude {
				t.Errorf("bootstrap client = %v", call.Client)
			}
			if err := f.seq.DragSucceeded(t.Context()); !errors.Is(err, ErrWrongStep) {
				t.Errorf("second drag error = %v, want ErrWrongStep", err)
			}
			f.seq.Wait()
			if n := f.gw.Count(gatewaytest.CmdInstallBootstrap); n != 1 {
				t.Errorf("bootstrap install issued %d times after second drag", n)
			}
		})
	}
}

func TestEntryChecksHostAndCompletion(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHostInstalled(true)
	f.enterHostLaunch(t)

	if n := f.gw.Count(gatewaytest.CmdCheckHost); n != 1 {
		t.Errorf("host checks = %d, want 1", n)
	}
	if n := f.gw.Count(gatewaytest.CmdCheckOnboarding); n != 1 {
		t.Errorf("completion checks = %d, want 1", n)
	}
	if f.seq.PrimaryAction() != ActionLaunchHost {
		t.Errorf("PrimaryAction() = %v, want launch", f.seq.PrimaryAction())
	}
	if f.poll.Subscribers() != 1 || f.focus.Subscribers() != 1 {
		t.Errorf("subscribers poll=%d focus=%d, want 1/1", f.poll.Subscribers(), f.focus.Subscribers())
	}
}

func TestPollCompletesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.enterHostLaunch(t)

	f.poll.Fire()
	if got := f.seq.State().Step; got != StepHostLaunch {
		t.Fatalf("step after false poll = %v", got)
	}

	f.gw.SetCompleted(true)
	f.poll.Fire()
	if got := f.seq.State().Step; got != StepDone {
		t.Fatalf("step after true poll = %v, want done", got)
	}

	polls := f.gw.Count(gatewaytest.CmdCheckOnboarding)
	f.poll.Fire()
	f.poll.Fire()
	if n := f.gw.Count(gatewaytest.CmdCheckOnboarding); n != polls {
		t.Errorf("completion polled %d more times after done", n-polls)
	}
	if n := f.doneTransitions(); n != 1 {
		t.Errorf("done transitions = %d, want 1", n)
	}
	if f.poll.Subscribers() != 0 || f.focus.Subscribers() != 0 {
		t.Errorf("subscriptions left: poll=%d focus=%d", f.poll.Subscribers(), f.focus.Subscribers())
	}
}

func TestCompletedOnEntry(t *testing.T) {
	f := newFixture(t)
	f.gw.SetCompleted(true)
	f.enterHostLaunchExpectDone(t)
}

func (f *fixture) enterHostLaunchExpectDone(t *testing.T) {
	t.Helper()
	if err := f.seq.DragSucceeded(t.Context()); err != nil {
		t.Fatalf("DragSucceeded() error = %v", err)
	}
	if got := f.seq.State().Step; got != StepDone {
		t.Fatalf("step = %v, want done", got)
	}
	if f.poll.Subscribers() != 0 {
		t.Error("poll subscription should be cancelled")
	}
}

func TestFocusAfterExitIssuesNoQueries(t *testing.T) {
	exits := []struct {
		name  string
		leave func(t *testing.T, f *fixture)
	}{
		{
			name: "completed",
			leave: func(t *testing.T, f *fixture) {
				f.gw.SetCompleted(true)
				f.poll.Fire()
			},
		},
		{
			name: "closed",
			leave: func(t *testing.T, f *fixture) {
				f.seq.Close()
			},
		},
		{
			name: "reset",
			leave: func(t *testing.T, f *fixture) {
				if err := f.seq.Reset(t.Context()); err != nil {
					t.Fatalf("Reset() error = %v", err)
				}
			},
		},
	}

	for _, tt := range exits {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enterHostLaunch(t)
			tt.leave(t, f)

			hosts := f.gw.Count(gatewaytest.CmdCheckHost)
			completions := f.gw.Count(gatewaytest.CmdCheckOnboarding)
			f.focus.Fire()
			f.poll.Fire()

			if n := f.gw.Count(gatewaytest.CmdCheckHost); n != hosts {
				t.Errorf("host queried %d times after exit", n-hosts)
			}
			if n := f.gw.Count(gatewaytest.CmdCheckOnboarding); n != completions {
				t.Errorf("completion queried %d times after exit", n-completions)
			}
		})
	}
}

func TestFocusRechecksHostAndCompletion(t *testing.T) {
	f := newFixture(t)
	f.enterHostLaunch(t)
	if f.seq.PrimaryAction() != ActionDownloadHost {
		t.Fatalf("PrimaryAction() = %v, want download", f.seq.PrimaryAction())
	}

	f.gw.SetHostInstalled(true)
	f.focus.Fire()

	if f.seq.PrimaryAction() != ActionLaunchHost {
		t.Errorf("PrimaryAction() after focus = %v, want launch", f.seq.PrimaryAction())
	}
	if n := f.gw.Count(gatewaytest.CmdCheckHost); n != 2 {
		t.Errorf("host checks = %d, want 2", n)
	}
	if n := f.gw.Count(gatewaytest.CmdCheckOnboarding); n != 2 {
		t.Errorf("completion checks = %d, want 2", n)
	}
}

func TestQueryFailureKeepsStep(t *testing.T) {
	f := newFixture(t)
	f.gw.SetCompleted(true)
	f.gw.SetFail(gatewaytest.CmdCheckOnboarding, errors.New("timeout"))
	f.enterHostLaunch(t)

	f.poll.Fire()
	f.focus.Fire()
	if got := f.seq.State().Step; got != StepHostLaunch {
		t.Fatalf("step = %v, want host-launch after failed queries", got)
	}

	f.gw.SetFail(gatewaytest.CmdCheckOnboarding, nil)
	f.poll.Fire()
	if got := f.seq.State().Step; got != StepDone {
		t.Errorf("step = %v, want done once the query succeeds", got)
	}
}

func TestCloseDuringQueryDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	f.enterHostLaunch(t)

	f.gw.SetCompleted(true)
	f.gw.OnCall = func(call gatewaytest.Call) {
		if call.Command == gatewaytest.CmdCheckOnboarding {
			f.seq.Close()
		}
	}
	f.poll.Fire()

	if got := f.seq.State().Step; got != StepHostLaunch {
		t.Errorf("step = %v, closed sequencer must not advance", got)
	}
	if n := f.doneTransitions(); n != 0 {
		t.Errorf("done transitions = %d after close", n)
	}
}

func TestHostActions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if err := f.seq.LaunchHost(ctx); !errors.Is(err, ErrWrongStep) {
		t.Errorf("LaunchHost() before drag error = %v, want ErrWrongStep", err)
	}
	f.enterHostLaunch(t)

	if err := f.seq.LaunchHost(ctx); err != nil {
		t.Fatalf("LaunchHost() error = %v", err)
	}
	if err := f.seq.DownloadHost(ctx); err != nil {
		t.Fatalf("DownloadHost() error = %v", err)
	}
	open, _ := f.gw.Last(gatewaytest.CmdOpenURL)
	if open.URL != "https://claude.ai/download" {
		t.Errorf("opened %q", open.URL)
	}

	f.gw.SetFail(gatewaytest.CmdRestartHost, errors.New("not found"))
	if err := f.seq.LaunchHost(ctx); gateway.KindOf(err) != gateway.NavigationFailure {
		t.Errorf("LaunchHost() error = %v, want navigation failure", err)
	}
}

func TestFinishAndReset(t *testing.T) {
	f := newFixture(t)
	completed := 0
	f.seq.deps.OnComplete = func(context.Context) error {
		completed++
		return nil
	}
	ctx := t.Context()

	if err := f.seq.Finish(ctx); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Finish() in drag step error = %v, want ErrWrongStep", err)
	}

	f.gw.SetCompleted(true)
	f.enterHostLaunchExpectDone(t)
	f.seq.Wait()

	if err := f.seq.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if completed != 1 {
		t.Errorf("OnComplete called %d times", completed)
	}

	if err := f.seq.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := f.seq.State(); got.Step != StepDragPrompt || got.HostInstalled {
		t.Errorf("state after reset = %+v", got)
	}
	if f.gw.Count(gatewaytest.CmdResetOnboarding) != 1 {
		t.Error("reset command not issued")
	}

	f.enterHostLaunch(t)
	if n := f.gw.Count(gatewaytest.CmdInstallBootstrap); n != 2 {
		t.Errorf("bootstrap installs = %d, want one per drag", n)
	}
}

func TestResetFailureKeepsStep(t *testing.T) {
	f := newFixture(t)
	f.enterHostLaunch(t)
	f.gw.SetFail(gatewaytest.CmdResetOnboarding, errors.New("locked"))

	if err := f.seq.Reset(t.Context()); gateway.KindOf(err) != gateway.MutationFailure {
		t.Fatalf("Reset() error = %v, want mutation failure", err)
	}
	if got := f.seq.State().Step; got != StepHostLaunch {
		t.Errorf("step = %v, want host-launch", got)
	}
}
