package onboarding

import (
	"context"
	"fmt"

	"staten/internal/catalog"
	"staten/internal/gateway"
	"staten/internal/logging"
	"staten/internal/notify"
)

// FinishedStore records whether the onboarding flow was completed.
type FinishedStore interface {
	SetOnboardingFinished(ctx context.Context, finished bool) error
}

// Settings exposes the onboarding switches shown outside the flow itself.
type Settings struct {
	Gateway  gateway.Gateway
	Session  Session
	Finished FinishedStore
	Notifier notify.Notifier
}

func (s *Settings) notifier() notify.Notifier {
	if s.Notifier == nil {
		return notify.Discard
	}
	return s.Notifier
}

// BootstrapEnabled reports whether the bootstrap app is installed in the
// selected client.
func (s *Settings) BootstrapEnabled(ctx context.Context) (bool, error) {
	client := s.Session.Client()
	statuses, err := s.Gateway.GetAppStatuses(ctx, client)
	if err != nil {
		failure := gateway.Query("get statuses", catalog.BootstrapAppName, err)
		logging.Warnf("Failed to fetch %s status: %v", catalog.BootstrapAppName, failure)
		return false, failure
	}
	return statuses.Installed[catalog.BootstrapAppName], nil
}

// SetBootstrapEnabled installs or removes the bootstrap app.
func (s *Settings) SetBootstrapEnabled(ctx context.Context, enabled bool) error {
	client := s.Session.Client()
	verb, done := "disable", "Disabled"
	var err error
	if enabled {
		verb, done = "enable", "Enabled"
		err = s.Gateway.InstallBootstrapApp(ctx, client)
	} else {
		err = s.Gateway.UninstallBootstrapApp(ctx, client)
	}
	if err != nil {
		failure := gateway.Mutation(verb, catalog.BootstrapAppName, err)
		logging.Errorf("Failed to %s %s onboarding: %v", verb, catalog.BootstrapAppName, failure)
		s.notifier().Notify(notify.Error(fmt.Sprintf("Failed to %s %s onboarding", verb, catalog.BootstrapAppName)).WithErr(failure))
		return failure
	}
	s.notifier().Notify(notify.Success(fmt.Sprintf("%s %s onboarding", done, catalog.BootstrapAppName)))
	return nil
}

// Reset clears the backend completion flag and then marks the flow
// unfinished, so it runs again on next start. A failed backend reset
// leaves the session untouched.
func (s *Settings) Reset(ctx context.Context) error {
	if err := s.Gateway.ResetOnboardingCompleted(ctx); err != nil {
		failure := gateway.Mutation("reset", "onboarding", err)
		logging.Errorf("Failed to reset onboarding: %v", failure)
		s.notifier().Notify(notify.Error("Failed to reset onboarding").WithErr(failure))
		return failure
	}
	if s.Finished != nil {
		if err := s.Finished.SetOnboardingFinished(ctx, false); err != nil {
			logging.Errorf("Failed to clear onboarding state: %v", err)
			s.notifier().Notify(notify.Error("Failed to reset onboarding").WithErr(err))
			return err
		}
	}
	s.notifier().Notify(notify.Success("Onboarding reset"))
	return nil
}
