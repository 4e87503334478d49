// Package session holds the process-wide selections shared by the install and
// onboarding components. Each field has a single writer: the client selector
// owns Client and the onboarding screen owns OnboardingFinished. Readers take
// the current value at call time and never cache it.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"staten/internal/clients"
)

const (
	keyClient             = "selected_client"
	keyOnboardingFinished = "onboarding_finished"
)

// Store persists session fields between runs.
type Store interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Session is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	client   clients.Client
	finished bool
	store    Store
}

// New returns an in-memory session.
func New(client clients.Client) *Session {
	return &Session{client: client}
}

// Load restores a session from store, using fallback when no client was saved.
func Load(ctx context.Context, store Store, fallback clients.Client) (*Session, error) {
	s := &Session{client: fallback, store: store}

	if name, ok, err := store.Setting(ctx, keyClient); err != nil {
		return nil, err
	} else if ok {
		client, err := clients.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("stored client: %w", err)
		}
		s.client = client
	}

	if raw, ok, err := store.Setting(ctx, keyOnboardingFinished); err != nil {
		return nil, err
	} else if ok {
		s.finished, _ = strconv.ParseBool(raw)
	}

	return s, nil
}

// Client returns the currently selected host client.
func (s *Session) Client() clients.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// SetClient changes the selected host client.
func (s *Session) SetClient(ctx context.Context, client clients.Client) error {
	if !client.Valid() {
		return fmt.Errorf("%w: %d", clients.ErrUnknownClient, int(client))
	}
	if err := s.persist(ctx, keyClient, client.String()); err != nil {
		return err
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// OnboardingFinished reports whether the user completed the onboarding flow.
func (s *Session) OnboardingFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// SetOnboardingFinished records the end (or reset) of the onboarding flow.
func (s *Session) SetOnboardingFinished(ctx context.Context, finished bool) error {
	if err := s.persist(ctx, keyOnboardingFinished, strconv.FormatBool(finished)); err != nil {
		return err
	}
	s.mu.Lock()
	s.finished = finished
	s.mu.Unlock()
	return nil
}

func (s *Session) persist(ctx context.Context, key, value string) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}
