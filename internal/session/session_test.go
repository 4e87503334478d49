package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"staten/internal/clients"
	"staten/internal/database"
)

func TestInMemorySession(t *testing.T) {
	s := New(clients.Claude)

	if s.Client() != clients.Claude {
		t.Fatalf("Client() = %v, want claude", s.Client())
	}
	if err := s.SetClient(t.Context(), clients.Cursor); err != nil {
		t.Fatalf("SetClient() error = %v", err)
	}
	if s.Client() != clients.Cursor {
		t.Errorf("Client() = %v, want cursor", s.Client())
	}
	if err := s.SetClient(t.Context(), clients.Client(42)); !errors.Is(err, clients.ErrUnknownClient) {
		t.Errorf("SetClient(42) error = %v, want ErrUnknownClient", err)
	}
	if s.Client() != clients.Cursor {
		t.Errorf("invalid client must not replace selection, got %v", s.Client())
	}
}

func TestLoadRoundTrip(t *testing.T) {
	store, err := database.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close() //nolint:errcheck // Test cleanup
	ctx := t.Context()

	s, err := Load(ctx, store, clients.Claude)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Client() != clients.Claude || s.OnboardingFinished() {
		t.Fatalf("fresh session = %v/%v", s.Client(), s.OnboardingFinished())
	}

	if err := s.SetClient(ctx, clients.Cursor); err != nil {
		t.Fatalf("SetClient() error = %v", err)
	}
	if err := s.SetOnboardingFinished(ctx, true); err != nil {
		t.Fatalf("SetOnboardingFinished() error = %v", err)
	}

	restored, err := Load(ctx, store, clients.Claude)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if restored.Client() != clients.Cursor {
		t.Errorf("restored client = %v, want cursor", restored.Client())
	}
	if !restored.OnboardingFinished() {
		t.Error("restored session should be finished")
	}
}

type failingStore struct{}

func (failingStore) Setting(context.Context, string) (string, bool, error) { return "", false, nil }
func (failingStore) SetSetting(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestPersistFailureKeepsValue(t *testing.T) {
	s, err := Load(t.Context(), failingStore{}, clients.Claude)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.SetOnboardingFinished(t.Context(), true); err == nil {
		t.Fatal("expected persist error")
	}
	if s.OnboardingFinished() {
		t.Error("failed write must not change the session")
	}
}
