package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeMarker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeMarker) MarkOnboardingActionCompleted(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func connect(t *testing.T, marker Marker) *mcp.ClientSession {
	t.Helper()
	ctx := t.Context()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := NewServer(marker, "test").Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() }) //nolint:errcheck // Test cleanup

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() }) //nolint:errcheck // Test cleanup
	return session
}

func TestHelloMarksOnboarding(t *testing.T) {
	marker := &fakeMarker{}
	session := connect(t, marker)

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      HelloTool,
		Arguments: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %+v", result.Content)
	}
	if marker.calls != 1 {
		t.Errorf("marker called %d times, want 1", marker.calls)
	}
	structured, ok := result.StructuredContent.(map[string]any)
	if !ok || structured["completed"] != true {
		t.Errorf("structured content = %#v", result.StructuredContent)
	}
}

func TestHelloReportsFailure(t *testing.T) {
	marker := &fakeMarker{err: errors.New("database locked")}
	session := connect(t, marker)

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: HelloTool})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error result")
	}
}

func TestListToolsIncludesHello(t *testing.T) {
	session := connect(t, &fakeMarker{})

	tools, err := session.ListTools(t.Context(), nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != HelloTool {
		t.Errorf("tools = %+v", tools.Tools)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, _ := mcp.NewInMemoryTransports()

	done := make(chan error, 1)
	go func() {
		done <- serveWithTransport(ctx, NewServer(&fakeMarker{}, "test"), serverTransport)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeRequiresServer(t *testing.T) {
	if err := serveWithTransport(t.Context(), nil, &mcp.StdioTransport{}); err == nil {
		t.Fatal("expected error for nil server")
	}
}
