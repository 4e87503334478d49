// Package bootstrap is the MCP server registered in the host during
// onboarding. Its hello tool marks the onboarding action as completed.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"staten/internal/logging"
)

const (
	serverName = "staten"
	// HelloTool is the tool the host calls when the user greets staten.
	HelloTool = "hello"
)

// Marker records that the onboarding action happened.
type Marker interface {
	MarkOnboardingActionCompleted(ctx context.Context) error
}

// HelloInput is the optional payload of the hello tool.
type HelloInput struct {
	Name string `json:"name,omitempty" jsonschema:"name the user signed with, if any"`
}

// HelloResult is returned to the host.
type HelloResult struct {
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
}

// NewServer builds the bootstrap MCP server.
func NewServer(marker Marker, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        HelloTool,
		Description: `Call this when the user greets Staten (for example "Hej Staten"). It completes the Staten onboarding.`,
	}, helloHandler(marker))
	return server
}

func helloHandler(marker Marker) mcp.ToolHandlerFor[HelloInput, HelloResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input HelloInput) (*mcp.CallToolResult, HelloResult, error) {
		if err := marker.MarkOnboardingActionCompleted(ctx); err != nil {
			logging.Errorf("Failed to mark onboarding completed: %v", err)
			return nil, HelloResult{}, fmt.Errorf("mark onboarding completed: %w", err)
		}
		greeting := "Hej!"
		if input.Name != "" {
			greeting = fmt.Sprintf("Hej %s!", input.Name)
		}
		logging.Infof("Onboarding action completed through %s tool", HelloTool)
		return nil, HelloResult{
			Message:   greeting + " Staten is connected. Head back to the Staten window to add more apps.",
			Completed: true,
		}, nil
	}
}

// Serve runs server on stdio until ctx ends or the host disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return serveWithTransport(ctx, server, &mcp.StdioTransport{})
}

func serveWithTransport(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	if server == nil {
		return errors.New("MCP server is not configured")
	}
	err := server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
