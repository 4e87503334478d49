package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"staten/internal/logging"
)

// Run shows the terminal UI until the user quits or ctx ends. Log output is
// detached from the terminal while it runs.
func Run(ctx context.Context, deps Deps) error {
	m := New(ctx, deps)
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	m.SetSender(p.Send)

	logging.Detach()
	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}
