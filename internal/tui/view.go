package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"staten/internal/catalog"
	"staten/internal/notify"
	"staten/internal/onboarding"
)

// View implements tea.Model.
func (m *Model) View() string {
	var body string
	switch {
	case m.form != nil:
		body = m.form.view()
	case m.screen == screenOnboarding:
		body = m.onboardingView()
	default:
		body = m.catalogView()
	}

	parts := []string{m.header(), body}
	if toast := m.toastView(); toast != "" {
		parts = append(parts, toast)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) header() string {
	client := m.deps.Session.Client()
	host := client.DisplayName()
	if m.loaded && !m.hostInstalled {
		host += " (not installed)"
	}
	return titleStyle.Render("Staten") + subtitleStyle.Render("  for "+host) + "\n"
}

var stepTitles = []struct {
	step  onboarding.Step
	title string
}{
	{onboarding.StepDragPrompt, "Add Staten"},
	{onboarding.StepHostLaunch, "Say hello"},
	{onboarding.StepDone, "Done"},
}

func (m *Model) onboardingView() string {
	host := m.deps.Session.Client().DisplayName()

	var steps []string
	for _, s := range stepTitles {
		label := fmt.Sprintf("%d. %s", int(s.step)+1, s.title)
		switch {
		case s.step < m.state.Step:
			steps = append(steps, stepDone.Render(label))
		case s.step == m.state.Step:
			steps = append(steps, stepActive.Render(label))
		default:
			steps = append(steps, mutedStyle.Render(label))
		}
	}

	var text, action string
	switch m.state.Step {
	case onboarding.StepDragPrompt:
		text = fmt.Sprintf("Staten adds apps to %s. First, add Staten itself.", host)
		action = "enter  add Staten to " + host
	case onboarding.StepHostLaunch:
		text = fmt.Sprintf("Open %s and type \"Hej Staten\". This screen moves on by itself.", host)
		if m.state.PrimaryAction() == onboarding.ActionLaunchHost {
			action = "enter  open " + host
		} else {
			action = "enter  download " + host
		}
	case onboarding.StepDone:
		text = fmt.Sprintf("%s is talking to Staten. Time to pick some apps.", host)
		action = "enter  browse apps"
	}

	content := strings.Join(steps, "   ") + "\n\n" + textStyle.Render(text)
	return panelStyle.Render(content) + "\n" + helpStyle.Render(action+"  q quit")
}

func (m *Model) catalogView() string {
	if !m.loaded {
		return mutedStyle.Render("Loading apps...")
	}
	var b strings.Builder
	for i, app := range m.apps {
		marker := "  "
		name := textStyle.Render(fmt.Sprintf("%-14s", app.Name))
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
			name = cursorStyle.Render(fmt.Sprintf("%-14s", app.Name))
		}
		b.WriteString(marker + name + " " + m.badge(app.Name, app.RequiresSetup()) + " " + mutedStyle.Render(app.Description))
		b.WriteString("\n")
	}

	bootstrap := "off"
	if m.statuses.Installed[catalog.BootstrapAppName] {
		bootstrap = "on"
	}
	help := fmt.Sprintf("enter toggle  c configure  tab switch client  b onboarding app (%s)  r reset onboarding  q quit", bootstrap)
	if m.toast != nil && m.toast.Action != nil {
		help = "a " + strings.ToLower(m.toast.Action.Label) + "  " + help
	}
	return b.String() + helpStyle.Render(help)
}

func (m *Model) badge(name string, requiresSetup bool) string {
	if ctrl, ok := m.controllers[name]; ok {
		if ctrl.Busy() {
			return badgeBusy.Render(fmt.Sprintf("%-11s", "working"))
		}
		if ctrl.Installed() {
			return badgeInstalled.Render(fmt.Sprintf("%-11s", "installed"))
		}
	} else if m.statuses.Installed[name] {
		return badgeInstalled.Render(fmt.Sprintf("%-11s", "installed"))
	}
	if requiresSetup && !m.statuses.Configured[name] {
		return badgeSetup.Render(fmt.Sprintf("%-11s", "needs setup"))
	}
	return mutedStyle.Render(fmt.Sprintf("%-11s", "get"))
}

func (m *Model) toastView() string {
	if m.toast == nil {
		return ""
	}
	switch m.toast.Level {
	case notify.LevelSuccess:
		return toastSuccess.Render(m.toast.Message)
	case notify.LevelError:
		return toastError.Render(m.toast.Message)
	case notify.LevelInfo:
	}
	return toastInfo.Render(m.toast.Message)
}
