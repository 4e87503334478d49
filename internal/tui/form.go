package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"staten/internal/catalog"
	"staten/internal/configure"
	"staten/internal/install"
)

// form edits the setup values of one app. With a controller it is the
// install prompt and saving installs; without one it only saves values.
type form struct {
	app       catalog.App
	collector *configure.Collector
	ctrl      *install.Controller
	editable  []int
	focus     int
	saving    bool
}

func newForm(app catalog.App, collector *configure.Collector, ctrl *install.Controller) *form {
	f := &form{app: app, collector: collector, ctrl: ctrl}
	for i, field := range app.Setup {
		if field.Kind == catalog.KindSecret {
			f.editable = append(f.editable, i)
		}
	}
	return f
}

func (f *form) current() (catalog.SetupField, bool) {
	if len(f.editable) == 0 {
		return catalog.SetupField{}, false
	}
	return f.app.Setup[f.editable[f.focus]], true
}

func (f *form) move(delta int) {
	if len(f.editable) == 0 {
		return
	}
	f.focus = (f.focus + delta + len(f.editable)) % len(f.editable)
}

func (m *Model) updateForm(msg tea.KeyMsg) tea.Cmd {
	f := m.form
	if f.saving {
		return nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		m.closeForm()
		return nil
	case tea.KeyEnter, tea.KeyCtrlS:
		return m.saveForm()
	case tea.KeyTab, tea.KeyDown:
		f.move(1)
		return nil
	case tea.KeyShiftTab, tea.KeyUp:
		f.move(-1)
		return nil
	case tea.KeyBackspace:
		if field, ok := f.current(); ok {
			value := []rune(f.collector.Value(field.Key))
			if len(value) > 0 {
				_ = f.collector.SetField(field.Key, string(value[:len(value)-1]))
			}
		}
		return nil
	case tea.KeyCtrlU:
		if field, ok := f.current(); ok {
			_ = f.collector.SetField(field.Key, "")
		}
		return nil
	case tea.KeyRunes, tea.KeySpace:
		if field, ok := f.current(); ok {
			_ = f.collector.SetField(field.Key, f.collector.Value(field.Key)+string(msg.Runes))
		}
		return nil
	}
	return nil
}

func (m *Model) saveForm() tea.Cmd {
	f := m.form
	f.saving = true
	ctx := m.ctx
	if f.ctrl != nil {
		ctrl := f.ctrl
		return func() tea.Msg {
			_, err := ctrl.ConfirmConfiguration(ctx)
			return formSavedMsg{app: f.app.Name, err: err}
		}
	}
	collector := f.collector
	return func() tea.Msg {
		return formSavedMsg{app: f.app.Name, err: collector.SaveAll(ctx)}
	}
}

func (f *form) view() string {
	var b strings.Builder
	title := "Configure " + f.app.Name
	if f.ctrl != nil {
		title = "Set up " + f.app.Name
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	focused, _ := f.current()
	for _, field := range f.app.Setup {
		value := f.collector.Value(field.Key)
		switch field.Kind {
		case catalog.KindText:
			b.WriteString(mutedStyle.Render(field.Label+": ") + textStyle.Render(field.Text))
		case catalog.KindSecret:
			marker := "  "
			label := textStyle.Render(field.Label)
			if field.Key == focused.Key {
				marker = cursorStyle.Render("> ")
				label = cursorStyle.Render(field.Label)
			}
			shown := strings.Repeat("*", len([]rune(value)))
			if value == "" {
				shown = mutedStyle.Render(field.Placeholder)
			}
			b.WriteString(marker + label + "\n    " + shown)
		}
		b.WriteString("\n")
	}

	help := "enter save  tab next field  esc cancel"
	if f.saving {
		help = "saving..."
	}
	b.WriteString(helpStyle.Render(help))
	return panelStyle.Render(b.String())
}
