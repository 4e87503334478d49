package onboarding

// Step is a position in the onboarding flow.
type Step int

const (
	// StepDragPrompt waits for the user to drag the app into the host.
	StepDragPrompt Step = iota
	// StepHostLaunch waits for the user to greet the bootstrap app inside the host.
	StepHostLaunch
	// StepDone is terminal until Reset.
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepDragPrompt:
		return "drag-prompt"
	case StepHostLaunch:
		return "host-launch"
	case StepDone:
		return "done"
	}
	return "unknown"
}

// State is what the onboarding screen renders.
type State struct {
	Step          Step
	HostInstalled bool
}

// Action is the primary action offered in StepHostLaunch.
type Action int

const (
	ActionDownloadHost Action = iota
	ActionLaunchHost
)

func (a Action) String() string {
	switch a {
	case ActionDownloadHost:
		return "download"
	case ActionLaunchHost:
		return "launch"
	}
	return "unknown"
}

// PrimaryAction picks the host-launch step's action from the host detection result.
func (s State) PrimaryAction() Action {
	if s.HostInstalled {
		return ActionLaunchHost
	}
	return ActionDownloadHost
}
