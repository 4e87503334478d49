package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failed command by what it attempted.
type Kind int

const (
	// MutationFailure covers rejected install, uninstall and save commands.
	MutationFailure Kind = iota + 1
	// QueryFailure covers rejected status and read commands.
	QueryFailure
	// NavigationFailure covers routing and external launches.
	NavigationFailure
)

func (k Kind) String() string {
	switch k {
	case MutationFailure:
		return "mutation"
	case QueryFailure:
		return "query"
	case NavigationFailure:
		return "navigation"
	}
	return "unknown"
}

// Failure wraps a backend error with the action and app it concerned.
type Failure struct {
	Kind   Kind
	Action string
	App    string
	Err    error
}

func (f *Failure) Error() string {
	target := f.App
	if target == "" {
		target = "-"
	}
	return fmt.Sprintf("%s failure: %s %s: %v", f.Kind, f.Action, target, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Mutation builds a MutationFailure.
func Mutation(action, app string, err error) *Failure {
	return &Failure{Kind: MutationFailure, Action: action, App: app, Err: err}
}

// Query builds a QueryFailure.
func Query(action, app string, err error) *Failure {
	return &Failure{Kind: QueryFailure, Action: action, App: app, Err: err}
}

// Navigation builds a NavigationFailure.
func Navigation(action, app string, err error) *Failure {
	return &Failure{Kind: NavigationFailure, Action: action, App: app, Err: err}
}

// KindOf returns the failure kind carried by err, or 0 when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
