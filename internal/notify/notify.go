// Package notify carries transient, dismissible user notifications.
package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultDuration is how long an acknowledgment stays visible.
const DefaultDuration = 10 * time.Second

// Level distinguishes acknowledgments from failures.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// Action is an optional follow-up offered with a notification.
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// Notification is one message for the user.
type Notification struct {
	Level    Level
	Message  string
	Duration time.Duration
	Action   *Action
	// Err is the failure behind a LevelError notification, when known.
	Err      error
}

// Notifier displays notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) {
	f(n)
}

// Success builds an acknowledgment with the default duration.
func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message, Duration: DefaultDuration}
}

// Error builds a failure notification.
func Error(message string) Notification {
	return Notification{Level: LevelError, Message: message, Duration: DefaultDuration}
}

// Info builds a neutral notification.
func Info(message string) Notification {
	return Notification{Level: LevelInfo, Message: message, Duration: DefaultDuration}
}

// WithErr returns a copy of n carrying the failure that caused it.
func (n Notification) WithErr(err error) Notification {
	n.Err = err
	return n
}

// WithAction returns a copy of n offering action.
func (n Notification) WithAction(label string, run func(ctx context.Context) error) Notification {
	n.Action = &Action{Label: label, Run: run}
	return n
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Recorder keeps every notification it receives, in order.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Drain returns the recorded notifications and forgets them.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items
	r.items = nil
	return items
}

// Messages returns the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Message)
	}
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
