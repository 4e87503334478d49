package onboarding

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is how often the completion flag is polled.
const DefaultPollInterval = 2 * time.Second

// Trigger delivers external signals to the sequencer. Subscribe returns a
// function that stops delivery; calling it more than once is safe.
type Trigger interface {
	Subscribe(fn func()) (cancel func())
}

// Broadcaster is a Trigger fired by hand, used for window-focus events.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewBroadcaster returns a broadcaster without subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func())}
}

// Subscribe implements Trigger.
func (b *Broadcaster) Subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Fire calls every current subscriber synchronously.
func (b *Broadcaster) Fire() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Subscribers reports how many subscriptions are active.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// IntervalTrigger fires on a fixed schedule. Each subscription runs its own
// cron scheduler; a tick is skipped while the previous one is still running.
type IntervalTrigger struct {
	Interval time.Duration
}

// NewIntervalTrigger returns a trigger firing every interval, or every
// DefaultPollInterval when interval is not positive.
func NewIntervalTrigger(interval time.Duration) *IntervalTrigger {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &IntervalTrigger{Interval: interval}
}

// Subscribe implements Trigger.
func (t *IntervalTrigger) Subscribe(fn func()) func() {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	scheduler.Schedule(cron.Every(t.Interval), cron.FuncJob(fn))
	scheduler.Start()

	var once sync.Once
	return func() {
		once.Do(func() {
			scheduler.Stop()
		})
	}
}
