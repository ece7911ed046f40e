// Package notify carries user-facing messages and the loading indicator out of
// the sync components.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is a transient toast.
type Notification struct {
	Message  string    `json:"message"`
	Severity Severity  `json:"type"`
	At       time.Time `json:"at"`
}

func Info(msg string) Notification {
	return Notification{Message: msg, Severity: SeverityInfo}
}

func Error(msg string) Notification {
	return Notification{Message: msg, Severity: SeverityError}
}

// Notifier is anything that can surface a notification to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Status is what the rendering layer polls: the latest toast and whether
// something is loading.
type Status struct {
	Toast   *Notification `json:"toast,omitempty"`
	Loading bool          `json:"loading"`
}

// Board keeps the most recent notification and the loading flag.
//
// It also fans notifications out to subscribers, for callers that would rather
// be pushed than poll.
type Board struct {
	mu      sync.Mutex
	toast   *Notification
	loading int
	subs    map[chan Notification]struct{}
	now     func() time.Time
}

func NewBoard() *Board {
	return &Board{
		subs: make(map[chan Notification]struct{}),
		now:  time.Now,
	}
}

// Notify implements [Notifier].
func (b *Board) Notify(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = b.now()
	}

	level := slog.LevelInfo
	if n.Severity == SeverityError {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "notification", "message", n.Message, "severity", n.Severity)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.toast = &n
	for ch := range b.subs {
		select {
		case ch <- n:
		default: // Slow subscriber, drop it on the floor
		}
	}
}

// Subscribe returns a channel receiving every later notification and a func to stop.
func (b *Board) Subscribe(buffer int) (<-chan Notification, func()) {
	ch := make(chan Notification, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// StartLoading shows the loader and returns the func that hides it again.
//
// Loads can overlap; the loader stays up until every one of them is done.
func (b *Board) StartLoading() func() {
	b.mu.Lock()
	b.loading++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.loading--
			b.mu.Unlock()
		})
	}
}

// Dismiss clears the current toast.
func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.toast = nil
}

func (b *Board) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var toast *Notification
	if b.toast != nil {
		t := *b.toast
		toast = &t
	}
	return Status{Toast: toast, Loading: b.loading > 0}
}
