// Package notify delivers transient user-facing status messages.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Notifier receives status messages. Rendering is up to the implementation.
type Notifier interface {
	Notify(kind Kind, title, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind Kind, title, message string)

func (f NotifierFunc) Notify(kind Kind, title, message string) {
	f(kind, title, message)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(kind Kind, title, message string) {
	var ev *zerolog.Event
	switch kind {
	case KindError:
		ev = n.logger.Error()
	case KindWarning:
		ev = n.logger.Warn()
	default:
		ev = n.logger.Info()
	}
	if message != "" {
		ev = ev.Str("detail", message)
	}
	ev.Str("kind", string(kind)).Msg(title)
}

// Notification is one delivered message.
type Notification struct {
	Kind    Kind
	Title   string
	Message string
}

// Recorder keeps every notification it receives, in order.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(kind Kind, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Kind: kind, Title: title, Message: message})
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Multi fans a notification out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(kind Kind, title, message string) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(kind, title, message)
			}
		}
	})
}
