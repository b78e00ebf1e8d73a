// Package realtimetest provides a recording Publisher for tests.
package realtimetest

import (
	"context"
	"errors"
	"sync"

	"github.com/xtrntr/carauction/internal/realtime"
)

// ErrPublish is returned for channels marked as failing
var ErrPublish = errors.New("publish failed")

// Event is one recorded publish call
type Event struct {
	Channel string
	Event   string
	Payload any
}

// Recorder records every publish call
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	failing map[string]bool
}

var _ realtime.Publisher = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{failing: make(map[string]bool)}
}

// FailOn makes every publish on channel return ErrPublish. The attempt is still recorded.
func (r *Recorder) FailOn(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[channel] = true
}

func (r *Recorder) Publish(ctx context.Context, channel, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{Channel: channel, Event: event, Payload: payload})
	if r.failing[channel] {
		return ErrPublish
	}
	return nil
}

// Events returns every recorded event
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// On returns the events recorded on channel with the given name
func (r *Recorder) On(channel, event string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Channel == channel && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Named returns every event with the given name regardless of channel
func (r *Recorder) Named(event string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
