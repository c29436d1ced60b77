// Package notify fans hunt events out to push, MQTT, and desktop channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Kind names a hunt event.
type Kind string

const (
	KindShiny     Kind = "shiny"
	KindEncounter Kind = "encounter"
)

// Event is one hunt milestone.
type Event struct {
	RunID      string    `json:"run_id"`
	Kind       Kind      `json:"kind"`
	Encounters int       `json:"encounters"`
	Generation string    `json:"generation"`
	HuntType   string    `json:"hunt_type"`
	At         time.Time `json:"at"`
}

// Message is the human-readable body for push and desktop channels.
func (e Event) Message() string {
	if e.Kind == KindShiny {
		return fmt.Sprintf("Shiny found after %d encounters!", e.Encounters)
	}
	return fmt.Sprintf("Encounter number %d", e.Encounters)
}

// Notifier delivers one event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Channel is a named notifier.
type Channel struct {
	Name     string
	Notifier Notifier
}

// Multi delivers every event to each channel in order. Channel failures are logged, never returned.
type Multi struct {
	channels []Channel
	logger   *slog.Logger
}

// NewMulti builds a fan-out over channels.
func NewMulti(logger *slog.Logger, channels ...Channel) *Multi {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multi{channels: channels, logger: logger}
}

// Names lists configured channel names.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name)
	}
	return names
}

func (m *Multi) Notify(ctx context.Context, event Event) error {
	for _, ch := range m.channels {
		if err := ch.Notifier.Notify(ctx, event); err != nil {
			m.logger.Warn("notification failed",
				"channel", ch.Name,
				"kind", string(event.Kind),
				"encounters", event.Encounters,
				"error", err.Error(),
			)
			continue
		}
		m.logger.Debug("notification sent", "channel", ch.Name, "kind", string(event.Kind))
	}
	return nil
}

// Close releases channels holding connections.
func (m *Multi) Close() error {
	var err error
	for _, ch := range m.channels {
		if closer, ok := ch.Notifier.(io.Closer); ok {
			err = errors.Join(err, closer.Close())
		}
	}
	return err
}
