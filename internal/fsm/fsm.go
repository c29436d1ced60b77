// Package fsm defines the hunt loop state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateResetting State = "resetting"
	StateRoaming   State = "roaming"
	StateListening State = "listening"
	StateFound     State = "found"
	StateError     State = "error"
)

const (
	EventStart     Event = "start"     // begin a reset cycle
	EventRoam      Event = "roam"      // begin walking for random encounters
	EventEncounter Event = "encounter" // encounter on screen, listen for the shiny cue
	EventMiss      Event = "miss"
	EventShiny     Event = "shiny"
	EventStop      Event = "stop"
	EventFail      Event = "fail"
	EventReset     Event = "reset"
)

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateResetting, nil
		case EventRoam:
			return StateRoaming, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateResetting, StateRoaming:
		switch event {
		case EventEncounter:
			return StateListening, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventMiss, EventStop:
			return StateIdle, nil
		case EventShiny:
			return StateFound, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFound, StateError:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
