// Package moves defines the scripted button timelines used by each hunt strategy.
package moves

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/rbright/shinyhunt/internal/buttons"
)

// Step is one timeline entry: a press (one or more buttons held together) or a pure wait.
type Step struct {
	Buttons []string
	// Hold applies to multi-button presses; zero means the actuator's press time.
	Hold time.Duration
	Wait time.Duration
}

// Press returns a single-button press step.
func Press(button string) Step {
	return Step{Buttons: []string{button}}
}

// Hold returns a step pressing every button together for hold.
func Hold(hold time.Duration, names ...string) Step {
	return Step{Buttons: names, Hold: hold}
}

// Wait returns a pause step.
func Wait(d time.Duration) Step {
	return Step{Wait: d}
}

func (s Step) String() string {
	if len(s.Buttons) == 0 {
		return "wait " + s.Wait.String()
	}
	return "press " + strings.Join(s.Buttons, "+")
}

// Sequence is a named timeline.
type Sequence struct {
	Name  string
	Steps []Step
}

// Presses counts press steps.
func (s Sequence) Presses() int {
	n := 0
	for _, step := range s.Steps {
		if len(step.Buttons) > 0 {
			n++
		}
	}
	return n
}

// Buttons lists every button the timeline presses, first use first.
func (s Sequence) Buttons() []string {
	var names []string
	for _, step := range s.Steps {
		for _, name := range step.Buttons {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

// Waiting sums the explicit waits in the timeline.
func (s Sequence) Waiting() time.Duration {
	var total time.Duration
	for _, step := range s.Steps {
		total += step.Wait
	}
	return total
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// mashA interleaves A presses with the given pauses, starting after an initial load wait.
func mashA(name string, load float64, pauses ...float64) Sequence {
	steps := []Step{Wait(seconds(load)), Press(buttons.A)}
	for _, pause := range pauses {
		steps = append(steps, Wait(seconds(pause)), Press(buttons.A))
	}
	return Sequence{Name: name, Steps: steps}
}

// SoftReset restarts the game with the L+R+START+SELECT chord.
func SoftReset() Sequence {
	return Sequence{
		Name: "soft_reset",
		Steps: []Step{
			Wait(500 * time.Millisecond),
			Hold(250*time.Millisecond, buttons.L, buttons.R, buttons.Start, buttons.Select),
		},
	}
}

// BeforeListening advances from the title screen to the encounter for one generation.
func BeforeListening(generation string) (Sequence, error) {
	switch generation {
	case "4":
		return mashA("before_listening_gen4", 10, 3, 3.5, 3, 1.5, 0.5, 0.5), nil
	case "5":
		return mashA("before_listening_gen5", 11, 2, 3.5, 2, 4.5, 1.5, 0.5, 0.5, 0.5), nil
	default:
		return Sequence{}, fmt.Errorf("no intro timeline for generation %q", generation)
	}
}

// StarterBeforeListening advances a gen 4 reset into the starter encounter.
func StarterBeforeListening() Sequence {
	return mashA("starter_gen4", 10, 3, 3.5, 3, 1.5, 0.5, 0.5)
}

// RandomMove steps left then right (or right then left) so the player never walks into a wall.
func RandomMove(rng *rand.Rand) Sequence {
	first, second := buttons.Left, buttons.Right
	if rng.IntN(2) == 1 {
		first, second = buttons.Right, buttons.Left
	}
	return Sequence{
		Name:  "random_move",
		Steps: []Step{Press(first), Wait(300 * time.Millisecond), Press(second)},
	}
}

// RunFromBattle selects RUN from the battle menu.
func RunFromBattle() Sequence {
	return Sequence{
		Name: "run_from_battle",
		Steps: []Step{
			Press(buttons.Down), Wait(200 * time.Millisecond),
			Press(buttons.Down), Wait(200 * time.Millisecond),
			Press(buttons.Right), Wait(200 * time.Millisecond),
			Press(buttons.A), Wait(2 * time.Second),
			Press(buttons.A), Wait(2 * time.Second),
		},
	}
}

// Rescue nudges the player out of a dialog or menu after a long stretch without battles.
func Rescue() Sequence {
	return Sequence{
		Name: "rescue",
		Steps: []Step{
			Press(buttons.Left), Wait(200 * time.Millisecond),
			Press(buttons.Left), Wait(200 * time.Millisecond),
			Press(buttons.Right), Wait(2 * time.Second),
			Press(buttons.A),
		},
	}
}

// Presser is the subset of the button actuator a timeline needs.
type Presser interface {
	Press(ctx context.Context, name string) error
	PressMultiple(ctx context.Context, names []string, hold time.Duration) error
}

// Runner executes timelines step by step.
type Runner struct {
	presser Presser
	sleep   func(context.Context, time.Duration) error
}

// NewRunner returns a runner pressing through presser.
func NewRunner(presser Presser) *Runner {
	return &Runner{presser: presser, sleep: buttons.Sleep}
}

// Run executes seq, stopping at the first failed press or when ctx ends.
func (r *Runner) Run(ctx context.Context, seq Sequence) error {
	for i, step := range seq.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch {
		case len(step.Buttons) == 0:
			err = r.sleep(ctx, step.Wait)
		case len(step.Buttons) == 1 && step.Hold == 0:
			err = r.presser.Press(ctx, step.Buttons[0])
		default:
			err = r.presser.PressMultiple(ctx, step.Buttons, step.Hold)
		}
		if err != nil {
			return fmt.Errorf("%s step %d (%s): %w", seq.Name, i, step, err)
		}
	}
	return nil
}
