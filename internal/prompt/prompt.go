// Package prompt asks the operator which hunt to run.
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"

	"github.com/rbright/shinyhunt/internal/config"
)

// Selection is the operator's answer set.
type Selection struct {
	Generation string
	HuntType   string
	ExtraWait  time.Duration
}

// UI renders one question at a time.
type UI interface {
	Select(label string, items []string, cursor int) (string, error)
	Input(label, def string, validate func(string) error) (string, error)
}

// Terminal is the promptui-backed UI.
type Terminal struct{}

func (Terminal) Select(label string, items []string, cursor int) (string, error) {
	sel := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: cursor,
	}
	_, result, err := sel.Run()
	return result, err
}

func (Terminal) Input(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
	return p.Run()
}

// ErrCanceled reports that the operator aborted the prompt (Ctrl+C / Ctrl+D).
var ErrCanceled = errors.New("setup canceled")

// Ask walks the operator through generation, hunt type, and extra wait.
// defaults preselect each answer.
func Ask(ui UI, defaults Selection) (Selection, error) {
	generation, err := ui.Select("Pokémon generation", config.Generations, cursorFor(config.Generations, defaults.Generation))
	if err != nil {
		return Selection{}, wrapAbort(err)
	}

	huntType, err := ui.Select("Hunt type", config.HuntTypes, cursorFor(config.HuntTypes, defaults.HuntType))
	if err != nil {
		return Selection{}, wrapAbort(err)
	}

	label := fmt.Sprintf("Extra delay for encounter loading in seconds (Enter for %gs)", defaults.ExtraWait.Seconds())
	raw, err := ui.Input(label, "", func(s string) error {
		_, err := ParseExtraWait(s, defaults.ExtraWait)
		return err
	})
	if err != nil {
		return Selection{}, wrapAbort(err)
	}
	extra, err := ParseExtraWait(raw, defaults.ExtraWait)
	if err != nil {
		return Selection{}, err
	}

	return Selection{Generation: generation, HuntType: huntType, ExtraWait: extra}, nil
}

// ParseExtraWait parses a non-negative number of seconds; blank input yields def.
func ParseExtraWait(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if seconds < 0 {
		return 0, errors.New("negative time not allowed")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func cursorFor(items []string, value string) int {
	if i := slices.Index(items, value); i >= 0 {
		return i
	}
	return 0
}

func wrapAbort(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return ErrCanceled
	}
	return err
}
