package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 10 * time.Second

// Command runs a user-configured program for every event. Event fields are passed
// through SHINYHUNT_* environment variables; the program inherits nothing on stdin.
type Command struct {
	argv    []string
	timeout time.Duration
}

// NewCommand builds a command channel from a pre-split argv.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("command argv is empty")
	}
	return &Command{argv: append([]string(nil), argv...), timeout: commandTimeout}, nil
}

func (c *Command) Notify(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Env = append(os.Environ(), commandEnv(event)...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("run %s: %w", c.argv[0], err)
		}
		return fmt.Errorf("run %s: %w (%s)", c.argv[0], err, trimmed)
	}
	return nil
}

func commandEnv(event Event) []string {
	return []string{
		"SHINYHUNT_KIND=" + string(event.Kind),
		"SHINYHUNT_RUN_ID=" + event.RunID,
		"SHINYHUNT_ENCOUNTERS=" + strconv.Itoa(event.Encounters),
		"SHINYHUNT_GENERATION=" + event.Generation,
		"SHINYHUNT_HUNT_TYPE=" + event.HuntType,
		"SHINYHUNT_MESSAGE=" + event.Message(),
	}
}
