package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const desktopTimeoutMS = 0 // persistent until dismissed

// Desktop raises a freedesktop notification over DBus via busctl for shiny events.
type Desktop struct {
	appName string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDesktop builds a desktop channel; appName defaults to shinyhunt.
func NewDesktop(appName string) *Desktop {
	if strings.TrimSpace(appName) == "" {
		appName = "shinyhunt"
	}
	return &Desktop{appName: appName, run: runCombined}
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (d *Desktop) Notify(ctx context.Context, event Event) error {
	if event.Kind != KindShiny {
		return nil
	}

	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		d.appName,
		"0",
		"starred",
		pushoverTitle,
		event.Message(),
		"0", // actions array length
		"0", // hints map length
		fmt.Sprintf("%d", desktopTimeoutMS),
	}

	out, err := d.run(ctx, "busctl", args...)
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("desktop notify failed: %w", err)
		}
		return fmt.Errorf("desktop notify failed: %w (%s)", err, trimmed)
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 || fields[0] != "u" {
		return fmt.Errorf("desktop notify invalid response: %q", strings.TrimSpace(string(out)))
	}
	return nil
}
