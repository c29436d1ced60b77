// Package cli parses shinyhunt's command line.
package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Command string

const (
	CommandHunt    Command = "hunt"
	CommandListen  Command = "listen"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var commands = []Command{
	CommandHunt, CommandListen, CommandStatus, CommandStop,
	CommandDevices, CommandDoctor, CommandVersion, CommandHelp,
}

// Parsed is the decoded command line. Empty strings mean "not given".
type Parsed struct {
	Command    Command
	ConfigPath string
	Generation string
	HuntType   string
	// ExtraWait is nil unless --extra-wait was passed.
	ExtraWait *time.Duration
	ShowHelp  bool
}

// Parse accepts flags before or after the command; "--flag value" and "--flag=value" both work.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	seenCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")

		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			return args[i], nil
		}

		switch name {
		case "-h", "--help":
			parsed.Command = CommandHelp
			parsed.ShowHelp = true
		case "--version":
			parsed.Command = CommandVersion
			parsed.ShowHelp = false
		case "--config":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = v
		case "--generation":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.Generation = strings.TrimSpace(v)
		case "--hunt":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.HuntType = strings.TrimSpace(v)
		case "--extra-wait":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			d, err := parseSeconds(v)
			if err != nil {
				return Parsed{}, err
			}
			parsed.ExtraWait = &d
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}
			if seenCommand {
				return Parsed{}, fmt.Errorf("unexpected argument %q after command %q", arg, parsed.Command)
			}
			cmd := Command(arg)
			if !slices.Contains(commands, cmd) {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			seenCommand = true
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	return parsed, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs < 0 {
		return 0, errors.New("--extra-wait must be a non-negative number of seconds")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  hunt      Run a shiny hunt (prompts for anything not set by flags or config)
  listen    Print live correlation peaks for both cues (threshold calibration)
  status    Show the running hunt's state and encounter count
  stop      Ask the running hunt to stop
  devices   List available input devices
  doctor    Check config, reference clips, audio, GPIO, and notifications
  version   Print version information
  help      Show this help

Flags:
  --config PATH          Config file (default: $XDG_CONFIG_HOME/shinyhunt/config.jsonc)
  --generation G         Game generation: 3, 4, or 5
  --hunt TYPE            soft_reset, random_encounter, or starter
  --extra-wait SECONDS   Extra time to listen for the shiny cue
  -h, --help             Show help
  --version              Show version
`, binaryName)
}
