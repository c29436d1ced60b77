package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type fileConfig struct {
	Audio      *fileAudio      `json:"audio"`
	Assets     *fileAssets     `json:"assets"`
	Thresholds *fileThresholds `json:"thresholds"`
	Timings    *fileTimings    `json:"timings"`
	GPIO       *fileGPIO       `json:"gpio"`
	Notify     *fileNotify     `json:"notify"`
	Metrics    *fileMetrics    `json:"metrics"`
	Hunt       *fileHunt       `json:"hunt"`
}

type fileAudio struct {
	Backend        *string `json:"backend"`
	Input          *string `json:"input"`
	Fallback       *string `json:"fallback"`
	SampleRate     *int    `json:"sample_rate"`
	StallTimeoutMS *int    `json:"stall_timeout_ms"`
}

type fileAssets struct {
	Dir *string `json:"dir"`
}

type fileThresholds struct {
	Battle *float64           `json:"battle"`
	Shiny  map[string]float64 `json:"shiny"`
}

type fileTimings struct {
	PressMS       *int `json:"press_ms"`
	ExtraWaitMS   *int `json:"extra_wait_ms"`
	RescueAfterMS *int `json:"rescue_after_ms"`
}

type fileGPIO struct {
	Chip *string        `json:"chip"`
	Pins map[string]int `json:"pins"`
}

type fileNotify struct {
	Pushover *filePushover `json:"pushover"`
	MQTT     *fileMQTT     `json:"mqtt"`
	Desktop  *fileDesktop  `json:"desktop"`
	Chime    *fileChime    `json:"chime"`
	Command  *fileCommand  `json:"command"`
}

type filePushover struct {
	Enable   *bool   `json:"enable"`
	UserKey  *string `json:"user_key"`
	APIToken *string `json:"api_token"`
}

type fileMQTT struct {
	Enable   *bool   `json:"enable"`
	Broker   *string `json:"broker"`
	ClientID *string `json:"client_id"`
	Topic    *string `json:"topic"`
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type fileDesktop struct {
	Enable  *bool   `json:"enable"`
	AppName *string `json:"app_name"`
}

type fileChime struct {
	Enable *bool   `json:"enable"`
	File   *string `json:"file"`
}

type fileCommand struct {
	Enable *bool   `json:"enable"`
	Run    *string `json:"run"`
}

type fileMetrics struct {
	Listen *string `json:"listen"`
}

type fileHunt struct {
	Generation *string `json:"generation"`
	Type       *string `json:"type"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := stripJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := cloneConfig(base)
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload fileConfig) applyTo(cfg *Config) error {
	if a := payload.Audio; a != nil {
		setTrimmed(&cfg.Audio.Backend, a.Backend)
		setTrimmed(&cfg.Audio.Input, a.Input)
		setTrimmed(&cfg.Audio.Fallback, a.Fallback)
		set(&cfg.Audio.SampleRate, a.SampleRate)
		set(&cfg.Audio.StallTimeoutMS, a.StallTimeoutMS)
	}

	if payload.Assets != nil {
		setTrimmed(&cfg.Assets.Dir, payload.Assets.Dir)
	}

	if th := payload.Thresholds; th != nil {
		set(&cfg.Thresholds.Battle, th.Battle)
		for gen, value := range th.Shiny {
			cfg.Thresholds.Shiny[strings.TrimSpace(gen)] = value
		}
	}

	if tm := payload.Timings; tm != nil {
		set(&cfg.Timings.PressMS, tm.PressMS)
		set(&cfg.Timings.ExtraWaitMS, tm.ExtraWaitMS)
		set(&cfg.Timings.RescueAfterMS, tm.RescueAfterMS)
	}

	if g := payload.GPIO; g != nil {
		setTrimmed(&cfg.GPIO.Chip, g.Chip)
		for name, offset := range g.Pins {
			cfg.GPIO.Pins[strings.ToUpper(strings.TrimSpace(name))] = offset
		}
	}

	if n := payload.Notify; n != nil {
		if p := n.Pushover; p != nil {
			set(&cfg.Notify.Pushover.Enable, p.Enable)
			setTrimmed(&cfg.Notify.Pushover.UserKey, p.UserKey)
			setTrimmed(&cfg.Notify.Pushover.APIToken, p.APIToken)
		}
		if m := n.MQTT; m != nil {
			set(&cfg.Notify.MQTT.Enable, m.Enable)
			setTrimmed(&cfg.Notify.MQTT.Broker, m.Broker)
			setTrimmed(&cfg.Notify.MQTT.ClientID, m.ClientID)
			setTrimmed(&cfg.Notify.MQTT.Topic, m.Topic)
			set(&cfg.Notify.MQTT.Username, m.Username)
			set(&cfg.Notify.MQTT.Password, m.Password)
		}
		if d := n.Desktop; d != nil {
			set(&cfg.Notify.Desktop.Enable, d.Enable)
			setTrimmed(&cfg.Notify.Desktop.AppName, d.AppName)
		}
		if ch := n.Chime; ch != nil {
			set(&cfg.Notify.Chime.Enable, ch.Enable)
			setTrimmed(&cfg.Notify.Chime.File, ch.File)
		}
		if c := n.Command; c != nil {
			set(&cfg.Notify.Command.Enable, c.Enable)
			if c.Run != nil {
				argv, err := splitCommand(*c.Run)
				if err != nil {
					return fmt.Errorf("invalid notify.command.run: %w", err)
				}
				cfg.Notify.Command.Raw = *c.Run
				cfg.Notify.Command.Argv = argv
			}
		}
	}

	if payload.Metrics != nil {
		setTrimmed(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}

	if h := payload.Hunt; h != nil {
		setTrimmed(&cfg.Hunt.Generation, h.Generation)
		setTrimmed(&cfg.Hunt.Type, h.Type)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func cloneConfig(in Config) Config {
	out := in
	out.Thresholds.Shiny = make(map[string]float64, len(in.Thresholds.Shiny))
	for k, v := range in.Thresholds.Shiny {
		out.Thresholds.Shiny[k] = v
	}
	out.GPIO.Pins = make(map[string]int, len(in.GPIO.Pins))
	for k, v := range in.GPIO.Pins {
		out.GPIO.Pins[k] = v
	}
	out.Notify.Command.Argv = append([]string(nil), in.Notify.Command.Argv...)
	return out
}

// stripJSONC blanks out comments and trailing commas in one pass. Every removed byte
// becomes a space (newlines are kept), so decoder offsets still point into the original text.
func stripJSONC(content string) (string, error) {
	out := []byte(content)
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		switch ch := out[i]; {
		case ch == '"':
			end, err := skipJSONString(out, i)
			if err != nil {
				return "", err
			}
			pendingComma = -1
			i = end
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
				i++
			}
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			start := i
			i += 2
			for i+1 < len(out) && !(out[i] == '*' && out[i+1] == '/') {
				i++
			}
			if i+1 >= len(out) {
				return "", errors.New("unterminated block comment in JSONC")
			}
			i++
			blank(out[start : i+1])
		case ch == ',':
			pendingComma = i
		case ch == '}' || ch == ']':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
		default:
			pendingComma = -1
		}
	}
	return string(out), nil
}

// skipJSONString returns the index of the closing quote of the string opening at start.
// An unterminated string is left for the decoder to report.
func skipJSONString(b []byte, start int) (int, error) {
	for i := start + 1; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '"':
			return i, nil
		}
	}
	return len(b), nil
}

func blank(b []byte) {
	for i, ch := range b {
		if ch != '\n' && ch != '\r' {
			b[i] = ' '
		}
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := lineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func lineCol(content string, offset int64) (int, int) {
	limit := min(max(int(offset)-1, 0), len(content))
	prefix := content[:limit]
	line := strings.Count(prefix, "\n") + 1
	col := limit - strings.LastIndexByte(prefix, '\n')
	return line, col
}
