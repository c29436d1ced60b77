package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/shinyhunt/internal/audio"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/detector"
	"github.com/rbright/shinyhunt/internal/notify"
)

const (
	pushoverTimeout = 10 * time.Second
	mqttTimeout     = 5 * time.Second
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// buildDetector loads the generation's clips and wires the configured audio backend.
func (r Runner) buildDetector(cfg config.Config, generation string, logger *slog.Logger, observer detector.Observer) (*detector.Detector, []config.Warning, error) {
	var warnings []config.Warning
	shinyThreshold, w := cfg.ShinyThreshold(generation)
	if w != nil {
		warnings = append(warnings, *w)
	}

	opener := r.Opener
	if opener == nil {
		var err error
		opener, err = audio.OpenerFor(cfg.Audio.Backend)
		if err != nil {
			return nil, warnings, err
		}
	}

	det, err := detector.New(detector.Config{
		Generation:      generation,
		AssetDir:        cfg.Assets.Dir,
		SampleRate:      cfg.Audio.SampleRate,
		ShinyThreshold:  shinyThreshold,
		BattleThreshold: cfg.Thresholds.Battle,
		Device:          cfg.Audio.Input,
		Fallback:        cfg.Audio.Fallback,
		StallTimeout:    ms(cfg.Audio.StallTimeoutMS),
	}, opener, detector.WithLogger(logger), detector.WithObserver(observer))
	return det, warnings, err
}

// buildNotifier assembles the enabled channels. A channel that cannot be set up is
// skipped with a warning so a broker outage never blocks a hunt.
func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*notify.Multi, []string) {
	var (
		channels []notify.Channel
		warnings []string
	)

	if cfg.Pushover.Enable {
		p := notify.NewPushover(cfg.Pushover.UserKey, cfg.Pushover.APIToken, pushoverTimeout)
		if p.Configured() {
			channels = append(channels, notify.Channel{Name: "pushover", Notifier: p})
		} else {
			warnings = append(warnings, "pushover credentials missing; skipping Pushover alerts")
		}
	}

	if cfg.MQTT.Enable {
		m, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  mqttTimeout,
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mqtt disabled: %v", err))
		} else {
			channels = append(channels, notify.Channel{Name: "mqtt", Notifier: m})
		}
	}

	if cfg.Desktop.Enable {
		channels = append(channels, notify.Channel{Name: "desktop", Notifier: notify.NewDesktop(cfg.Desktop.AppName)})
	}

	if cfg.Chime.Enable {
		channels = append(channels, notify.Channel{Name: "chime", Notifier: notify.NewChime(cfg.Chime.File)})
	}

	if cfg.Command.Enable {
		c, err := notify.NewCommand(cfg.Command.Argv)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("command notifications disabled: %v", err))
		} else {
			channels = append(channels, notify.Channel{Name: "command", Notifier: c})
		}
	}

	return notify.NewMulti(logger, channels...), warnings
}
