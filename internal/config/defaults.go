package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend:        "pulse",
			Input:          "default",
			Fallback:       "default",
			SampleRate:     48000,
			StallTimeoutMS: 3000,
		},
		Assets: AssetsConfig{Dir: "assets"},
		Thresholds: ThresholdsConfig{
			Battle: 10000,
			Shiny:  map[string]float64{},
		},
		Timings: TimingsConfig{
			PressMS:       250,
			ExtraWaitMS:   0,
			RescueAfterMS: 120000,
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
			Pins: map[string]int{},
		},
		Notify: NotifyConfig{
			MQTT: MQTTConfig{
				ClientID: "shinyhunt",
				Topic:    "shinyhunt",
			},
			Desktop: DesktopConfig{AppName: "shinyhunt"},
		},
	}
}

// ShinyThreshold returns the configured shiny threshold for generation, falling back to
// DefaultShinyThreshold with a warning.
func (c Config) ShinyThreshold(generation string) (float64, *Warning) {
	if v, ok := c.Thresholds.Shiny[generation]; ok {
		return v, nil
	}
	return DefaultShinyThreshold, &Warning{
		Message: "thresholds.shiny has no entry for generation " + generation + "; using a default of 750",
	}
}
