// Package config resolves, parses, validates, and defaults shinyhunt configuration.
package config

// Hunt strategies.
const (
	HuntSoftReset       = "soft_reset"
	HuntRandomEncounter = "random_encounter"
	HuntStarter         = "starter"
)

// HuntTypes lists every hunt strategy name.
var HuntTypes = []string{HuntSoftReset, HuntRandomEncounter, HuntStarter}

// Generations with reference clips.
var Generations = []string{"3", "4", "5"}

// DefaultShinyThreshold applies when thresholds.shiny has no entry for a generation.
const DefaultShinyThreshold = 750

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio      AudioConfig
	Assets     AssetsConfig
	Thresholds ThresholdsConfig
	Timings    TimingsConfig
	GPIO       GPIOConfig
	Notify     NotifyConfig
	Metrics    MetricsConfig
	Hunt       HuntConfig
}

// AudioConfig controls backend, device selection, and stream rate.
type AudioConfig struct {
	Backend        string
	Input          string
	Fallback       string
	SampleRate     int
	StallTimeoutMS int
}

// AssetsConfig locates the reference clips.
type AssetsConfig struct {
	Dir string
}

// ThresholdsConfig holds absolute correlation peaks per cue.
type ThresholdsConfig struct {
	Battle float64
	Shiny  map[string]float64
}

// TimingsConfig holds button and hunt-loop delays in milliseconds.
type TimingsConfig struct {
	PressMS       int
	ExtraWaitMS   int
	RescueAfterMS int
}

// GPIOConfig maps console buttons to line offsets on one chip.
type GPIOConfig struct {
	Chip string
	Pins map[string]int
}

// NotifyConfig enables each notification channel.
type NotifyConfig struct {
	Pushover PushoverConfig
	MQTT     MQTTConfig
	Desktop  DesktopConfig
	Chime    ChimeConfig
	Command  CommandConfig
}

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	Enable   bool
	UserKey  string
	APIToken string
}

// MQTTConfig holds broker settings for hunt event publishing.
type MQTTConfig struct {
	Enable   bool
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// DesktopConfig controls freedesktop notifications.
type DesktopConfig struct {
	Enable  bool
	AppName string
}

// ChimeConfig plays a local sound on a find. An empty File uses the built-in fanfare.
type ChimeConfig struct {
	Enable bool
	File   string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Enable bool
	Raw    string
	Argv   []string
}

// MetricsConfig controls the Prometheus exporter; empty Listen disables it.
type MetricsConfig struct {
	Listen string
}

// HuntConfig holds optional preselected answers for the setup prompt.
type HuntConfig struct {
	Generation string
	Type       string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
