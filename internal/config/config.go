package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
	"github.com/thatsimonsguy/panel-provisioner/internal/provisioning"
)

// PinAssignment is one pin entry from the config file. Pin is the designator
// printed on the panel ("1".."12", "alarm1", "out1", "alarm2_out2").
type PinAssignment struct {
	Pin                 string `json:"pin" yaml:"pin"`
	Function            string `json:"function" yaml:"function"`
	PollIntervalMinutes *int   `json:"poll_interval_minutes,omitempty" yaml:"poll_interval_minutes,omitempty"`
	TriggerHigh         *bool  `json:"trigger_high,omitempty" yaml:"trigger_high,omitempty"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string
	DBPath     string
	DryRun     bool
	ListenPort int

	// Where the panel reports zone changes, and the bearer token it sends.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Token    string `json:"token" yaml:"token"`

	// Skip discovery and talk to this panel directly.
	PanelURL   string `json:"panel_url" yaml:"panel_url"`
	PanelModel string `json:"panel_model" yaml:"panel_model"`

	DiscoveryTimeoutSeconds int `json:"discovery_timeout_seconds" yaml:"discovery_timeout_seconds"`
	RequestTimeoutSeconds   int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`

	Pins []PinAssignment `json:"pins" yaml:"pins"`

	EnableDatadog bool     `json:"enable_datadog" yaml:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" yaml:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace" yaml:"dd_namespace"`
	DDTags        []string `json:"dd_tags" yaml:"dd_tags"`

	NtfyServer string `json:"ntfy_server" yaml:"ntfy_server"`
	NtfyTopic  string `json:"ntfy_topic" yaml:"ntfy_topic"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to provisioner config file (.json or .yaml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Append logs to this file instead of stderr")
	flag.StringVar(&cfg.DBPath, "db", "data/pushes.db", "Path to the push history database")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Print the payload instead of sending it to the panel")
	flag.IntVar(&cfg.ListenPort, "listen-port", 0, "Serve the pin API and panel callbacks on this port (0 disables)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := decode(file, cfg.ConfigFile, &cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func decode(r io.Reader, path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.NewDecoder(r).Decode(cfg)
	default:
		return json.NewDecoder(r).Decode(cfg)
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.DiscoveryTimeoutSeconds == 0 {
		cfg.DiscoveryTimeoutSeconds = 5
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 10
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "panel_provisioner."
	}
	if cfg.NtfyServer == "" {
		cfg.NtfyServer = "https://ntfy.sh"
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		problems []string
		seen     = map[string]int{}
	)

	if cfg.Endpoint == "" {
		problems = append(problems, "endpoint is required")
	}
	if cfg.Token == "" {
		problems = append(problems, "token is required")
	}
	if cfg.PanelModel != "" && cfg.PanelURL == "" {
		problems = append(problems, "panel_model requires panel_url")
	}

	for i, p := range cfg.Pins {
		if p.Pin == "" {
			problems = append(problems, fmt.Sprintf("pins[%d]: pin is required", i))
			continue
		}
		if other, exists := seen[p.Pin]; exists {
			problems = append(problems, fmt.Sprintf("pins[%d] and pins[%d] both configure pin %s", other, i, p.Pin))
		} else {
			seen[p.Pin] = i
		}
		if _, err := model.ParsePinFunction(p.Function); err != nil {
			problems = append(problems, fmt.Sprintf("pins[%d]: %v", i, err))
		}
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, ", "))
	}
}

// Requests converts the configured pins into provisioning requests.
func (cfg *Config) Requests() ([]provisioning.Request, error) {
	reqs := make([]provisioning.Request, 0, len(cfg.Pins))
	for _, p := range cfg.Pins {
		fn, err := model.ParsePinFunction(p.Function)
		if err != nil {
			return nil, fmt.Errorf("pin %s: %w", p.Pin, err)
		}
		extra, err := provisioning.ExtraFromOptional(p.PollIntervalMinutes, p.TriggerHigh)
		if err != nil {
			return nil, fmt.Errorf("pin %s: %w", p.Pin, err)
		}
		reqs = append(reqs, provisioning.Request{Pin: p.Pin, Function: fn, Extra: extra})
	}
	return reqs, nil
}
