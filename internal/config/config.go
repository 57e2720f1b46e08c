package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.td.teradata.com/sandbox/bouncer/internal/log"
)

const (
	defInitialSpeed = 50
	defRow          = 12

	defSerialBaudRate  = 9600
	defSerialDataBits  = 8
	defSerialStopBits  = 1
	defMinimumReadSize = 1
	defSerialParity    = 0

	defTerminalWidth  = 80
	defTerminalHeight = 24

	defAudioFrequency = 880
	defAudioDuration  = 50

	EnvVarPrefix = "BNC"
)

// Synchronisation modes for the shared control state.
const (
	SyncLocked         = "locked"
	SyncQueued         = "queued"
	SyncUnsynchronized = "unsynchronized"
)

// Policies applied when the dispatcher detects an invariant violation.
const (
	ViolationFailFast = "fail-fast"
	ViolationTolerant = "tolerant"
)

// Renderer and input source names.
const (
	RendererANSI     = "ansi"
	RendererTcell    = "tcell"
	RendererCurses   = "curses"
	RendererHeadless = "headless"

	InputTTY    = "tty"
	InputStdin  = "stdin"
	InputSerial = "serial"
	InputScreen = "screen"
)

var ErrUnknownMode = errors.New("unknown mode")

var CLIConfig *Config
var replacer = strings.NewReplacer(".", "_")

type Config struct {
	Terminal *Terminal `mapstructure:"terminal" yaml:"terminal"`
	Bouncer  *Bouncer  `mapstructure:"bouncer" yaml:"bouncer"`
	Renderer string    `mapstructure:"renderer" yaml:"renderer"`
	Input    *Input    `mapstructure:"input" yaml:"input"`
	Serial   *Serial   `mapstructure:"serial" yaml:"serial"`
	Log      *Log      `mapstructure:"log" yaml:"log"`
	Audio    *Audio    `mapstructure:"audio" yaml:"audio"`
}

type Bouncer struct {
	InitialSpeed int    `mapstructure:"initial_speed" yaml:"initial_speed"`
	Row          int    `mapstructure:"row" yaml:"row"`
	Sync         string `mapstructure:"sync" yaml:"sync"`
	Violation    string `mapstructure:"violation" yaml:"violation"`
	RaceWindowMs int    `mapstructure:"race_window_ms" yaml:"race_window_ms"`
}

type Input struct {
	Source string `mapstructure:"source" yaml:"source"`
}

type Serial struct {
	PortName        string `mapstructure:"port_name" yaml:"port_name"`
	BaudRate        int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits        int    `mapstructure:"data_bits" yaml:"data_bits"`
	StopBits        int    `mapstructure:"stop_bits" yaml:"stop_bits"`
	Parity          int    `mapstructure:"parity" yaml:"parity"`
	MinimumReadSize int    `mapstructure:"minimum_read_size" yaml:"minimum_read_size"`
}

// Terminal sizes are used only when the renderer cannot query the display.
type Terminal struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type Audio struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	Frequency  int  `mapstructure:"frequency" yaml:"frequency"`
	DurationMs int  `mapstructure:"duration_ms" yaml:"duration_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		Terminal: &Terminal{
			Width:  defTerminalWidth,
			Height: defTerminalHeight,
		},
		Bouncer: &Bouncer{
			InitialSpeed: defInitialSpeed,
			Row:          defRow,
			Sync:         SyncLocked,
			Violation:    ViolationFailFast,
		},
		Renderer: RendererANSI,
		Input: &Input{
			Source: InputTTY,
		},
		Serial: &Serial{
			BaudRate:        defSerialBaudRate,
			DataBits:        defSerialDataBits,
			StopBits:        defSerialStopBits,
			Parity:          defSerialParity,
			MinimumReadSize: defMinimumReadSize,
		},
		Log: &Log{
			Level: "INFO",
			File:  "bouncer.log",
		},
		Audio: &Audio{
			Frequency:  defAudioFrequency,
			DurationMs: defAudioDuration,
		},
	}
}

// NewConfig loads CLIConfig from defaults, the optional yaml file and BNC_*
// environment variables, in that order of precedence.
func NewConfig(cfgFile string) error {
	cfg, err := Load(cfgFile)
	if err != nil {
		return err
	}
	CLIConfig = cfg
	return nil
}

func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	cfg := DefaultConfig()

	// set default values in viper.
	// Viper needs to know if a key exists in order to override it.
	// https://github.com/spf13/viper/issues/188
	b, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		fi, err := os.Stat(cfgFile)
		switch {
		case err != nil:
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		case fi.IsDir():
			return nil, fmt.Errorf("config file %s is a directory", cfgFile)
		}
		v.SetConfigFile(cfgFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", fi.Name(), err)
		}
	}

	// Use environment variables as final override
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvVarPrefix)
	v.SetEnvKeyReplacer(replacer)

	// Preload environment bindings so they are processed on load
	bindVars(v, reflect.TypeOf(*cfg), "")
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the driver cannot run with.
func (c *Config) Validate() error {
	if c.Bouncer.InitialSpeed <= 0 {
		return fmt.Errorf("bouncer.initial_speed must be positive, got %d", c.Bouncer.InitialSpeed)
	}
	switch c.Bouncer.Sync {
	case SyncLocked, SyncQueued, SyncUnsynchronized:
	default:
		return fmt.Errorf("bouncer.sync %q: %w", c.Bouncer.Sync, ErrUnknownMode)
	}
	switch c.Bouncer.Violation {
	case ViolationFailFast, ViolationTolerant:
	default:
		return fmt.Errorf("bouncer.violation %q: %w", c.Bouncer.Violation, ErrUnknownMode)
	}
	switch c.Renderer {
	case RendererANSI, RendererTcell, RendererCurses, RendererHeadless:
	default:
		return fmt.Errorf("renderer %q: %w", c.Renderer, ErrUnknownMode)
	}
	switch c.Input.Source {
	case InputTTY, InputStdin, InputSerial, InputScreen:
	default:
		return fmt.Errorf("input.source %q: %w", c.Input.Source, ErrUnknownMode)
	}
	if c.Input.Source == InputSerial && c.Serial.PortName == "" {
		return errors.New("input.source is serial but serial.port_name is empty")
	}
	if c.Bouncer.RaceWindowMs < 0 {
		return fmt.Errorf("bouncer.race_window_ms must not be negative, got %d", c.Bouncer.RaceWindowMs)
	}
	return nil
}

func bindVars(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		tag = prefix + strings.ToUpper(tag)

		if field.Type.Kind() == reflect.Struct {
			bindVars(v, field.Type, tag+".")
		} else if field.Type.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.Struct {
			bindVars(v, field.Type.Elem(), tag+".")
		} else {
			log.Debugf("Scanning for environment variable: %s_%s -> %s", EnvVarPrefix, replacer.Replace(tag), tag)
			if err := v.BindEnv(tag); err != nil {
				log.Warnf("Unable to bind to environment variable: %s. Error: %v", tag, err)
			}
		}
	}
}
