package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bouncer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 50, cfg.Bouncer.InitialSpeed)
	assert.Equal(t, 12, cfg.Bouncer.Row)
	assert.Equal(t, SyncLocked, cfg.Bouncer.Sync)
	assert.Equal(t, ViolationFailFast, cfg.Bouncer.Violation)
	assert.Equal(t, RendererANSI, cfg.Renderer)
	assert.Equal(t, InputTTY, cfg.Input.Source)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
bouncer:
  initial_speed: 120
  sync: unsynchronized
  violation: tolerant
renderer: headless
serial:
  port_name: /dev/ttyUSB0
  baud_rate: 115200
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Bouncer.InitialSpeed)
	assert.Equal(t, SyncUnsynchronized, cfg.Bouncer.Sync)
	assert.Equal(t, ViolationTolerant, cfg.Bouncer.Violation)
	assert.Equal(t, RendererHeadless, cfg.Renderer)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.PortName)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	// untouched keys keep their defaults
	assert.Equal(t, 12, cfg.Bouncer.Row)
	assert.Equal(t, 8, cfg.Serial.DataBits)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "bouncer:\n  sync: unsynchronized\n")
	t.Setenv("BNC_BOUNCER_SYNC", "queued")
	t.Setenv("BNC_BOUNCER_INITIAL_SPEED", "75")
	t.Setenv("BNC_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SyncQueued, cfg.Bouncer.Sync)
	assert.Equal(t, 75, cfg.Bouncer.InitialSpeed)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestNewConfigSetsCLIConfig(t *testing.T) {
	CLIConfig = nil
	require.NoError(t, NewConfig(""))
	require.NotNil(t, CLIConfig)
	assert.Equal(t, 50, CLIConfig.Bouncer.InitialSpeed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		err    error
	}{
		{"defaults", func(c *Config) {}, nil},
		{"zero speed", func(c *Config) { c.Bouncer.InitialSpeed = 0 }, nil},
		{"sync", func(c *Config) { c.Bouncer.Sync = "mutex" }, ErrUnknownMode},
		{"violation", func(c *Config) { c.Bouncer.Violation = "panic" }, ErrUnknownMode},
		{"renderer", func(c *Config) { c.Renderer = "sdl" }, ErrUnknownMode},
		{"input", func(c *Config) { c.Input.Source = "mouse" }, ErrUnknownMode},
		{"serial without port", func(c *Config) { c.Input.Source = InputSerial }, nil},
		{"negative window", func(c *Config) { c.Bouncer.RaceWindowMs = -1 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.name == "defaults" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "bouncer:\n  sync: sometimes\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnknownMode)
}
