package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5005", cfg.Observer.Addr())
	assert.Equal(t, 50*time.Millisecond, cfg.Observer.WriteTimeout())
	assert.Equal(t, "8085", cfg.Health.Port)
	assert.Equal(t, "v2x.telemetry", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, cfg, Defaults())
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
observer:
  host: 10.0.0.2
  port: 6000
replay:
  trace_path: traces/highway.csv
  speed: 4
kafka:
  brokers: ["k1:9092", "k2:9092"]
logging:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:6000", cfg.Observer.Addr())
	assert.Equal(t, "traces/highway.csv", cfg.Replay.TracePath)
	assert.Equal(t, 4.0, cfg.Replay.Speed)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "v2x.telemetry", cfg.Kafka.Topic)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("V2XTEL_OBSERVER_PORT", "7007")
	t.Setenv("V2XTEL_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfig(writeConfig(t, "observer:\n  port: 6000\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 7007, cfg.Observer.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestFlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--trace", "run.csv", "--speed", "2", "--observer", "127.0.0.1:9999"}))

	cfg, err := LoadConfig(writeConfig(t, "replay:\n  trace_path: other.csv\n"), fs)
	require.NoError(t, err)
	assert.Equal(t, "run.csv", cfg.Replay.TracePath)
	assert.Equal(t, 2.0, cfg.Replay.Speed)
	assert.Equal(t, "127.0.0.1:9999", cfg.Observer.Addr())
}

func TestUnsetFlagsDoNotOverride(t *testing.T) {
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := LoadConfig(writeConfig(t, "replay:\n  trace_path: other.csv\n"), fs)
	require.NoError(t, err)
	assert.Equal(t, "other.csv", cfg.Replay.TracePath)
}

func TestInvalidConfig(t *testing.T) {
	for name, body := range map[string]string{
		"port too large": "observer:\n  port: 70000\n",
		"empty host":     "observer:\n  host: \"\"\n",
		"negative speed": "replay:\n  speed: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--observer", "nohostport"}))
	_, err := LoadConfig("", fs)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
