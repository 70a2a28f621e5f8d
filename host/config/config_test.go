package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"log_level": "debug",
		"sim": {"demo": "race", "messages": 500, "capacity": 4, "delay": "2ms", "pin": true},
		"monitor": {"device": "/dev/ttyACM1", "duration": "1m"}
	}`), JSON)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("debug", cfg.LogLevel)
	assert.Equal("race", cfg.Sim.Demo)
	assert.Equal(500, cfg.Sim.Messages)
	assert.Equal(4, cfg.Sim.Capacity)
	assert.Equal(8, cfg.Sim.Depth)
	assert.Equal(2*time.Millisecond, cfg.Sim.Delay.Duration)
	assert.Equal(30*time.Second, cfg.Sim.Timeout.Duration)
	assert.True(cfg.Sim.Pin)
	assert.Equal("/dev/ttyACM1", cfg.Monitor.Device)
	assert.Equal(115200, cfg.Monitor.Baud)
	assert.Equal(time.Minute, cfg.Monitor.Duration.Duration)
}

func TestParse_TOML(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level = "warn"

[sim]
demo = "pingpong"
depth = 1
timeout = "5s"

[monitor]
baud = 250000
read_timeout = "50ms"
`), TOML)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("warn", cfg.LogLevel)
	assert.Equal("pingpong", cfg.Sim.Demo)
	assert.Equal(1, cfg.Sim.Depth)
	assert.Equal(5*time.Second, cfg.Sim.Timeout.Duration)
	assert.Equal(10000, cfg.Sim.Messages)
	assert.Equal(250000, cfg.Monitor.Baud)
	assert.Equal(50*time.Millisecond, cfg.Monitor.ReadTimeout.Duration)
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		data    string
		format  Format
		invalid bool
	}{
		{"bad json", `{"sim": `, JSON, false},
		{"bad duration", `{"sim": {"delay": "soon"}}`, JSON, false},
		{"tiny capacity", `{"sim": {"capacity": 1}}`, JSON, true},
		{"negative messages", `{"sim": {"messages": -1}}`, JSON, true},
		{"negative depth", "[sim]\ndepth = -2\n", TOML, true},
		{"unknown toml key", "[sim]\nfifo = 3\n", TOML, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data), tc.format)
			require.Error(t, err)
			if tc.invalid {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "sim.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"sim": {"messages": 7}}`), 0o644))
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sim.Messages)

	tomlPath := filepath.Join(dir, "sim.TOML")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[sim]\nmessages = 9\n"), 0o644))
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Sim.Messages)

	_, err = Load(filepath.Join(dir, "sim.yaml"))
	assert.ErrorContains(t, err, "unsupported config extension")

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "spawn", cfg.Sim.Demo)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/dev/ttyACM0", cfg.Monitor.Device)
}
