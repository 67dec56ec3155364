package agent

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("hostagent", flag.ContinueOnError)
}

func TestParseAgentConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())

	config, err := parseAgentConfig(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultAddress, config.Address)
	assert.Equal(t, DefaultQueueSize, config.QueueSize)
	assert.Equal(t, DefaultStopTimeout, config.StopTimeout)
	assert.Empty(t, config.Key)
	assert.Empty(t, config.MetricsAddress)
	assert.False(t, config.Debug)
}

func TestParseAgentConfigFlags(t *testing.T) {
	dir := t.TempDir()

	config, err := parseAgentConfig(newFlagSet(), []string{
		"-a", "collector.local:9000",
		"-c", dir,
		"-k", "secret",
		"-q", "5",
		"-t", "3s",
		"-m", ":9102",
		"-l", "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://collector.local:9000", config.Address)
	assert.Equal(t, dir, config.ConfigDir)
	assert.Equal(t, "secret", config.Key)
	assert.Equal(t, 5, config.QueueSize)
	assert.Equal(t, 3*time.Second, config.StopTimeout)
	assert.Equal(t, ":9102", config.MetricsAddress)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestParseAgentConfigEnvWins(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("ADDRESS", "https://collector.example.com")
	t.Setenv("QUEUE_SIZE", "42")
	t.Setenv("STOP_TIMEOUT", "1500ms")
	t.Setenv("DEBUG", "true")

	config, err := parseAgentConfig(newFlagSet(), []string{"-a", "ignored:1", "-q", "7"})
	require.NoError(t, err)

	assert.Equal(t, "https://collector.example.com", config.Address)
	assert.Equal(t, 42, config.QueueSize)
	assert.Equal(t, 1500*time.Millisecond, config.StopTimeout)
	assert.True(t, config.Debug)
}

func TestParseAgentConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile), []byte("KEY=from-dotenv\nHOSTAGENT_TEST_ONLY=1\n"), 0o600))
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("KEY", "")
	// godotenv never overrides a variable that is already set, even to ""
	os.Unsetenv("KEY")
	t.Cleanup(func() {
		os.Unsetenv("KEY")
		os.Unsetenv("HOSTAGENT_TEST_ONLY")
	})

	config, err := parseAgentConfig(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", config.Key)
}

func TestParseAgentConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "queue size not a number", env: map[string]string{"QUEUE_SIZE": "many"}},
		{name: "stop timeout not a duration", env: map[string]string{"STOP_TIMEOUT": "soon"}},
		{name: "debug not a bool", env: map[string]string{"DEBUG": "maybe"}},
		{name: "zero queue", args: []string{"-q", "0"}},
		{name: "negative timeout", args: []string{"-t", "-1s"}},
		{name: "unknown flag", args: []string{"-z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := newFlagSet()
			fs.SetOutput(devNull{})
			_, err := parseAgentConfig(fs, tt.args)
			assert.Error(t, err)
		})
	}
}

type devNull struct{}

func (devNull) Write(p []byte) (int, error) { return len(p), nil }

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", normalizeAddress("localhost:8080"))
	assert.Equal(t, "https://c.example.com", normalizeAddress("https://c.example.com"))
	assert.Equal(t, "http://c.example.com", normalizeAddress("http://c.example.com"))
}
