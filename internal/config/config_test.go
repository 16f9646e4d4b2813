package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConserveLee/snapbuy/internal/engine"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, "#J_SelectAll1", c.CartElement)
	assert.Equal(t, 120*time.Second, c.LoginTimeout)
	assert.Equal(t, 10*time.Second, c.CartTimeout)
	assert.Equal(t, "buy_btn", c.CheckoutTemplate)
	assert.Equal(t, "buy_btn", c.ConfirmTemplate)
	assert.Equal(t, engine.CheckoutPolicy(), c.Policies.Checkout)
	assert.Equal(t, engine.ConfirmPolicy(), c.Policies.Confirm)
	assert.Equal(t, 10*time.Millisecond, c.Scheduler.PollInterval)
	assert.Equal(t, 50*time.Millisecond, c.Scheduler.Tolerance)
	assert.Equal(t, InputRobot, c.InputMode)
	assert.Len(t, c.Templates, 3)
	assert.True(t, c.Capture.Region().Empty())

	// Only the target time is missing from a fresh config
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_time")

	c.TargetTime = "2025-04-19 22:28:33"
	assert.NoError(t, c.Validate())
}

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	c := DefaultConfig()
	c.TargetTime = "2025-11-11 00:00:00"
	c.Policies.Checkout.MaxRetries = 8
	c.Capture.Width, c.Capture.Height = 800, 600
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := `
target_time: "2025-04-19 22:28:33"
input_mode: browser
policies:
  checkout:
    max_retries: 7
    delay: 150ms
    threshold: 0.9
scheduler:
  poll_interval: 5ms
  time_sync: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlText), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, engine.AttemptPolicy{MaxRetries: 7, Delay: 150 * time.Millisecond, Threshold: 0.9}, c.Policies.Checkout)
	assert.Equal(t, engine.ConfirmPolicy(), c.Policies.Confirm, "untouched keys keep defaults")
	assert.Equal(t, 5*time.Millisecond, c.Scheduler.PollInterval)
	assert.True(t, c.Scheduler.TimeSync)
	assert.Equal(t, InputBrowser, c.InputMode)
	assert.NoError(t, c.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("login_timeout: [1, 2"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	c := DefaultConfig()
	c.TargetTime = "tomorrow"
	c.Policies.Confirm.MaxRetries = 0
	c.InputMode = "keyboard"
	c.CartURL = ""
	delete(c.Templates, "cart_btn")

	err := c.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "target_time")
	assert.Contains(t, msg, "policies.confirm")
	assert.Contains(t, msg, "input_mode")
	assert.Contains(t, msg, "cart_btn")
}

func TestParseTargetTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-04-19 22:28:33", time.Date(2025, 4, 19, 22, 28, 33, 0, time.Local)},
		{"2025-4-19 22:28:33", time.Date(2025, 4, 19, 22, 28, 33, 0, time.Local)},
		{"  2025-04-19 22:28 ", time.Date(2025, 4, 19, 22, 28, 0, 0, time.Local)},
		{"2025-04-19T14:28:33Z", time.Date(2025, 4, 19, 14, 28, 33, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}

	for _, bad := range []string{"", "19/04/2025", "2025-04-19", "2025-13-01 10:00:00"} {
		_, err := ParseTargetTime(bad)
		assert.Error(t, err, bad)
	}
}
