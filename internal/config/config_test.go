package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 10*time.Second, cfg.AuthTimeout)
	require.Equal(t, 5*time.Second, cfg.NotifyDwell)
	require.Equal(t, 3*time.Second, cfg.NotifyShortDwell)
	require.Equal(t, time.Second, cfg.TypingWindow)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("MPCHAT_WS_URL", "ws://relay:9000/ws")
	t.Setenv("MPCHAT_USER_ID", "42")
	t.Setenv("MPCHAT_AUTH_TIMEOUT", "2s")
	t.Setenv("MPCHAT_NOTIFY_SHORT_DWELL", "1500ms")
	t.Setenv("MPCHAT_REDIS_ADDR", "localhost:6379")

	cfg, err := load(t)
	require.NoError(t, err)
	require.Equal(t, "ws://relay:9000/ws", cfg.WSURL)
	require.Equal(t, "42", cfg.UserID)
	require.Equal(t, 2*time.Second, cfg.AuthTimeout)
	require.Equal(t, 1500*time.Millisecond, cfg.NotifyShortDwell)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MPCHAT_TRANSPORT", "ws")
	t.Setenv("MPCHAT_TYPING_WINDOW", "3s")

	cfg, err := load(t, "--transport=NATS", "--typing-window=500ms", "--auth-timeout=0")
	require.NoError(t, err)
	require.Equal(t, "nats", cfg.Transport)
	require.Equal(t, 500*time.Millisecond, cfg.TypingWindow)
	require.Equal(t, time.Duration(0), cfg.AuthTimeout)

	tc := cfg.TransportConfig("7")
	require.Equal(t, "nats", tc.Kind)
	require.Equal(t, "7", tc.UserID.String())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("MPCHAT_NOTIFY_DWELL", "soon")
	_, err := load(t)
	require.Error(t, err)
	require.Contains(t, err.Error(), "notify-dwell")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Transport = "smoke-signals"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.TypingWindow = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.AuthTimeout = -time.Second
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Transport = "nats"
	bad.NATSURL = ""
	require.Error(t, bad.Validate())
}
