// Package config loads the client configuration from flags, MPCHAT_*
// environment variables and defaults, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/session"
	"github.com/mpchat/client/internal/transport"
	"github.com/mpchat/client/internal/typing"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MPCHAT"

// Config holds all client settings.
type Config struct {
	WSURL       string
	APIURL      string
	UserID      string
	Username    string
	Transport   string
	NATSURL     string
	RedisAddr   string
	MetricsAddr string

	AuthTimeout      time.Duration
	NotifyDwell      time.Duration
	NotifyShortDwell time.Duration
	TypingWindow     time.Duration
	PingInterval     time.Duration

	LogLevel  string
	LogFormat string
}

// Default returns the configuration for a relay on localhost.
func Default() Config {
	tc := transport.DefaultConfig()
	return Config{
		WSURL:            tc.WSURL,
		APIURL:           "http://localhost:5000",
		Transport:        transport.KindWebSocket,
		NATSURL:          tc.NATSURL,
		AuthTimeout:      session.DefaultAuthTimeout,
		NotifyDwell:      notify.DefaultDwell,
		NotifyShortDwell: notify.DefaultShortDwell,
		TypingWindow:     typing.DefaultWindow,
		PingInterval:     tc.PingInterval,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// AddFlags registers the configuration flags with their defaults.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("ws-url", d.WSURL, "relay WebSocket URL")
	fs.String("api-url", d.APIURL, "directory service base URL")
	fs.String("user-id", "", "local user id (skips login)")
	fs.String("username", "", "log in to the directory service as this user")
	fs.String("transport", d.Transport, "relay transport: ws or nats")
	fs.String("nats-url", d.NATSURL, "NATS URL for the nats transport")
	fs.String("redis-addr", "", "record the client session in this Redis (empty disables)")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	fs.Duration("auth-timeout", d.AuthTimeout, "how long to wait for the authentication reply (0 disables)")
	fs.Duration("notify-dwell", d.NotifyDwell, "how long notifications stay up")
	fs.Duration("notify-short-dwell", d.NotifyShortDwell, "how long connection notifications stay up")
	fs.Duration("typing-window", d.TypingWindow, "quiet period that ends a typing episode")
	fs.Duration("ping-interval", d.PingInterval, "WebSocket ping interval (0 disables)")
	fs.String("log-level", d.LogLevel, "log level: trace, debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: console or json")
}

// Load resolves the configuration from fs and the environment.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, errors.Wrap(err, "config: bind flags")
	}

	cfg := Config{
		WSURL:       v.GetString("ws-url"),
		APIURL:      v.GetString("api-url"),
		UserID:      v.GetString("user-id"),
		Username:    v.GetString("username"),
		Transport:   strings.ToLower(v.GetString("transport")),
		NATSURL:     v.GetString("nats-url"),
		RedisAddr:   v.GetString("redis-addr"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		LogFormat:   v.GetString("log-format"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"auth-timeout", &cfg.AuthTimeout},
		{"notify-dwell", &cfg.NotifyDwell},
		{"notify-short-dwell", &cfg.NotifyShortDwell},
		{"typing-window", &cfg.TypingWindow},
		{"ping-interval", &cfg.PingInterval},
	}
	for _, d := range durations {
		raw := v.GetString(d.key)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config: invalid %s %q", d.key, raw)
		}
		*d.dst = parsed
	}

	return cfg, cfg.Validate()
}

// Validate checks values that cannot be fixed by a default.
func (c Config) Validate() error {
	switch c.Transport {
	case transport.KindWebSocket:
		if c.WSURL == "" {
			return errors.New("config: ws-url is required for the ws transport")
		}
	case transport.KindNATS:
		if c.NATSURL == "" {
			return errors.New("config: nats-url is required for the nats transport")
		}
	default:
		return errors.Errorf("config: unknown transport %q", c.Transport)
	}
	for name, d := range map[string]time.Duration{
		"auth-timeout":  c.AuthTimeout,
		"ping-interval": c.PingInterval,
	} {
		if d < 0 {
			return errors.Errorf("config: %s must not be negative", name)
		}
	}
	for name, d := range map[string]time.Duration{
		"notify-dwell":       c.NotifyDwell,
		"notify-short-dwell": c.NotifyShortDwell,
		"typing-window":      c.TypingWindow,
	} {
		if d <= 0 {
			return errors.Errorf("config: %s must be positive", name)
		}
	}
	return nil
}

// TransportConfig derives the link settings for userID.
func (c Config) TransportConfig(userID string) transport.Config {
	tc := transport.DefaultConfig()
	tc.Kind = c.Transport
	tc.WSURL = c.WSURL
	tc.NATSURL = c.NATSURL
	tc.UserID = protocol.ID(userID)
	tc.PingInterval = c.PingInterval
	return tc
}

// NotifyConfig derives the notification dwell settings.
func (c Config) NotifyConfig() notify.Config {
	return notify.Config{Dwell: c.NotifyDwell, ShortDwell: c.NotifyShortDwell}
}
