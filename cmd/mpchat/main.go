package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mpchat/client/internal/config"
	"github.com/mpchat/client/internal/coordinator"
	"github.com/mpchat/client/internal/directory"
	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/session"
	"github.com/mpchat/client/internal/transport"
)

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mpchat",
		Short:        "Terminal client for the MpChat relay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			initLogger(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.AddFlags(root.Flags())
	return root
}

func initLogger(level, format string) {
	zerolog.SetGlobalLevel(parseZerologLevel(level))
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dir *directory.Client
	if cfg.APIURL != "" {
		var err error
		if dir, err = directory.New(cfg.APIURL, directory.DefaultOptions()); err != nil {
			return err
		}
	}

	userID := protocol.ID(cfg.UserID)
	if cfg.Username != "" {
		if dir == nil {
			return errors.New("--username needs --api-url")
		}
		user, err := dir.Login(ctx, cfg.Username)
		if err != nil {
			return errors.Wrap(err, "login")
		}
		userID = user.ID
		log.Info().Str("component", "main").Str("user_id", userID.String()).Str("username", user.Username).Msg("logged in")
	}
	if userID == "" {
		return errors.New("either --user-id or --username is required")
	}

	tc := cfg.TransportConfig(userID.String())
	if _, err := transport.NewLink(tc); err != nil {
		return err
	}

	log.Info().Str("component", "main").
		Str("transport", cfg.Transport).
		Str("ws_url", cfg.WSURL).
		Str("nats_url", cfg.NATSURL).
		Str("api_url", cfg.APIURL).
		Str("redis_addr", cfg.RedisAddr).
		Str("metrics_addr", cfg.MetricsAddr).
		Dur("auth_timeout", cfg.AuthTimeout).
		Msg("mpchat starting")

	opts := coordinator.Options{
		Dial: func() session.Link {
			link, _ := transport.NewLink(tc)
			return link
		},
		Notify:       cfg.NotifyConfig(),
		AuthTimeout:  cfg.AuthTimeout,
		TypingWindow: cfg.TypingWindow,
	}
	if dir != nil {
		opts.Directory = dir
	}
	c := coordinator.New(opts)

	view := newRenderer(os.Stdout)
	c.Subscribe(view.render)

	if cfg.RedisAddr != "" {
		store, err := session.NewStore(cfg.RedisAddr, tc.ClientName)
		if err != nil {
			return err
		}
		defer store.Close()
		rec := session.NewRecorder(store)
		// Runs before store.Close and after the coordinator stops: the
		// session record is removed on exit.
		defer rec.Close()
		c.Subscribe(newSessionTracker(tc.ClientName, rec.Record).observe)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		if err := c.Run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := c.Connect(egCtx, userID); err != nil {
		cancel()
		_ = eg.Wait()
		return err
	}
	if dir != nil {
		if err := c.LoadRoster(egCtx); err != nil {
			log.Warn().Err(err).Str("component", "main").Msg("roster load failed")
		}
	}

	// stdin reads cannot be interrupted, so the shell stays outside the group.
	sh := &shell{c: c, dir: dir, out: os.Stdout}
	input := make(chan error, 1)
	go func() { input <- sh.loop(egCtx, os.Stdin) }()

	select {
	case err := <-input:
		if err != nil {
			log.Warn().Err(err).Str("component", "main").Msg("input closed")
		}
	case <-egCtx.Done():
		log.Info().Str("component", "main").Msg("shutting down")
	}
	cancel()
	return eg.Wait()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// sessionTracker turns snapshots into stored session records.
type sessionTracker struct {
	client      string
	record      func(session.Record)
	connectedAt int64
}

func newSessionTracker(client string, record func(session.Record)) *sessionTracker {
	return &sessionTracker{client: client, record: record}
}

func (t *sessionTracker) observe(s coordinator.Snapshot) {
	switch s.Session.State {
	case session.Authenticated:
		if t.connectedAt == 0 {
			t.connectedAt = s.At.Unix()
		}
	case session.Disconnected:
		t.connectedAt = 0
	}
	rec := s.Record()
	rec.Client = t.client
	rec.ConnectedAt = t.connectedAt
	t.record(rec)
}
