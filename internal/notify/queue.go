// Package notify holds the single user-visible notification slot and the
// unread badge shown in the window title.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/sched"
)

const (
	// DefaultDwell is how long a notification stays up.
	DefaultDwell = 5 * time.Second

	// DefaultShortDwell is used for connection status messages.
	DefaultShortDwell = 3 * time.Second

	// AppTitle is the title shown when there are no unread messages.
	AppTitle = "MpChat"
)

// Severity classifies a notification.
type Severity int

const (
	Info Severity = iota
	Success
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notification is a transient user-visible alert.
type Notification struct {
	ID        string
	Text      string
	Severity  Severity
	CreatedAt time.Time
	Dwell     time.Duration
}

// Config holds the dwell durations.
type Config struct {
	Dwell      time.Duration
	ShortDwell time.Duration
}

// DefaultConfig returns the standard dwell durations.
func DefaultConfig() Config {
	return Config{Dwell: DefaultDwell, ShortDwell: DefaultShortDwell}
}

// Queue is a single-slot notification display. Posting replaces whatever is
// shown and restarts the dismissal timer. Queue is not safe for concurrent
// use; the coordinator owns it.
type Queue struct {
	sched    sched.Scheduler
	cfg      Config
	current  *Notification
	timer    sched.Timer
	badge    int
}

// NewQueue creates an empty queue. Zero durations in cfg fall back to the
// defaults.
func NewQueue(s sched.Scheduler, cfg Config) *Queue {
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	if cfg.ShortDwell <= 0 {
		cfg.ShortDwell = DefaultShortDwell
	}
	return &Queue{sched: s, cfg: cfg}
}

// Post shows text with the standard dwell.
func (q *Queue) Post(text string, sev Severity) Notification {
	return q.post(text, sev, q.cfg.Dwell)
}

// PostShort shows text with the short dwell used for connection messages.
func (q *Queue) PostShort(text string, sev Severity) Notification {
	return q.post(text, sev, q.cfg.ShortDwell)
}

func (q *Queue) post(text string, sev Severity, dwell time.Duration) Notification {
	q.stopTimer()

	n := Notification{
		ID:        uuid.NewString(),
		Text:      text,
		Severity:  sev,
		CreatedAt: q.sched.Now(),
		Dwell:     dwell,
	}
	q.current = &n
	q.timer = q.sched.AfterFunc(dwell, q.Dismiss)

	metrics.NotificationsPosted.WithLabelValues(sev.String()).Inc()
	log.Debug().Str("component", "notify").Str("severity", sev.String()).Str("text", text).Msg("notification posted")
	return n
}

// Dismiss clears the display and resets the title badge.
func (q *Queue) Dismiss() {
	q.stopTimer()
	q.current = nil
	q.badge = 0
}

// Current returns the notification on display, if any.
func (q *Queue) Current() (Notification, bool) {
	if q.current == nil {
		return Notification{}, false
	}
	return *q.current, true
}

// Bump increments the unread badge.
func (q *Queue) Bump() {
	q.badge++
}

// Badge returns the unread counter.
func (q *Queue) Badge() int {
	return q.badge
}

// Title renders the window title for the current badge.
func (q *Queue) Title() string {
	if q.badge == 0 {
		return AppTitle
	}
	return fmt.Sprintf("(%d) %s", q.badge, AppTitle)
}

func (q *Queue) stopTimer() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}
