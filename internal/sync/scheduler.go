package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quillnotes/quillsync/internal/api"
)

// defaultDebounce is how long the scheduler waits after a change-feed
// notification before triggering a cycle, so a burst of server-side edits
// collapses into one sync.
const defaultDebounce = 2 * time.Second

// NotificationSource delivers server change notifications. Satisfied by
// *api.Listener; nil disables feed-driven syncs and leaves only the timer.
type NotificationSource interface {
	Listen(ctx context.Context, workspaceID string, ch chan<- api.Notification) error
}

// SchedulerConfig configures NewScheduler.
type SchedulerConfig struct {
	Engine      *Engine
	WorkspaceID string
	Interval    time.Duration
	Debounce    time.Duration
	Notifier    NotificationSource
	Logger      *slog.Logger

	// OnResult, when set, is invoked after every background cycle. Used by
	// watch mode to render outcomes as they happen.
	OnResult func(*SyncResult)
}

// Scheduler drives background sync cycles from three sources: a periodic
// timer, server change-feed notifications, and explicit Trigger calls. All
// sources funnel into the engine's background entry point, which refuses to
// overlap an already-running cycle.
type Scheduler struct {
	engine      *Engine
	workspaceID string
	interval    time.Duration
	debounce    time.Duration
	notifier    NotificationSource
	logger      *slog.Logger
	onResult    func(*SyncResult)

	triggers  chan struct{}
	intervals chan time.Duration
}

// NewScheduler creates a Scheduler. Run must be called to start it.
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Scheduler{
		engine:      cfg.Engine,
		workspaceID: cfg.WorkspaceID,
		interval:    cfg.Interval,
		debounce:    debounce,
		notifier:    cfg.Notifier,
		logger:      logger,
		onResult:    cfg.OnResult,
		triggers:    make(chan struct{}, 1),
		intervals:   make(chan time.Duration, 1),
	}
}

// Trigger requests an immediate background cycle. Non-blocking: if a
// trigger is already queued the request coalesces with it.
func (s *Scheduler) Trigger() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// SetInterval changes the polling interval at runtime. Zero or negative
// disables the timer. Used by config hot-reload.
func (s *Scheduler) SetInterval(d time.Duration) {
	select {
	case s.intervals <- d:
	default:
	}
}

// Run executes the scheduling loop until the context is canceled. The
// change-feed listener runs in its own goroutine and reconnects on failure;
// a dead feed degrades to timer-only operation rather than stopping sync.
func (s *Scheduler) Run(ctx context.Context) error {
	notifications := make(chan api.Notification, 8)

	if s.notifier != nil {
		go func() {
			if err := s.notifier.Listen(ctx, s.workspaceID, notifications); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("change feed listener stopped", slog.String("error", err.Error()))
			}
		}()
	}

	ticker := time.NewTicker(s.effectiveInterval())
	defer ticker.Stop()

	// The debounce timer starts stopped and is armed by notifications.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	s.logger.Info("scheduler started",
		slog.String("workspace", s.workspaceID),
		slog.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			s.runBackground(ctx, "timer")

		case n := <-notifications:
			s.logger.Debug("change notification received",
				slog.String("workspace", n.WorkspaceID),
				slog.Int64("server_revision", n.ServerRevision),
			)
			debounce.Reset(s.debounce)

		case <-debounce.C:
			s.runBackground(ctx, "change-feed")

		case <-s.triggers:
			s.runBackground(ctx, "manual")

		case d := <-s.intervals:
			if d == s.interval {
				continue
			}

			s.interval = d
			ticker.Reset(s.effectiveInterval())

			s.logger.Info("poll interval updated", slog.Duration("interval", d))
		}
	}
}

// effectiveInterval maps a disabled timer to a practically-infinite tick.
func (s *Scheduler) effectiveInterval() time.Duration {
	if s.interval <= 0 {
		return 24 * 365 * time.Hour
	}

	return s.interval
}

func (s *Scheduler) runBackground(ctx context.Context, source string) {
	res, err := s.engine.SyncBackground(ctx, s.workspaceID)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Debug("skipping trigger, cycle already running", slog.String("source", source))
			return
		}

		s.logger.Error("background sync failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)

		return
	}

	if s.onResult != nil {
		s.onResult(res)
	}
}
