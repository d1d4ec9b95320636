package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
)

// DefaultInterval is how often the scheduler scans for due reminders.
const DefaultInterval = 5 * time.Minute

// CycleResult summarizes one scan-and-dispatch pass.
type CycleResult struct {
	StartedAt time.Time     `json:"started_at"`
	Delay     time.Duration `json:"delay"`
	Due       int           `json:"due"`
	Sent      int           `json:"sent"`
	Recovered int           `json:"recovered"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Status is a snapshot of the scheduler for the operator console.
type Status struct {
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	LastRun    *time.Time    `json:"last_run"`
	LastResult *CycleResult  `json:"last_result"`
	LastError  string        `json:"last_error,omitempty"`
	NextRun    *time.Time    `json:"next_run"`
}

// Scheduler periodically runs a reminder cycle.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	// cycle serializes RunCycle so an operator-triggered run never overlaps
	// a timer tick.
	cycle sync.Mutex

	mu         sync.RWMutex
	cancel     context.CancelFunc
	done       chan struct{}
	reset      chan struct{}
	lastRun    time.Time
	lastResult *CycleResult
	lastErr    string
	nextRun    time.Time
}

// NewScheduler creates a scheduler. A non-positive interval selects
// DefaultInterval.
func NewScheduler(d *Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		dispatcher: d,
		interval:   interval,
		now:        time.Now,
		logger:     logger.With("component", "scheduler"),
		reset:      make(chan struct{}, 1),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.nextRun = s.now().Add(s.interval)
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.interval)

	go func() {
		defer close(done)
		for {
			s.mu.RLock()
			wait := time.Until(s.nextRun)
			s.mu.RUnlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.reset:
				timer.Stop()
				continue
			case <-timer.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler, waiting for an in-flight cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
		s.logger.Info("scheduler stopped")
	}
}

// Reset moves the next run to the start of the next minute.
func (s *Scheduler) Reset() time.Time {
	next := s.now().Truncate(time.Minute).Add(time.Minute)
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()

	select {
	case s.reset <- struct{}{}:
	default:
	}
	s.logger.Info("scheduler reset", "next_run", next)
	return next
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:   s.cancel != nil,
		Interval:  s.interval,
		LastError: s.lastErr,
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		st.LastRun = &t
	}
	if s.lastResult != nil {
		r := *s.lastResult
		st.LastResult = &r
	}
	if st.Running && !s.nextRun.IsZero() {
		t := s.nextRun
		st.NextRun = &t
	}
	return st
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	s.nextRun = now.Add(s.interval)
	s.mu.Unlock()

	if _, err := s.RunCycle(ctx, now); err != nil {
		s.logger.Error("reminder cycle", "error", err)
	}
}

// RunCycle dispatches every record due at now. A failure on one record is
// logged and counted; it does not stop the rest of the batch.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	res, err := s.runCycle(ctx, now)

	s.mu.Lock()
	s.lastRun = now
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastResult = &res
	}
	s.mu.Unlock()

	return res, err
}

func (s *Scheduler) runCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	res := CycleResult{StartedAt: now}
	start := time.Now()
	d := s.dispatcher

	rs, err := d.settings.ReminderSettings(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: load settings: %v", ErrPersistence, err)
	}
	delay, err := rs.Delay()
	if err != nil {
		return res, fmt.Errorf("reminder delay: %w", err)
	}
	res.Delay = delay

	due, err := d.records.QueryDueForReminder(ctx, now, delay)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	res.Due = len(due)

	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		_, delivered, err := d.dispatch(ctx, rec, model.DispatchAutomatic, now)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Warn("reminder not sent", "record_id", rec.ID, "error", err)
		case delivered:
			res.Sent++
		default:
			res.Recovered++
		}
	}
	res.Elapsed = time.Since(start)

	if res.Due > 0 {
		s.logger.Info("reminder cycle complete",
			"due", res.Due, "sent", res.Sent, "recovered", res.Recovered, "failed", res.Failed)
		d.notifier.Notify("scheduler", "cycle", 0, map[string]any{
			"due": res.Due, "sent": res.Sent, "failed": res.Failed,
		})
	}
	return res, nil
}
