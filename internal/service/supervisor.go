package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/symstat/internal/model"
)

// ErrEventsClosed is returned by Do when the event source stopped while
// the context is still alive.
var ErrEventsClosed = errors.New("event source closed")

// Applier consumes folder events, see folder.Aggregator.
type Applier interface {
	Apply(ctx context.Context, event model.Event)
}

// Supervisor owns the event loop. Events are applied one at a time, in the
// order the source delivered them.
type Supervisor struct {
	applier   Applier
	events    <-chan model.Event
	counter   model.Stats
	scheduler gocron.Scheduler
	interval  time.Duration
}

func NewSupervisor(ctx context.Context, cfg model.Service, applier Applier, events <-chan model.Event, counter model.Stats) (*Supervisor, error) {
	var supervisor = &Supervisor{
		applier: applier,
		events:  events,
		counter: counter,
	}

	interval, err := cfg.ReportInterval()
	if err != nil {
		return nil, fmt.Errorf("parsing service.report: %w", err)
	}
	if interval > 0 && counter != nil {
		scheduler, err := newScheduler(interval, func() { supervisor.report(ctx) })
		if err != nil {
			return nil, fmt.Errorf("stats report: %w", err)
		}
		supervisor.scheduler = scheduler
		supervisor.interval = interval
	}
	return supervisor, nil
}

// Do runs the event loop until ctx is cancelled or the event source is
// closed. The stats reporter, if configured, runs for the same time.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor")

	if s.scheduler != nil {
		slog.InfoContext(ctx, "reporting stats", "interval", s.interval.String())
		s.scheduler.Start()
		defer func() {
			err := s.scheduler.Shutdown()
			if err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrEventsClosed
			}
			s.applier.Apply(ctx, event)
		}
	}
}

func (s *Supervisor) report(ctx context.Context) {
	var attrs []any
	for key, value := range s.counter.Stats() {
		attrs = append(attrs, slog.String(key, value))
	}
	slog.InfoContext(ctx, "stats", attrs...)
}

func newScheduler(interval time.Duration, task func()) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
