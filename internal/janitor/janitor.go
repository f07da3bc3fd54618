// Package janitor periodically regenerates missing image derivatives.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/oprema/internal/imagecache"
)

// ErrBusy is returned by RunOnce while another sweep is in progress.
var ErrBusy = errors.New("sweep already running")

// Sweeper walks the cache and fills in missing derivatives.
// *imagecache.Cache implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (imagecache.SweepResult, error)
}

// Janitor runs sweeps on a cron schedule. Overlapping runs are skipped.
type Janitor struct {
	sweeper  Sweeper
	schedule string
	log      *slog.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New returns a Janitor for schedule, a standard five-field cron spec or a
// descriptor such as "@hourly". An empty schedule disables the janitor.
func New(sweeper Sweeper, schedule string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("parsing janitor schedule %q: %w", schedule, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		sweeper:  sweeper,
		schedule: schedule,
		log:      logger,
		cron:     cron.New(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Enabled reports whether a schedule is configured.
func (j *Janitor) Enabled() bool {
	return j.schedule != ""
}

// Start registers the sweep and starts the scheduler. It is a no-op when
// the janitor is disabled.
func (j *Janitor) Start() error {
	if !j.Enabled() {
		j.log.Info("janitor disabled")
		return nil
	}
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(j.ctx); err != nil && !errors.Is(err, ErrBusy) {
			j.log.Error("scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	j.cron.Start()
	j.log.Info("janitor started", "schedule", j.schedule)
	return nil
}

// RunOnce performs a single sweep now, or returns ErrBusy if one is running.
func (j *Janitor) RunOnce(ctx context.Context) (imagecache.SweepResult, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return imagecache.SweepResult{}, ErrBusy
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	res, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return res, fmt.Errorf("sweeping cache: %w", err)
	}
	j.log.Info("sweep finished", "scanned", res.Scanned, "derived", res.Derived, "failed", res.Failed)
	return res, nil
}

// Running reports whether a sweep is in progress.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Stop cancels an in-flight scheduled sweep and waits for it to return.
func (j *Janitor) Stop() {
	j.cancel()
	<-j.cron.Stop().Done()
}
