// Package scheduler runs the periodic confidence, reminder and insight jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrAlreadyRunning = errors.New("scheduler: job already running")
	ErrUnknownJob     = errors.New("scheduler: unknown job")
)

// Result is what a single job run reports for logging.
type Result struct {
	Processed int
	Skipped   int
	Failed    int
}

type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (Result, error)
}

// Locker guards a job across replicas. Acquire reports ok=false when another
// holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type entry struct {
	job     Job
	running atomic.Bool
}

type Runner struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner builds a runner evaluating cron specs in loc. locker may be nil.
func NewRunner(loc *time.Location, locker Locker, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:    cron.New(cron.WithLocation(loc)),
		locker:  locker,
		lockTTL: 30 * time.Minute,
		logger:  logger.With("component", "scheduler"),
		jobs:    map[string]*entry{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *Runner) Add(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.jobs[job.Name]; dup {
		return fmt.Errorf("job %s registered twice", job.Name)
	}
	e := &entry{job: job}
	if _, err := r.cron.AddFunc(job.Spec, func() { _ = r.run(r.ctx, e) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	r.jobs[job.Name] = e
	return nil
}

func (r *Runner) Start() {
	r.mu.Lock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("scheduler started", "jobs", names)
}

// Stop halts new ticks and waits for running jobs until ctx expires, at
// which point their contexts are cancelled.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	defer r.cancel()

	select {
	case <-done.Done():
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// RunNow executes one job synchronously, honouring the same overlap guard
// as scheduled ticks.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.run(ctx, e)
}

func (r *Runner) run(ctx context.Context, e *entry) (err error) {
	name := e.job.Name
	log := r.logger.With("job", name)

	if !e.running.CompareAndSwap(false, true) {
		log.Warn("previous run still in progress, tick skipped")
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	if r.locker != nil {
		release, ok, lerr := r.locker.Acquire(ctx, "altivio:job:"+name, r.lockTTL)
		switch {
		case lerr != nil:
			log.Warn("job lock unavailable, running unguarded", "err", lerr)
		case !ok:
			log.Info("job held by another instance, tick skipped")
			return ErrAlreadyRunning
		default:
			defer release()
		}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", name, p)
			log.Error("job panicked", "panic", p, "duration", time.Since(start))
		}
	}()

	log.Info("job started")
	res, err := e.job.Run(ctx)
	attrs := []any{
		"duration", time.Since(start),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	}
	if err != nil {
		log.Error("job failed", append(attrs, "err", err)...)
		return err
	}
	log.Info("job finished", attrs...)
	return nil
}
