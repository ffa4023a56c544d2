// Package scheduler runs the periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"monbattle/internal/ranking"
	"monbattle/internal/service"
)

// Job names.
const (
	JobSweep     = "timeout-sweep"
	JobReconcile = "rating-reconcile"
	JobMatchmake = "ranked-matchmaking"
	JobPrune     = "hub-prune"
)

// Sweeper resolves expired turns.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// Reconciler applies ratings that failed after their battle finished.
type Reconciler interface {
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// Matchmaker pairs queued ranked players.
type Matchmaker interface {
	RunRanked(ctx context.Context) (ranking.RunResult, error)
}

// Pruner drops idle rooms.
type Pruner interface {
	Prune(idle time.Duration) int
}

// Config holds job intervals. A zero interval disables that job.
type Config struct {
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	MatchmakeInterval time.Duration
	PruneInterval     time.Duration
	HubIdle           time.Duration
}

// Tasks are the job bodies. A nil task is not registered.
type Tasks struct {
	Sweeper    Sweeper
	Reconciler Reconciler
	Matchmaker Matchmaker
	Pruner     Pruner
}

// Scheduler owns the gocron scheduler and the context jobs run under.
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the jobs whose dependencies are present. Jobs never overlap
// themselves; a run that is still going when the next one is due pushes it
// back.
func New(clock clockwork.Clock, cfg Config, tasks Tasks) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{sched: sched, ctx: ctx, cancel: cancel}

	if sweeper := tasks.Sweeper; sweeper != nil && cfg.SweepInterval > 0 {
		if err := s.add(JobSweep, cfg.SweepInterval, func() {
			if _, err := sweeper.Sweep(s.ctx); err != nil {
				log.Error().Err(err).Msg("Timeout sweep failed")
			}
		}); err != nil {
			return nil, err
		}
	}
	if rec := tasks.Reconciler; rec != nil && cfg.ReconcileInterval > 0 {
		if err := s.add(JobReconcile, cfg.ReconcileInterval, func() {
			if _, err := rec.Reconcile(s.ctx); err != nil {
				log.Error().Err(err).Msg("Rating reconcile failed")
			}
		}); err != nil {
			return nil, err
		}
	}
	if mm := tasks.Matchmaker; mm != nil && cfg.MatchmakeInterval > 0 {
		if err := s.add(JobMatchmake, cfg.MatchmakeInterval, func() {
			if _, err := mm.RunRanked(s.ctx); err != nil {
				log.Error().Err(err).Msg("Ranked matchmaking failed")
			}
		}); err != nil {
			return nil, err
		}
	}
	if pruner := tasks.Pruner; pruner != nil && cfg.PruneInterval > 0 {
		idle := cfg.HubIdle
		if err := s.add(JobPrune, cfg.PruneInterval, func() {
			pruner.Prune(idle)
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, fn func()) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.sched.Shutdown()
		s.cancel()
		return fmt.Errorf("register %s: %w", name, err)
	}
	log.Debug().Str("job", name).Dur("every", every).Msg("Job registered")
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.sched.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// RunNow triggers a registered job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	for _, j := range s.sched.Jobs() {
		if j.Name() == name {
			return j.RunNow()
		}
	}
	return fmt.Errorf("no job named %q", name)
}

// Start begins running jobs.
func (s *Scheduler) Start() { s.sched.Start() }

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}
