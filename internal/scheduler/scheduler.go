// Package scheduler enqueues the periodic expiry sweep. Every instance may run it; the
// unique task option and the sweep lease keep the work single.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/JBD-GER/maklernull-sub000/internal/tasks"
)

// Enqueuer is the part of *asynq.Client the scheduler needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Scheduler struct {
	spec      string
	uniqueFor time.Duration
	enqueuer  Enqueuer
	cron      *cron.Cron
}

func New(spec string, uniqueFor time.Duration, enqueuer Enqueuer) *Scheduler {
	return &Scheduler{
		spec:      spec,
		uniqueFor: uniqueFor,
		enqueuer:  enqueuer,
		cron:      cron.New(),
	}
}

// Start registers the sweep schedule. An empty spec disables it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		log.Println("No sweep schedule configured; sweeps run only on request")
		return nil
	}
	log.Printf("Starting sweep scheduler with cron: %s", s.spec)
	if _, err := s.cron.AddFunc(s.spec, func() { s.EnqueueSweep(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	s.cron.Start()
	return nil
}

// EnqueueSweep queues one sweep. A sweep that is already queued is not duplicated.
func (s *Scheduler) EnqueueSweep(ctx context.Context) {
	info, err := s.enqueuer.EnqueueContext(ctx, tasks.NewExpirySweepTask(s.uniqueFor))
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		log.Println("Expiry sweep already queued")
	case err != nil:
		log.Printf("ERROR: failed to enqueue expiry sweep: %v", err)
	default:
		log.Printf("Enqueued expiry sweep %s", info.ID)
	}
}

// Stop halts the schedule and waits for a running enqueue to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
