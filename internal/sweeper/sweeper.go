// Package sweeper periodically finalizes proposals past their deadline and,
// when enabled, executes the approved ones.
//
// Deadlines are enforced lazily on access regardless; the sweeper only makes
// outcomes visible without waiting for the next read.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mborders/logmatic"
	"github.com/robfig/cron/v3"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/observability"
)

// DefaultSchedule runs a sweep every 30 seconds.
const DefaultSchedule = "@every 30s"

// Finalizer lists and finalizes due proposals.
type Finalizer interface {
	ListDue(ctx context.Context) ([]*domain.Proposal, error)
	Refresh(ctx context.Context, proposalID string) (*domain.Proposal, error)
}

// ApprovedLister lists proposals waiting for execution.
type ApprovedLister interface {
	ListProposalsByState(ctx context.Context, state domain.ProposalState) ([]*domain.Proposal, error)
}

// Executor executes an approved proposal.
type Executor interface {
	Execute(ctx context.Context, proposalID string) (*domain.ExecutionResult, error)
}

// Options configures a Sweeper. Executor and Approved are only needed with
// AutoExecute.
type Options struct {
	Schedule    string
	Finalizer   Finalizer
	AutoExecute bool
	Approved    ApprovedLister
	Executor    Executor
	Metrics     *observability.Metrics
	Logger      *logmatic.Logger
}

// Result summarizes one sweep.
type Result struct {
	Finalized map[domain.ProposalState]int
	Executed  int
	Failed    int
	Skipped   int
}

// Sweeper runs sweeps on a cron schedule.
type Sweeper struct {
	cron     *cron.Cron
	schedule string
	opts     Options
	log      *logmatic.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// New creates a Sweeper. The schedule is validated here.
func New(opts Options) (*Sweeper, error) {
	if opts.Finalizer == nil {
		return nil, errors.New("sweeper: finalizer is required")
	}
	if opts.AutoExecute && (opts.Executor == nil || opts.Approved == nil) {
		return nil, errors.New("sweeper: auto-execute requires an executor and an approved lister")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("sweeper: parse schedule %q: %w", opts.Schedule, err)
	}
	return &Sweeper{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: opts.Schedule,
		opts:     opts,
		log:      logging.OrDefault(opts.Logger),
	}, nil
}

// Start schedules sweeps until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sweeper already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	id, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(runCtx); err != nil && runCtx.Err() == nil {
			s.log.Error("Sweep failed: %v", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("register sweep: %w", err)
	}
	s.entryID = id
	s.cancel = cancel
	s.cron.Start()
	s.log.Info("Sweeper started (%s, auto-execute %t)", s.schedule, s.opts.AutoExecute)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	cancel()
	s.log.Info("Sweeper stopped")
}

// RunOnce performs a single sweep. Errors on individual proposals are logged
// and counted; only listing failures abort the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	res := &Result{Finalized: make(map[domain.ProposalState]int)}

	due, err := s.opts.Finalizer.ListDue(ctx)
	if err != nil {
		s.opts.Metrics.RecordSweep("error", time.Now())
		return nil, fmt.Errorf("list due proposals: %w", err)
	}
	for _, p := range due {
		got, err := s.opts.Finalizer.Refresh(ctx, p.ID)
		if err != nil {
			s.log.Warn("Sweep: refresh proposal %s: %v", p.ID, err)
			res.Skipped++
			continue
		}
		res.Finalized[got.State]++
	}

	if s.opts.AutoExecute {
		if err := s.executeApproved(ctx, res); err != nil {
			s.opts.Metrics.RecordSweep("error", time.Now())
			return nil, err
		}
	}

	s.opts.Metrics.RecordSweep("success", time.Now())
	if len(due) > 0 || res.Executed > 0 || res.Failed > 0 {
		s.log.Info("Sweep: finalized %d, executed %d, failed %d, skipped %d",
			len(due)-res.Skipped, res.Executed, res.Failed, res.Skipped)
	}
	return res, nil
}

func (s *Sweeper) executeApproved(ctx context.Context, res *Result) error {
	approved, err := s.opts.Approved.ListProposalsByState(ctx, domain.ProposalStateApproved)
	if err != nil {
		return fmt.Errorf("list approved proposals: %w", err)
	}
	for _, p := range approved {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A trade already sent to the venue must settle even when shutdown
		// cancels ctx; the dispatcher's execution timeout still bounds it.
		_, err := s.opts.Executor.Execute(context.WithoutCancel(ctx), p.ID)
		switch {
		case err == nil:
			res.Executed++
		case errors.Is(err, domain.ErrExecutionFailure):
			res.Failed++
		case errors.Is(err, domain.ErrAlreadyExecuted), errors.Is(err, domain.ErrInsufficientFundBalance):
			s.log.Debug("Sweep: proposal %s not executed: %v", p.ID, err)
			res.Skipped++
		default:
			s.log.Warn("Sweep: execute proposal %s: %v", p.ID, err)
			res.Skipped++
		}
	}
	return nil
}
