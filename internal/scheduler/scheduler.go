package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/entitlements/internal/clock"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/entitlements/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	JobRenewalScan = "renewal_scan"

	renewalLockKey = "entitlements:scheduler:renewal_scan"
)

var (
	ErrInvalidConfig  = errors.New("invalid_scheduler_config")
	ErrScanInProgress = errors.New("renewal_scan_in_progress")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Invoices   invoicedomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config              `optional:"true"`
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoices   invoicedomain.Service
	locker     *Locker
	obsMetrics *obsmetrics.Metrics

	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Invoices == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		invoices:   p.Invoices,
		locker:     NewLocker(p.Redis),
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.obsMetrics.IncJobRun(name)

	err := fn(ctx)
	s.obsMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		processed, _ := run.counts()
		s.obsMetrics.AddJobProcessed(name, processed)
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}
	s.obsMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs one renewal scan, holding the cluster lock when Redis is
// configured. ErrScanInProgress means another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, renewalLockKey, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire renewal lock: %w", err)
		}
		if !ok {
			s.obsMetrics.IncJobLockSkipped(JobRenewalScan)
			return ErrScanInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), renewalLockKey, token); err != nil {
				s.log.Warn("release renewal lock failed", zap.Error(err))
			}
		}()
	}
	return s.RunRenewalScan(ctx, s.clock.Now())
}

// RunRenewalScan walks every invoice still flagged active whose period ended
// before now. Each one gets its following invoice and is saved so an unpaid
// predecessor drops to inactive. Invoices are handled independently; the
// returned error joins every failure. Re-running is safe.
func (s *Scheduler) RunRenewalScan(ctx context.Context, now time.Time) error {
	return s.runJob(ctx, JobRenewalScan, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
		return s.renewalScan(ctx, now)
	})
}

func (s *Scheduler) renewalScan(ctx context.Context, now time.Time) error {
	run := jobRunFromContext(ctx)

	var (
		afterID snowflake.ID
		jobErr  error
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		ids, err := s.invoices.ListShouldExpire(ctx, now, afterID, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.fetch.failed", JobRenewalScan, afterID, err)
			return errors.Join(jobErr, err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		jobErr = errors.Join(jobErr, s.renewBatch(ctx, run, ids))
		if len(ids) < s.cfg.BatchSize {
			break
		}
	}
	return jobErr
}

func (s *Scheduler) renewBatch(ctx context.Context, run *jobRun, ids []snowflake.ID) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := s.renewInvoice(ctx, id); err != nil {
				s.logSchedulerError(ctx, run, "scheduler.invoice.renew.failed", JobRenewalScan, id, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			run.AddProcessed(1)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Scheduler) renewInvoice(ctx context.Context, id snowflake.ID) error {
	renewal, err := s.invoices.CreateFollowingInvoice(ctx, id)
	if err != nil {
		return fmt.Errorf("create following invoice %s: %w", id, err)
	}
	if renewal != nil {
		s.logRenewal(ctx, id, renewal.ID)
	}
	if _, err := s.invoices.Save(ctx, id); err != nil {
		return fmt.Errorf("save invoice %s: %w", id, err)
	}
	return nil
}

// Start registers the renewal scan on the cron schedule and starts the
// cron runner.
func (s *Scheduler) Start() error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, s.scheduledRun); err != nil {
		return fmt.Errorf("schedule renewal scan: %w", err)
	}
	s.cron = c
	c.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop waits for a running scan to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) scheduledRun() {
	err := s.RunOnce(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		s.log.Info("renewal scan skipped, lock held by another instance")
	default:
		s.log.Warn("scheduler run failed", zap.Error(err))
	}
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
