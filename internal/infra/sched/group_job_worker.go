package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

const groupJobBatch = 100

// GroupJobWorker drains persisted delayed group actions, currently just the
// unban that follows a removal ban. A job stays queued until its action
// succeeds, so transport hiccups are retried on the next pass.
type GroupJobWorker struct {
	interval time.Duration
	jobs     repository.GroupJobRepository
	group    adapter.GroupAdapter
	log      zerolog.Logger
}

func NewGroupJobWorker(
	interval time.Duration,
	jobs repository.GroupJobRepository,
	group adapter.GroupAdapter,
	log *zerolog.Logger,
) *GroupJobWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &GroupJobWorker{
		interval: interval,
		jobs:     jobs,
		group:    group,
		log:      log.With().Str("component", "group_job_worker").Logger(),
	}
}

func (w *GroupJobWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting group job worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping group job worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *GroupJobWorker) tick(ctx context.Context) {
	metrics.IncSchedulerRun("group_jobs")
	due, err := w.jobs.ListDue(ctx, time.Now(), groupJobBatch)
	if err != nil {
		metrics.IncSchedulerError("group_jobs")
		w.log.Error().Err(err).Msg("list due group jobs")
		return
	}

	for _, job := range due {
		if err := w.execute(ctx, job); err != nil {
			metrics.IncSchedulerError("group_jobs")
			metrics.IncGroupSyncFailure(string(job.Kind))
			w.log.Warn().Err(err).Str("job_id", job.ID).Int64("telegram_id", job.TelegramID).Msg("group job failed, will retry")
			continue
		}
		if err := w.jobs.MarkDone(ctx, job.ID); err != nil {
			metrics.IncSchedulerError("group_jobs")
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("mark group job done")
			continue
		}
		w.log.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int64("telegram_id", job.TelegramID).Msg("group job executed")
	}
}

func (w *GroupJobWorker) execute(ctx context.Context, job *model.GroupJob) error {
	switch job.Kind {
	case model.GroupJobUnban:
		return w.group.UnbanMember(ctx, job.TelegramID)
	default:
		w.log.Error().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("unknown group job kind, marking done")
		return nil
	}
}
