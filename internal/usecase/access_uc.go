package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

const (
	inviteLinkTTL = time.Hour
	// A short ban removes the member; Telegram lifts it on its own after
	// banWindow, and the queued unban job clears the restriction earlier so
	// a renewed subscriber can rejoin.
	banWindow  = time.Minute
	unbanDelay = 10 * time.Second
)

// AccessResult reports a membership action. Transport failures land in Err;
// they are never raised as errors because membership is best-effort and must
// not gate financial state.
type AccessResult struct {
	Success bool
	Err     error
}

// PermissionsResult is the diagnostic bot-rights check.
type PermissionsResult struct {
	CanRemove bool
	Err       error
}

// AccessUseCase converges group membership to subscription entitlement.
type AccessUseCase struct {
	group adapter.GroupAdapter
	bot   adapter.TelegramBotAdapter
	jobs  repository.GroupJobRepository
	log   zerolog.Logger
}

func NewAccessUseCase(group adapter.GroupAdapter, bot adapter.TelegramBotAdapter, jobs repository.GroupJobRepository, log *zerolog.Logger) *AccessUseCase {
	return &AccessUseCase{
		group: group,
		bot:   bot,
		jobs:  jobs,
		log:   log.With().Str("component", "access_uc").Logger(),
	}
}

// Grant gets the user into the gated group: a no-op for current members,
// otherwise a single-use invite link is created and delivered. Success means
// the link was generated and delivery attempted.
func (uc *AccessUseCase) Grant(ctx context.Context, tgID int64) AccessResult {
	member, err := uc.group.IsMember(ctx, tgID)
	if err != nil {
		metrics.IncGroupSyncFailure("grant")
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("membership check failed")
		return AccessResult{Success: false, Err: err}
	}
	if member {
		return AccessResult{Success: true}
	}

	link, err := uc.group.CreateInviteLink(ctx, inviteLinkTTL)
	if err != nil {
		metrics.IncGroupSyncFailure("grant")
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("invite link creation failed")
		return AccessResult{Success: false, Err: err}
	}

	msg := "Here is your invite link to the premium group (valid for 1 hour, single use):\n" + link
	if err := uc.bot.SendMessage(ctx, tgID, msg); err != nil {
		// The link exists; delivery was attempted. The user can still ask
		// for it again via /access.
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("invite link delivery failed")
	}
	uc.log.Info().Int64("telegram_id", tgID).Msg("group access granted")
	return AccessResult{Success: true}
}

// Revoke removes the user from the group. Not being a member already counts
// as success. Removal is a short auto-expiring ban followed by a persisted
// unban job, so the account can rejoin after a future renewal even if the
// process restarts in between.
func (uc *AccessUseCase) Revoke(ctx context.Context, tgID int64) AccessResult {
	member, err := uc.group.IsMember(ctx, tgID)
	if err != nil {
		metrics.IncGroupSyncFailure("revoke")
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("membership check failed")
		return AccessResult{Success: false, Err: err}
	}
	if !member {
		return AccessResult{Success: true}
	}

	if err := uc.group.BanMember(ctx, tgID, time.Now().Add(banWindow)); err != nil {
		metrics.IncGroupSyncFailure("revoke")
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("ban failed")
		return AccessResult{Success: false, Err: err}
	}

	job, err := model.NewGroupJob(model.GroupJobUnban, tgID, time.Now().Add(unbanDelay))
	if err == nil {
		err = uc.jobs.Save(ctx, job)
	}
	if err != nil {
		// The ban window still expires on its own; the job only speeds up
		// rejoin eligibility.
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("unban job scheduling failed")
	}

	uc.log.Info().Int64("telegram_id", tgID).Msg("group access revoked")
	return AccessResult{Success: true}
}

// IsMember reports current group membership.
func (uc *AccessUseCase) IsMember(ctx context.Context, tgID int64) (bool, error) {
	return uc.group.IsMember(ctx, tgID)
}

// CheckPermissions verifies the bot can actually remove members. Used
// operationally, not in the hot path.
func (uc *AccessUseCase) CheckPermissions(ctx context.Context) PermissionsResult {
	admin, err := uc.group.BotIsAdmin(ctx)
	if err != nil {
		return PermissionsResult{CanRemove: false, Err: err}
	}
	return PermissionsResult{CanRemove: admin}
}
