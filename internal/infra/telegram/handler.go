package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/redis"
	"telegram-subscription-bot/internal/usecase"
)

const (
	initiateLimit  = 3
	initiateWindow = time.Minute
)

// Handler drives the inbound bot surface: long polling, command dispatch,
// and the short conversational purchase flow. Outbound sends go through the
// shared Adapter.
type Handler struct {
	tg       *Adapter
	cfg      *config.BotConfig
	users    *usecase.UserUseCase
	subs     *usecase.SubscriptionUseCase
	payments *usecase.PaymentUseCase
	requests *usecase.RequestUseCase
	access   *usecase.AccessUseCase
	states   repository.StateRepository
	limiter  *redis.RateLimiter
	pricing  usecase.TierPricing
	log      zerolog.Logger

	workers       int
	cancelPolling context.CancelFunc
}

func NewHandler(
	tg *Adapter,
	cfg *config.BotConfig,
	users *usecase.UserUseCase,
	subs *usecase.SubscriptionUseCase,
	payments *usecase.PaymentUseCase,
	requests *usecase.RequestUseCase,
	access *usecase.AccessUseCase,
	states repository.StateRepository,
	limiter *redis.RateLimiter,
	pricing usecase.TierPricing,
	log *zerolog.Logger,
) *Handler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	return &Handler{
		tg:       tg,
		cfg:      cfg,
		users:    users,
		subs:     subs,
		payments: payments,
		requests: requests,
		access:   access,
		states:   states,
		limiter:  limiter,
		pricing:  pricing,
		log:      log.With().Str("component", "bot_handler").Logger(),
		workers:  workers,
	}
}

// StartPolling blocks until ctx is canceled, fanning updates out to a fixed
// pool of workers.
func (h *Handler) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.tg.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	h.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < h.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := h.handleUpdate(ctx, update); err != nil {
						h.log.Error().Err(err).Msg("handle update")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	h.tg.api.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (h *Handler) StopPolling() {
	if h.cancelPolling != nil {
		h.cancelPolling()
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return h.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if msg.IsCommand() {
			return h.handleCommand(ctx, msg)
		}
		return h.handleText(ctx, msg)
	default:
		return nil
	}
}

func (h *Handler) isAdmin(tgID int64) bool { return tgID == h.cfg.AdminID }

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	tgID := msg.From.ID
	switch msg.Command() {
	case "start":
		return h.cmdStart(ctx, tgID, msg.From.UserName)
	case "help":
		return h.cmdHelp(ctx, tgID)
	case "status":
		return h.cmdStatus(ctx, tgID)
	case "renew":
		return h.cmdRenew(ctx, tgID)
	case "access":
		return h.cmdAccess(ctx, tgID)
	case "cancel":
		if err := h.states.ClearState(ctx, tgID); err != nil {
			h.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("clear state")
		}
		return h.tg.SendMessage(ctx, tgID, "Cancelled. Use /start to begin again.")
	case "pending":
		if !h.isAdmin(tgID) {
			return h.tg.SendMessage(ctx, tgID, "This command is only available to administrators.")
		}
		return h.cmdPending(ctx, tgID)
	default:
		return h.tg.SendMessage(ctx, tgID, "Unknown command. Send /help for the list of commands.")
	}
}

func (h *Handler) cmdStart(ctx context.Context, tgID int64, username string) error {
	if _, err := h.users.RegisterOrFetch(ctx, tgID, username, ""); err != nil {
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("register account")
		return h.tg.SendMessage(ctx, tgID, "Something went wrong. Please try again.")
	}

	var b strings.Builder
	b.WriteString("Welcome! This bot sells access to our private group.\n\n")
	summary, err := h.subs.Status(ctx, tgID)
	if err == nil && summary.State == usecase.SubscriptionStateActive {
		fmt.Fprintf(&b, "Your %s subscription is active until %s.\n\n",
			tierLabel(summary.Subscription.Tier), formatTime(summary.Subscription.EndDate))
	} else if err == nil && summary.State == usecase.SubscriptionStateExpired {
		fmt.Fprintf(&b, "Your %s subscription expired on %s.\n\n",
			tierLabel(summary.Subscription.Tier), formatTime(summary.Subscription.EndDate))
	}
	b.WriteString("Pick a package to pay with M-Pesa, or request manual approval:")

	return h.tg.SendButtons(ctx, tgID, b.String(), h.purchaseKeyboard())
}

func (h *Handler) cmdHelp(ctx context.Context, tgID int64) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/start - buy a subscription\n")
	b.WriteString("/status - check your subscription\n")
	b.WriteString("/renew - extend your subscription\n")
	b.WriteString("/access - resend the group invite link\n")
	b.WriteString("/cancel - abandon the current purchase\n")
	if h.isAdmin(tgID) {
		b.WriteString("\nAdmin:\n/pending - review manual approval requests\n")
	}
	return h.tg.SendMessage(ctx, tgID, b.String())
}

func (h *Handler) cmdStatus(ctx context.Context, tgID int64) error {
	summary, err := h.subs.Status(ctx, tgID)
	if err != nil {
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("status lookup")
		return h.tg.SendMessage(ctx, tgID, "Could not look up your subscription. Please try again.")
	}
	switch summary.State {
	case usecase.SubscriptionStateNone:
		return h.tg.SendMessage(ctx, tgID, "You have no subscription yet. Use /start to purchase one.")
	case usecase.SubscriptionStateExpired:
		sub := summary.Subscription
		return h.tg.SendMessage(ctx, tgID, fmt.Sprintf(
			"Your %s subscription expired on %s.\nUse /renew to extend it.",
			tierLabel(sub.Tier), formatTime(sub.EndDate)))
	default:
		sub := summary.Subscription
		return h.tg.SendMessage(ctx, tgID, fmt.Sprintf(
			"Subscription: %s\nAmount: KES %.0f\nStarted: %s\nExpires: %s",
			tierLabel(sub.Tier), sub.Amount, formatTime(sub.StartDate), formatTime(sub.EndDate)))
	}
}

func (h *Handler) cmdRenew(ctx context.Context, tgID int64) error {
	var b strings.Builder
	summary, err := h.subs.Status(ctx, tgID)
	if err == nil && summary.Subscription != nil {
		if summary.State == usecase.SubscriptionStateActive {
			fmt.Fprintf(&b, "Your %s subscription runs until %s. Renewing extends it from that date.\n\n",
				tierLabel(summary.Subscription.Tier), formatTime(summary.Subscription.EndDate))
		} else {
			fmt.Fprintf(&b, "Your %s subscription expired on %s.\n\n",
				tierLabel(summary.Subscription.Tier), formatTime(summary.Subscription.EndDate))
		}
	}
	b.WriteString("Choose a package:")
	return h.tg.SendButtons(ctx, tgID, b.String(), h.purchaseKeyboard())
}

func (h *Handler) cmdAccess(ctx context.Context, tgID int64) error {
	expired, err := h.subs.IsExpired(ctx, tgID)
	if err != nil {
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("access entitlement check")
		return h.tg.SendMessage(ctx, tgID, "Could not check your subscription. Please try again.")
	}
	if expired {
		return h.tg.SendMessage(ctx, tgID, "You need an active subscription to access the group. Use /start to purchase one.")
	}
	res := h.access.Grant(ctx, tgID)
	if !res.Success {
		return h.tg.SendMessage(ctx, tgID, "Could not generate a group invite right now. Please contact support.")
	}
	return nil
}

func (h *Handler) cmdPending(ctx context.Context, adminID int64) error {
	reqs, err := h.requests.ListPending(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list pending requests")
		return h.tg.SendMessage(ctx, adminID, "Could not fetch pending requests.")
	}
	if len(reqs) == 0 {
		return h.tg.SendMessage(ctx, adminID, "No pending requests.")
	}
	for _, req := range reqs {
		text := fmt.Sprintf("Request %s\nUser: @%s (%d)\nPackage: %s\nRequested: %s",
			req.ID, req.Username, req.TelegramID, tierLabel(req.Tier), formatTime(req.RequestedAt))
		rows := [][]adapter.InlineButton{{
			{Text: "Approve", Data: "approve_" + req.ID},
			{Text: "Reject", Data: "reject_" + req.ID},
		}}
		if err := h.tg.SendButtons(ctx, adminID, text, rows); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleCallbackQuery(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}
	tgID := cq.From.ID
	data := cq.Data

	switch {
	case strings.HasPrefix(data, "buy_"):
		h.tg.answerCallback(cq.ID, "")
		return h.startPurchase(ctx, tgID, model.PackageTier(strings.TrimPrefix(data, "buy_")))
	case data == "request_menu":
		h.tg.answerCallback(cq.ID, "")
		rows := make([][]adapter.InlineButton, 0, len(tierOrder))
		for _, tier := range tierOrder {
			rows = append(rows, []adapter.InlineButton{{
				Text: fmt.Sprintf("%s - KES %.0f", tierLabel(tier), h.pricing[tier]),
				Data: "request_" + string(tier),
			}})
		}
		return h.tg.SendButtons(ctx, tgID, "Pick the package to request. An admin will review and approve it.", rows)
	case strings.HasPrefix(data, "request_"):
		h.tg.answerCallback(cq.ID, "")
		return h.submitRequest(ctx, tgID, cq.From.UserName, model.PackageTier(strings.TrimPrefix(data, "request_")))
	case strings.HasPrefix(data, "approve_"), strings.HasPrefix(data, "reject_"):
		if !h.isAdmin(tgID) {
			h.tg.answerCallback(cq.ID, "Unauthorized")
			return nil
		}
		return h.handleModeration(ctx, cq)
	default:
		h.tg.answerCallback(cq.ID, "")
		return nil
	}
}

func (h *Handler) startPurchase(ctx context.Context, tgID int64, tier model.PackageTier) error {
	if !tier.Valid() {
		return h.tg.SendMessage(ctx, tgID, "Unknown package. Use /start to pick one.")
	}
	st := &repository.ConversationState{Step: repository.StepAwaitingPhone, Tier: tier}
	if err := h.states.SetState(ctx, tgID, st); err != nil {
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("set conversation state")
		return h.tg.SendMessage(ctx, tgID, "Something went wrong. Please try again.")
	}
	return h.tg.SendMessage(ctx, tgID, fmt.Sprintf(
		"%s package, KES %.0f.\n\nSend the M-Pesa phone number to bill (07XXXXXXXX or 2547XXXXXXXX), or /cancel.",
		tierLabel(tier), h.pricing[tier]))
}

func (h *Handler) submitRequest(ctx context.Context, tgID int64, username string, tier model.PackageTier) error {
	if !tier.Valid() {
		return h.tg.SendMessage(ctx, tgID, "Unknown package. Use /start to pick one.")
	}
	req, err := h.requests.Submit(ctx, tgID, username, "", tier)
	if err != nil {
		if errors.Is(err, domain.ErrPendingRequestExists) {
			return h.tg.SendMessage(ctx, tgID, "You already have a pending request. Please wait for an admin to review it.")
		}
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("submit access request")
		return h.tg.SendMessage(ctx, tgID, "Could not submit your request. Please try again.")
	}
	return h.tg.SendMessage(ctx, tgID, fmt.Sprintf(
		"Request submitted (id %s). You'll be notified once an admin processes it.", req.ID))
}

func (h *Handler) handleModeration(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	adminID := cq.From.ID
	var (
		req *model.AccessRequest
		err error
	)
	switch {
	case strings.HasPrefix(cq.Data, "approve_"):
		req, err = h.requests.Approve(ctx, strings.TrimPrefix(cq.Data, "approve_"), adminID)
	default:
		req, err = h.requests.Reject(ctx, strings.TrimPrefix(cq.Data, "reject_"), adminID, "rejected by admin")
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyProcessed):
			h.tg.answerCallback(cq.ID, "Already processed")
		case errors.Is(err, domain.ErrNotFound):
			h.tg.answerCallback(cq.ID, "Request not found")
		default:
			h.log.Error().Err(err).Str("data", cq.Data).Msg("process moderation action")
			h.tg.answerCallback(cq.ID, "Error processing request")
		}
		return nil
	}
	h.tg.answerCallback(cq.ID, "Done")
	return h.tg.SendMessage(ctx, adminID, fmt.Sprintf(
		"Request %s for @%s is now %s.", req.ID, req.Username, req.Status))
}

// handleText is the conversational purchase flow: after a package is picked
// the only expected input is a phone number.
func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	tgID := msg.From.ID
	st, err := h.states.GetState(ctx, tgID)
	if err != nil {
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("get conversation state")
		return h.tg.SendMessage(ctx, tgID, "Something went wrong. Please try again.")
	}
	if st == nil {
		return h.tg.SendMessage(ctx, tgID, "Use /start to begin or /status to check your subscription.")
	}

	switch st.Step {
	case repository.StepAwaitingPhone:
		return h.handlePhoneInput(ctx, tgID, msg.From.UserName, strings.TrimSpace(msg.Text), st)
	case repository.StepAwaitingPush:
		return h.tg.SendMessage(ctx, tgID, "Your payment is being processed. You'll get a confirmation here once it lands, or /cancel to start over.")
	default:
		return h.tg.SendMessage(ctx, tgID, "Use /start to begin.")
	}
}

func (h *Handler) handlePhoneInput(ctx context.Context, tgID int64, username, phone string, st *repository.ConversationState) error {
	if !model.ValidPhoneNumber(phone) {
		return h.tg.SendMessage(ctx, tgID, "That doesn't look like a valid Kenyan phone number. Try 07XXXXXXXX or 2547XXXXXXXX, or /cancel.")
	}

	allowed, err := h.limiter.Allow(ctx, redis.UserCommandKey(tgID, "initiate"), initiateLimit, initiateWindow)
	if err != nil {
		h.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("rate limiter unavailable")
	} else if !allowed {
		return h.tg.SendMessage(ctx, tgID, "Too many payment attempts. Please wait a minute and try again.")
	}

	txn, userMsg, err := h.payments.Initiate(ctx, tgID, username, phone, st.Tier)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return h.tg.SendMessage(ctx, tgID, userMsg)
		}
		h.log.Error().Err(err).Int64("telegram_id", tgID).Msg("initiate payment")
		return h.tg.SendMessage(ctx, tgID, userMsg)
	}
	if txn == nil {
		// Provider rejected the push. Let the user retry from scratch.
		if clearErr := h.states.ClearState(ctx, tgID); clearErr != nil {
			h.log.Warn().Err(clearErr).Int64("telegram_id", tgID).Msg("clear state")
		}
		return h.tg.SendMessage(ctx, tgID, userMsg)
	}

	st.Step = repository.StepAwaitingPush
	st.PhoneNumber = model.NormalizePhoneNumber(phone)
	st.CheckoutRequestID = txn.CheckoutRequestID
	if err := h.states.SetState(ctx, tgID, st); err != nil {
		h.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("set conversation state")
	}
	return h.tg.SendMessage(ctx, tgID, userMsg)
}

var tierOrder = []model.PackageTier{model.TierShort, model.TierMedium, model.TierLong}

func (h *Handler) purchaseKeyboard() [][]adapter.InlineButton {
	rows := make([][]adapter.InlineButton, 0, len(tierOrder)+1)
	for _, tier := range tierOrder {
		rows = append(rows, []adapter.InlineButton{{
			Text: fmt.Sprintf("%s - KES %.0f", tierLabel(tier), h.pricing[tier]),
			Data: "buy_" + string(tier),
		}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: "Manual approval", Data: "request_menu"}})
	return rows
}

func tierLabel(tier model.PackageTier) string {
	switch tier {
	case model.TierShort:
		return "Daily"
	case model.TierMedium:
		return "Weekly"
	case model.TierLong:
		return "Monthly"
	default:
		return string(tier)
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("Mon, 02 Jan 2006 15:04")
}
