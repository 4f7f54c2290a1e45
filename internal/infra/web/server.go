package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/usecase"
)

// Server exposes the payment callback webhook, health and metrics endpoints,
// and the JWT-guarded admin API.
type Server struct {
	cfg       *config.WebConfig
	callbacks *usecase.CallbackUseCase
	requests  *usecase.RequestUseCase
	subs      *usecase.SubscriptionUseCase
	access    *usecase.AccessUseCase
	users     *usecase.UserUseCase
	auth      *AuthManager
	log       zerolog.Logger
	srv       *http.Server
}

func NewServer(
	cfg *config.WebConfig,
	callbacks *usecase.CallbackUseCase,
	requests *usecase.RequestUseCase,
	subs *usecase.SubscriptionUseCase,
	access *usecase.AccessUseCase,
	users *usecase.UserUseCase,
	log *zerolog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		callbacks: callbacks,
		requests:  requests,
		subs:      subs,
		access:    access,
		users:     users,
		auth:      NewAuthManager(cfg.JWTSecret),
		log:       log.With().Str("component", "web").Logger(),
	}
}

// Router builds the full route tree. Split out from Start so tests can drive
// it with httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/payment/callback", s.handlePaymentCallback)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/requests/pending", s.handlePendingRequests)
		r.Get("/stats", s.handleStats)
		r.Post("/accounts/{telegramID}/expire", s.handleForceExpire)
	})
	return r
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callbackResponse is what the payment provider sees. Accepted-but-flagged
// cases still return 200: the provider retries on non-2xx and a retry can
// never change the outcome.
type callbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var payload usecase.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, callbackResponse{Success: false, Message: "malformed payload"})
		return
	}

	res, err := s.callbacks.HandleCallback(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			writeJSON(w, http.StatusBadRequest, callbackResponse{Success: false, Message: res.Reason})
			return
		}
		s.log.Error().Err(err).Msg("callback processing failed")
		writeJSON(w, http.StatusInternalServerError, callbackResponse{Success: false, Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, callbackResponse{Success: res.Accepted, Message: res.Reason})
}

type pendingRequestDTO struct {
	ID          string `json:"id"`
	TelegramID  int64  `json:"telegram_id"`
	Username    string `json:"username"`
	Tier        string `json:"tier"`
	RequestedAt string `json:"requested_at"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.requests.ListPending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list pending requests failed")
		http.Error(w, "Failed to list requests", http.StatusInternalServerError)
		return
	}
	out := make([]pendingRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, pendingRequestDTO{
			ID:          req.ID,
			TelegramID:  req.TelegramID,
			Username:    req.Username,
			Tier:        string(req.Tier),
			RequestedAt: req.RequestedAt.UTC().Format(time.RFC3339),
			PhoneNumber: req.PhoneNumber,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

type statsResponse struct {
	Accounts        int            `json:"accounts"`
	Subscriptions   map[string]int `json:"subscriptions"`
	PendingRequests int            `json:"pending_requests"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.users.CountAccounts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("count accounts failed")
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}
	counts, err := s.subs.CountByStatus(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("count subscriptions failed")
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}
	pending, err := s.requests.ListPending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list pending requests failed")
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Accounts:        accounts,
		Subscriptions:   byStatus,
		PendingRequests: len(pending),
	})
}

func (s *Server) handleForceExpire(w http.ResponseWriter, r *http.Request) {
	tgID, err := strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
	if err != nil || tgID <= 0 {
		http.Error(w, "Invalid telegram id", http.StatusBadRequest)
		return
	}

	sub, err := s.subs.ForceExpire(r.Context(), tgID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Int64("telegram_id", tgID).Msg("force expire failed")
		http.Error(w, "Failed to expire subscription", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"expired": false, "message": "no active subscription"})
		return
	}

	// Membership sync is best-effort here, same as everywhere else.
	if res := s.access.Revoke(r.Context(), tgID); !res.Success {
		s.log.Warn().Err(res.Err).Int64("telegram_id", tgID).Msg("group revoke after force expire failed")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired":         true,
		"subscription_id": sub.ID,
		"tier":            string(sub.Tier),
		"end_date":        sub.EndDate.UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
