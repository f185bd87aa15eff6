package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dmcx/internal/admin"
	"dmcx/internal/assistant"
	"dmcx/internal/auth"
	"dmcx/internal/config"
	"dmcx/internal/economy"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
	"dmcx/internal/trading"
	"dmcx/internal/treasury"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

type Server struct {
	cfg       config.APIConfig
	log       *slog.Logger
	auth      *auth.Client
	ledger    *ledger.Service
	trading   *trading.Engine
	treasury  *treasury.Service
	economy   *economy.Service
	admin     *admin.Service
	oracle    *oracle.Oracle
	prices    *oracle.SnapshotStore
	assistant *assistant.Client
	mux       *chi.Mux
}

type Deps struct {
	Auth      *auth.Client
	Ledger    *ledger.Service
	Trading   *trading.Engine
	Treasury  *treasury.Service
	Economy   *economy.Service
	Admin     *admin.Service
	Oracle    *oracle.Oracle
	Prices    *oracle.SnapshotStore
	Assistant *assistant.Client
}

func New(cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		log:       logger,
		auth:      deps.Auth,
		ledger:    deps.Ledger,
		trading:   deps.Trading,
		treasury:  deps.Treasury,
		economy:   deps.Economy,
		admin:     deps.Admin,
		oracle:    deps.Oracle,
		prices:    deps.Prices,
		assistant: deps.Assistant,
		mux:       chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/prices", s.handlePrices)
			r.Get("/prices/{symbol}", s.handlePriceDetail)
			r.Get("/prices/{symbol}/history", s.handlePriceHistory)

			r.Post("/trades", s.handleTrade)
			r.Post("/treasury/deposit", s.handleDeposit)
			r.Post("/treasury/withdraw", s.handleWithdraw)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/balances", s.handleBalances)

			r.Get("/economy", s.handleEconomyState)
			r.Post("/economy/taps", s.handleTap)
			r.Post("/economy/upgrades", s.handleUpgrade)
			r.Post("/economy/check-in", s.handleCheckIn)
			r.Post("/economy/cipher", s.handleCipher)
			r.Get("/economy/tasks", s.handleTasks)
			r.Post("/economy/tasks/{task_id}", s.handleCompleteTask)
			r.Post("/economy/exchange", s.handleExchange)
			r.Get("/leaderboard", s.handleLeaderboard)

			r.Post("/kyc/request", s.handleKycRequest)
			r.Post("/assistant", s.handleAssistant)
			r.Post("/sync/replay", s.handleSyncReplay)

			r.Group(func(r chi.Router) {
				r.Use(s.adminMiddleware)
				r.Get("/admin/settings", s.handleAdminSettings)
				r.Patch("/admin/settings", s.handleAdminUpdateSettings)
				r.Post("/admin/kyc/{user_id}", s.handleAdminKyc)
				r.Post("/admin/price/{action}", s.handleAdminPrice)
				r.Post("/admin/airdrops", s.handleAdminAirdrop)
				r.Post("/admin/trades", s.handleAdminTrade)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !s.admin.ActorFor(user.UserID).Admin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password), in.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if err := s.ledger.EnsureAccount(r.Context(), session.User.ID, session.User.Email, in.Username); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.ledger.EnsureAccount(r.Context(), session.User.ID, session.User.Email, ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Refresh(r.Context(), strings.TrimSpace(in.RefreshToken))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	account, err := s.admin.Account(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	balances, err := s.ledger.Balances(r.Context(), user.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state, err := s.economy.State(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  account,
		"balances": balances,
		"economy":  state,
		"prices":   s.latestPrices(),
	})
}

func (s *Server) latestPrices() []oracle.Tick {
	symbols := s.oracle.Symbols()
	out := make([]oracle.Tick, 0, len(symbols))
	for _, sym := range symbols {
		tick, err := s.oracle.Latest(sym)
		if err != nil {
			continue
		}
		out = append(out, tick)
	}
	return out
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prices": s.latestPrices()})
}

func (s *Server) handlePriceDetail(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	tick, err := s.oracle.Latest(symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

// handlePriceHistory serves klines from the upstream feed, falling back to
// locally recorded snapshots when the feed is down.
func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1h"
	}
	limit := queryInt(r, "limit", 100)

	points, err := s.oracle.History(r.Context(), symbol, interval, limit)
	if err != nil && errors.Is(err, oracle.ErrFeedUnavailable) {
		points, err = s.prices.Recent(r.Context(), symbol, limit)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "points": points})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Side             string `json:"side"`
		Symbol           string `json:"symbol"`
		QuantityMicros   int64  `json:"quantity_micros"`
		LimitPriceMicros int64  `json:"limit_price_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.trading.ExecuteTrade(r.Context(), s.admin.ActorFor(user.UserID), trading.TradeRequest{
		Side:             trading.Side(in.Side),
		Symbol:           in.Symbol,
		QuantityMicros:   in.QuantityMicros,
		LimitPriceMicros: in.LimitPriceMicros,
		IdempotencyKey:   idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Symbol       string `json:"symbol"`
		AmountMicros int64  `json:"amount_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.treasury.Deposit(r.Context(), s.admin.ActorFor(user.UserID), in.Symbol, in.AmountMicros, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Symbol       string `json:"symbol"`
		AmountMicros int64  `json:"amount_micros"`
		Destination  string `json:"destination"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.treasury.Withdraw(r.Context(), s.admin.ActorFor(user.UserID), in.Symbol, in.AmountMicros, in.Destination, false, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.ledger.History(r.Context(), user.UserID, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.ledger.Balances(r.Context(), user.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": out})
}

func (s *Server) handleEconomyState(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.economy.State(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Count int64 `json:"count"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Count == 0 {
		in.Count = 1
	}
	out, err := s.economy.Tap(r.Context(), user.UserID, in.Count, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.economy.Upgrade(r.Context(), user.UserID, economy.UpgradeKind(in.Kind))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.economy.CheckIn(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCipher(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Symbols string `json:"symbols"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.economy.SubmitCipher(r.Context(), user.UserID, in.Symbols)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": economy.TaskCatalog()})
}

// handleCompleteTask names the task only; the reward comes from the
// server-side catalog so clients cannot mint arbitrary amounts.
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.economy.CompleteTask(r.Context(), user.UserID, chi.URLParam(r, "task_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.economy.Exchange(r.Context(), user.UserID, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.economy.Leaderboard(r.Context(), queryInt(r, "limit", 25))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleKycRequest(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.admin.RequestKyc(r.Context(), user.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if _, err := userFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !s.admin.Settings().AIEnabled {
		writeError(w, http.StatusServiceUnavailable, "assistant is disabled")
		return
	}
	var in struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": s.assistant.Ask(r.Context(), in.Question)})
}

// handleSyncReplay replays commands queued offline by the CLI. Each command
// carries its own idempotency key so a retried batch cannot double-apply.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Commands []struct {
			Op    string `json:"op"`
			Count int64  `json:"count"`
			Key   string `json:"key"`
		} `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]map[string]any, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		res := map[string]any{"op": cmd.Op, "ok": true}
		var err error
		switch cmd.Op {
		case "tap":
			if cmd.Count <= 0 {
				cmd.Count = 1
			}
			_, err = s.economy.Tap(r.Context(), user.UserID, cmd.Count, cmd.Key)
		case "check_in":
			_, err = s.economy.CheckIn(r.Context(), user.UserID)
		default:
			err = fmt.Errorf("unknown op %q", cmd.Op)
		}
		if err != nil {
			res["ok"] = false
			res["error"] = err.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleAdminSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.admin.Settings())
}

func (s *Server) handleAdminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var patch admin.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.admin.UpdateSettings(r.Context(), s.admin.ActorFor(user.UserID), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminKyc(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := chi.URLParam(r, "user_id")
	if err := s.admin.VerifyKyc(r.Context(), s.admin.ActorFor(user.UserID), target, admin.KycStatus(in.Status)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminPrice(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	multiplier, err := s.admin.ForcePrice(s.admin.ActorFor(user.UserID), admin.PriceAction(chi.URLParam(r, "action")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"multiplier": multiplier})
}

func (s *Server) handleAdminAirdrop(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		UserID       string `json:"user_id"`
		Symbol       string `json:"symbol"`
		AmountMicros int64  `json:"amount_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.treasury.Airdrop(r.Context(), s.admin.ActorFor(user.UserID), in.UserID, in.Symbol, in.AmountMicros, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAdminTrade executes a market-making trade with overdraft allowed, so
// admins can move the book without holding inventory.
func (s *Server) handleAdminTrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Side             string `json:"side"`
		Symbol           string `json:"symbol"`
		QuantityMicros   int64  `json:"quantity_micros"`
		LimitPriceMicros int64  `json:"limit_price_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.trading.ExecuteTrade(r.Context(), s.admin.ActorFor(user.UserID), trading.TradeRequest{
		Side:             trading.Side(in.Side),
		Symbol:           in.Symbol,
		QuantityMicros:   in.QuantityMicros,
		LimitPriceMicros: in.LimitPriceMicros,
		AllowOverdraft:   true,
		IdempotencyKey:   idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateIdempotency), errors.Is(err, ledger.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, trading.ErrInvalidQuantity),
		errors.Is(err, economy.ErrInsufficientApricots),
		errors.Is(err, economy.ErrInsufficientEnergy),
		errors.Is(err, economy.ErrNothingToExchange),
		errors.Is(err, economy.ErrUnknownUpgrade),
		errors.Is(err, admin.ErrInvalidKycStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrAlreadyClaimed), errors.Is(err, economy.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, oracle.ErrUnknownSymbol),
		errors.Is(err, economy.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, oracle.ErrFeedUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
