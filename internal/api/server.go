package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kingpot/internal/auth"
	"kingpot/internal/bank"
	"kingpot/internal/config"
	"kingpot/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	Identity string
	Email    string
	Token    string
}

// Accounts signs players up and logs them in. It is optional; without it
// the auth routes answer 501 and players authenticate with static tokens.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	verifier auth.Verifier
	accounts Accounts
	game     *game.Service
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, verifier auth.Verifier, accounts Accounts, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		verifier: verifier,
		accounts: accounts,
		game:     gameSvc,
		mux:      chi.NewRouter(),
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
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/game", s.handleGame)
			r.Get("/game/remaining", s.handleRemaining)
			r.Post("/throne/claim", s.handleClaim)
			r.Post("/winner/declare", s.handleDeclare)
			r.Get("/winnings", s.handleWinnings)
			r.Post("/winnings/withdraw", s.handleWithdraw)
			r.Post("/rounds", s.handleStartRound)
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
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.log.DebugContext(r.Context(), "token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err := s.game.EnsurePlayer(r.Context(), id.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			Identity: id.ID,
			Email:    id.Email,
			Token:    token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.Identity == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "sign-up is not configured")
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if err := s.game.EnsurePlayer(r.Context(), session.User.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		writeError(w, http.StatusNotImplemented, "login is not configured")
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.accounts.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.EnsurePlayer(r.Context(), session.User.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGame(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Game(s.cfg.ExposeRemaining))
}

func (s *Server) handleRemaining(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.ExposeRemaining {
		writeError(w, http.StatusNotFound, "remaining time is not published")
		return
	}
	writeJSON(w, http.StatusOK, s.game.Remaining())
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Amount       string `json:"amount"`
		AmountMicros int64  `json:"amount_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment := in.AmountMicros
	if strings.TrimSpace(in.Amount) != "" {
		payment, err = game.ParseCoins(in.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if payment <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be > 0")
		return
	}

	out, err := s.game.ClaimThrone(r.Context(), game.ClaimInput{
		Identity:       user.Identity,
		PaymentMicros:  payment,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeclare(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.DeclareWinner(r.Context(), user.Identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWinnings(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Winnings(r.Context(), user.Identity)
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
	out, err := s.game.WithdrawWinnings(r.Context(), user.Identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.StartNextRound(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	kind := errorKind(err)
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrTxConflict),
		errors.Is(err, bank.ErrTxConflict),
		errors.Is(err, game.ErrGameAlreadyEnded),
		errors.Is(err, game.ErrAlreadyKing),
		errors.Is(err, game.ErrGraceNotExpired),
		errors.Is(err, game.ErrNoThroneClaimed),
		errors.Is(err, game.ErrRoundInProgress),
		errors.Is(err, game.ErrReentrantCall):
		writeKindError(w, http.StatusConflict, kind, err.Error())
	case errors.Is(err, game.ErrInsufficientPayment),
		errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidIdentity),
		errors.Is(err, game.ErrInvalidConfig),
		errors.Is(err, game.ErrAmountOverflow):
		writeKindError(w, http.StatusBadRequest, kind, err.Error())
	case errors.Is(err, game.ErrNoWinnings), errors.Is(err, bank.ErrUnknownAccount):
		writeKindError(w, http.StatusNotFound, kind, err.Error())
	case errors.Is(err, game.ErrTransferFailed):
		writeKindError(w, http.StatusBadGateway, kind, err.Error())
	case errors.Is(err, game.ErrStaleSnapshot):
		writeKindError(w, http.StatusServiceUnavailable, kind, err.Error())
	default:
		writeKindError(w, http.StatusInternalServerError, kind, err.Error())
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, bank.ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, bank.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, bank.ErrTxConflict):
		return game.KindTxConflict
	}
	return game.ErrorKind(err)
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

func writeKindError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "kind": kind})
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
