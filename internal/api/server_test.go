package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingpot/internal/auth"
	"kingpot/internal/bank"
	"kingpot/internal/config"
	"kingpot/internal/game"
)

type testEnv struct {
	handler http.Handler
	now     time.Time
}

func newTestEnv(t *testing.T, expose bool) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := game.DefaultConfig()
	cfg.GracePeriod = 300 * time.Second

	svc, err := game.NewService(context.Background(), nil, bank.NewMemory(), cfg, nil,
		game.WithClock(game.ClockFunc(func() time.Time { return env.now })))
	require.NoError(t, err)

	tokens := auth.StaticTokens{
		"tok-a":      {ID: "A"},
		"tok-b":      {ID: "B"},
		"tok-c":      {ID: "C"},
		"tok-keeper": {ID: "keeper"},
	}
	apiCfg := config.APIConfig{ExposeRemaining: expose, Game: cfg}
	env.handler = New(apiCfg, nil, tokens, nil, svc).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	code, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)
	code, _ := env.do(t, http.MethodGet, "/v1/game", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.do(t, http.MethodGet, "/v1/game", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestScenarioOverHTTP(t *testing.T) {
	env := newTestEnv(t, false)

	code, body := env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "100"})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 95_000_000, body["new_pot_micros"])
	assert.EqualValues(t, 110_000_000, body["new_fee_micros"])

	env.now = env.now.Add(50 * time.Second)
	code, body = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-b", map[string]any{"amount_micros": 110_000_000})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 199_500_000, body["new_pot_micros"])

	code, body = env.do(t, http.MethodPost, "/v1/winner/declare", "tok-keeper", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, game.KindGraceNotExpired, body["kind"])

	env.now = env.now.Add(301 * time.Second)
	code, body = env.do(t, http.MethodPost, "/v1/winner/declare", "tok-keeper", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "B", body["winner"])
	assert.EqualValues(t, 199_500_000, body["amount_micros"])

	code, body = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-c", map[string]any{"amount": "500"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, game.KindGameAlreadyEnded, body["kind"])

	code, body = env.do(t, http.MethodGet, "/v1/winnings", "tok-b", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 199_500_000, body["pending_micros"])

	code, body = env.do(t, http.MethodPost, "/v1/winnings/withdraw", "tok-b", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 199_500_000, body["amount_micros"])
	assert.EqualValues(t, 890_000_000+199_500_000, body["wallet_micros"])

	code, body = env.do(t, http.MethodPost, "/v1/winnings/withdraw", "tok-b", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, game.KindNoWinnings, body["kind"])

	code, body = env.do(t, http.MethodPost, "/v1/rounds", "tok-keeper", nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 2, body["round"])
}

func TestClaimValidation(t *testing.T) {
	env := newTestEnv(t, false)

	code, body := env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "99.999999"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, game.KindInsufficientPayment, body["kind"])

	code, _ = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"bogus": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "5000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "insufficient_funds", body["kind"])

	code, _ = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "100"})
	require.Equal(t, http.StatusOK, code)
	code, body = env.do(t, http.MethodPost, "/v1/throne/claim", "tok-a", map[string]any{"amount": "200"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, game.KindAlreadyKing, body["kind"])
}

func TestIdempotencyKeyHeader(t *testing.T) {
	env := newTestEnv(t, false)
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/throne/claim", bytes.NewBufferString(`{"amount":"100"}`))
		req.Header.Set("Authorization", "Bearer tok-a")
		req.Header.Set("Idempotency-Key", "claim-1")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusConflict, send())
}

func TestRemainingIsGated(t *testing.T) {
	hidden := newTestEnv(t, false)
	code, _ := hidden.do(t, http.MethodGet, "/v1/game/remaining", "tok-a", nil)
	assert.Equal(t, http.StatusNotFound, code)
	_, body := hidden.do(t, http.MethodGet, "/v1/game", "tok-a", nil)
	assert.Equal(t, false, body["remaining_exposed"])

	shown := newTestEnv(t, true)
	code, body = shown.do(t, http.MethodGet, "/v1/game/remaining", "tok-a", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 300, body["remaining_secs"])
}

func TestAuthRoutesWithoutAccounts(t *testing.T) {
	env := newTestEnv(t, false)
	code, _ := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestDomainErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: fee is 1, paid 0", game.ErrInsufficientPayment), http.StatusBadRequest, game.KindInsufficientPayment},
		{game.ErrGraceNotExpired, http.StatusConflict, game.KindGraceNotExpired},
		{fmt.Errorf("%w: expected seq 3", game.ErrStaleSnapshot), http.StatusServiceUnavailable, game.KindStaleSnapshot},
		{fmt.Errorf("%w: %w", game.ErrTxConflict, bank.ErrTxConflict), http.StatusConflict, game.KindTxConflict},
		{fmt.Errorf("collect payment: %w", bank.ErrInsufficientFunds), http.StatusBadRequest, "insufficient_funds"},
		{game.ErrNoWinnings, http.StatusNotFound, game.KindNoWinnings},
		{errors.New("boom"), http.StatusInternalServerError, game.KindUnknown},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.kind, body["kind"], tc.err.Error())
	}
}
