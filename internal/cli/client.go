package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kingpot/internal/auth"
	"kingpot/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx answer from the API. Kind carries the ledger's
// error kind when the server reported one.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Game(ctx context.Context, accessToken string) (game.GameView, error) {
	var out game.GameView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/game", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Remaining(ctx context.Context, accessToken string) (game.RemainingView, error) {
	var out game.RemainingView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/game/remaining", accessToken, nil, &out, "")
	return out, err
}

// Claim pays amount (decimal coins, e.g. "104.5") for the throne.
func (c *Client) Claim(ctx context.Context, accessToken, amount, idem string) (game.ClaimResult, error) {
	var out game.ClaimResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/throne/claim", accessToken, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Declare(ctx context.Context, accessToken string) (game.SettlementResult, error) {
	var out game.SettlementResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/winner/declare", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Winnings(ctx context.Context, accessToken string) (game.WinningsView, error) {
	var out game.WinningsView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/winnings", accessToken, nil, &out, "")
	return out, err
}

// TokenSession checks an operator-issued token against the API and returns
// a session naming the identity it belongs to.
func (c *Client) TokenSession(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, fmt.Errorf("token is empty")
	}
	w, err := c.Winnings(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, Identity: w.Identity, Static: true}, nil
}

func (c *Client) Withdraw(ctx context.Context, accessToken string) (game.WithdrawalResult, error) {
	var out game.WithdrawalResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/winnings/withdraw", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) StartRound(ctx context.Context, accessToken string) (game.RoundView, error) {
	var out game.RoundView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rounds", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, accessToken, in, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return apiErr
}
