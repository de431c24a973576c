// Package auth turns bearer tokens into player identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidToken = errors.New("invalid access token")

// Identity is the authenticated caller. ID is what the ledger knows the
// player by.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StaticTokens maps fixed bearer tokens to identities. It backs local
// development, the keeper and tests.
type StaticTokens map[string]Identity

// ParseStaticTokens reads "token=id,token2=id2".
func ParseStaticTokens(raw string) (StaticTokens, error) {
	out := StaticTokens{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, id, ok := strings.Cut(pair, "=")
		tok, id = strings.TrimSpace(tok), strings.TrimSpace(id)
		if !ok || tok == "" || id == "" {
			return nil, fmt.Errorf("static token entry %q: want token=identity", pair)
		}
		out[tok] = Identity{ID: id}
	}
	return out, nil
}

func (s StaticTokens) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := s[strings.TrimSpace(token)]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.Join(errs...))
}
