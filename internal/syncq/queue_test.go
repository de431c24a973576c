package syncq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingpot/internal/cli"
)

func TestPushLoadSave(t *testing.T) {
	t.Setenv("KP_HOME", t.TempDir())

	q, err := Load()
	require.NoError(t, err)
	assert.Empty(t, q)

	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/winnings/withdraw", IdempotencyKey: "w1"}))
	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/winnings/withdraw", IdempotencyKey: "w1"}))
	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/throne/claim", Body: map[string]any{"amount": "110"}, IdempotencyKey: "c1"}))

	q, err = Load()
	require.NoError(t, err)
	require.Len(t, q, 2)
	assert.Equal(t, "110", q[1].Body["amount"])
}

func TestReplay(t *testing.T) {
	queue := []Command{
		{Path: "/ok", IdempotencyKey: "1"},
		{Path: "/offline", IdempotencyKey: "2"},
		{Path: "/rejected", IdempotencyKey: "3"},
	}
	send := func(_ context.Context, c Command) error {
		switch c.Path {
		case "/offline":
			return errors.New("dial tcp: connection refused")
		case "/rejected":
			return &cli.APIError{Status: 404, Kind: "no_winnings"}
		}
		return nil
	}

	remaining, results := Replay(context.Background(), queue, send)
	require.Len(t, remaining, 1)
	assert.Equal(t, "/offline", remaining[0].Path)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[2].Err)
}
