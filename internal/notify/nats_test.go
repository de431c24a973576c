package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingpot/internal/game"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "kingpot.events.throne.claimed", Subject("", game.EventThroneClaimed))
	assert.Equal(t, "arena.game.ended", Subject(" arena. ", game.EventGameEnded))
}

func TestEncodeEvent(t *testing.T) {
	payload, err := encodeEvent(game.GameEnded{Winner: "B", Amount: 199_500_000, Round: 1, Seq: 7})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, game.EventGameEnded, env.Kind)
	assert.Equal(t, uint64(7), env.Seq)

	var ended game.GameEnded
	require.NoError(t, json.Unmarshal(env.Event, &ended))
	assert.Equal(t, "B", ended.Winner)
	assert.Equal(t, int64(199_500_000), ended.Amount)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var n *NATS
	n.Emit(context.Background(), game.ThroneClaimed{})
	n.Close()
}
