// Package syncq keeps writes the CLI could not deliver while the API was
// unreachable, so `kp sync` can replay them later.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"kingpot/internal/cli"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func queuePath() (string, error) {
	dir, err := cli.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if cmd.IdempotencyKey != "" && c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Result is the outcome of replaying one queued command.
type Result struct {
	Command Command
	Err     error
}

// Replay sends every command in order. Commands that fail with a transport
// error stay queued; commands the API answered, successfully or not, are
// dropped. The returned slice is the new queue.
func Replay(ctx context.Context, queue []Command, send func(context.Context, Command) error) ([]Command, []Result) {
	remaining := make([]Command, 0, len(queue))
	results := make([]Result, 0, len(queue))
	for _, q := range queue {
		err := send(ctx, q)
		results = append(results, Result{Command: q, Err: err})
		if err != nil && !isAPIError(err) {
			remaining = append(remaining, q)
		}
	}
	return remaining, results
}

func isAPIError(err error) bool {
	var apiErr *cli.APIError
	return errors.As(err, &apiErr)
}
