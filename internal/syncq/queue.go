// Package syncq is the CLI's offline command queue. Taps recorded while the
// API is unreachable are replayed through /v1/sync/replay on the next sync;
// each command keeps the idempotency key it was created with so replaying a
// half-synced queue is safe.
package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Command struct {
	Op    string `json:"op"`
	Count int64  `json:"count,omitempty"`
	Key   string `json:"key"`
}

func NewTap(count int64) Command {
	return Command{Op: "tap", Count: count, Key: uuid.NewString()}
}

func NewCheckIn() Command {
	return Command{Op: "check_in", Key: uuid.NewString()}
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".dmc")
	if err := os.MkdirAll(dir, 0o700); err != nil {
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
	commands = append(commands, cmd)
	return Save(commands)
}

func Clear() error {
	return Save([]Command{})
}
