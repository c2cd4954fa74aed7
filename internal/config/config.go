// Package config provides configuration management for the clhorde daemon.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/clhorde/clhorde/internal/paths"
)

// Config holds all configuration for the daemon.
type Config struct {
	// DataDir is the root directory for sockets, the PID file, and persisted prompts.
	DataDir string

	// SocketPath is the Unix socket the IPC server listens on.
	SocketPath string

	// PIDPath is the PID file used for the single-instance lock.
	PIDPath string

	// PromptsDir holds one JSON file per prompt.
	PromptsDir string

	// HistoryPath is the append-only history file.
	HistoryPath string

	// MaxWorkers bounds the number of prompts dispatched concurrently.
	MaxWorkers int

	// RingBufferBytes bounds the PTY replay buffer kept per active worker.
	RingBufferBytes int

	// RetentionCap is the maximum number of completed/failed prompts kept on
	// disk before the oldest are pruned. 0 disables pruning.
	RetentionCap int

	// AutoCleanWorktrees removes a prompt's git worktree once the prompt's
	// worker reports Finished.
	AutoCleanWorktrees bool

	// ClaudeBin is the executable launched for interactive and oneshot workers.
	ClaudeBin string

	// GitHubToken enables the optional PR-on-completion notifier.
	GitHubToken string

	// GitHubRepo is the "owner/repo" a completed worktree-backed prompt's
	// branch is opened against. Required for the notifier to act even if
	// GitHubToken is set.
	GitHubRepo string

	// SlackBotToken and SlackChannel enable the optional completion notifier.
	SlackBotToken string
	SlackChannel  string

	// HealthAddr, if non-empty, starts a loopback-only debug HTTP listener.
	HealthAddr string
}

// Load creates a Config from environment variables with sensible defaults.
func Load() (*Config, error) {
	dataDir := envOr("CLHORDE_DATA_DIR", "")
	if dataDir == "" {
		d, err := paths.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dataDir = d
	}
	if err := os.MkdirAll(paths.PromptsDir(dataDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating prompts directory: %w", err)
	}

	cfg := &Config{
		DataDir:            dataDir,
		SocketPath:         envOr("CLHORDE_SOCKET", paths.SocketPath(dataDir)),
		PIDPath:            envOr("CLHORDE_PIDFILE", paths.PIDPath(dataDir)),
		PromptsDir:         paths.PromptsDir(dataDir),
		HistoryPath:        paths.HistoryPath(dataDir),
		MaxWorkers:         envOrInt("CLHORDE_MAX_WORKERS", 4),
		RingBufferBytes:    envOrInt("CLHORDE_RING_BUFFER_BYTES", 64*1024),
		RetentionCap:       envOrInt("CLHORDE_RETENTION_CAP", 500),
		AutoCleanWorktrees: envOrBool("CLHORDE_AUTO_CLEAN_WORKTREES", true),
		ClaudeBin:          envOr("CLHORDE_CLAUDE_BIN", "claude"),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:         os.Getenv("GITHUB_REPO"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:       os.Getenv("SLACK_CHANNEL"),
		HealthAddr:         os.Getenv("CLHORDE_HEALTH_ADDR"),
	}

	return cfg, nil
}

// GitHubEnabled returns true if the PR-on-completion notifier is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubToken != "" && c.GitHubRepo != ""
}

// SlackEnabled returns true if the Slack completion notifier is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
