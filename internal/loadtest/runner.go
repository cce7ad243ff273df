package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pepai/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes one load run: it checks health, records the history size,
// sends the saves, waits for them to settle and verifies the result.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 250 * time.Millisecond
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting history load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("saves", cfg.Saves),
		logger.Int("workers", cfg.Workers),
		logger.Float64("repeat", cfg.Repeat),
		logger.Duration("timeout", cfg.Timeout),
		logger.Duration("settle", cfg.Settle))

	c := newClient(cfg)
	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := c.historyCount(ctx)
	if err != nil {
		return stats, err
	}
	stats.Before = before

	saves, err := generateSaves(ctx, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("save generation failed: %w", err)
	}
	if cfg.Output != "" {
		if err := writeSaves(cfg.Output, saves); err != nil {
			log.Warn(ctx, "failed to write saves", logger.String("file", cfg.Output), logger.Error(err))
		}
	}

	// Every accepted request is one new history row; a repeated key is
	// only accepted again after its first attempt was refused.
	submitSaves(ctx, cfg, saves, stats)
	stats.Expected = before + int(stats.Accepted)

	stats.After, err = settle(ctx, c, cfg, stats.Expected)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.SavesPerSec = float64(stats.Submitted) / secs
	}
	if err != nil {
		return stats, err
	}

	if err := verify(stats); err != nil {
		return stats, err
	}
	displayFinalStats(ctx, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	// /healthz answers with the Prometheus exposition.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// settle polls history until it reaches want or cfg.Settle runs out, and
// returns the last count seen.
func settle(ctx context.Context, c *client, cfg *Config, want int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Settle)
	defer cancel()

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	got := -1
	for {
		n, err := c.historyCount(ctx)
		switch {
		case err == nil:
			got = n
			if got >= want {
				return got, nil
			}
		case ctx.Err() == nil:
			return got, err
		}
		select {
		case <-ctx.Done():
			logger.Get().Warn(ctx, "history did not settle", logger.Int("want", want), logger.Int("got", got))
			return got, nil
		case <-ticker.C:
		}
	}
}

func writeSaves(path string, saves []Save) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(saves, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Any("submitted", stats.Submitted),
		logger.Any("accepted", stats.Accepted),
		logger.Any("duplicate", stats.Duplicate),
		logger.Any("throttled", stats.Throttled),
		logger.Any("failed", stats.Failed),
		logger.Int("historyBefore", stats.Before),
		logger.Int("historyAfter", stats.After),
		logger.Duration("duration", stats.Duration),
		logger.Float64("savesPerSecond", stats.SavesPerSec))
}
