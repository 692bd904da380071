package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/medlink-labs/medlink/internal/ports"
)

// WaitForFolder blocks until dir is readable, retrying indefinitely with an
// escalating delay. Cloud-synced folders can mount minutes after boot, so
// not-exist and permission errors are retried; any other error propagates
// immediately.
func WaitForFolder(ctx context.Context, dir string, logger ports.Logger) error {
	for attempt := 1; ; attempt++ {
		err := probeFolder(dir)
		if err == nil {
			if attempt > 1 {
				logger.Info("watch folder available",
					ports.String("dir", dir),
					ports.Int("attempts", attempt))
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
			return err
		}

		delay := accessDelay(attempt)
		logger.Warn("watch folder unavailable, waiting",
			ports.String("dir", dir),
			ports.Int("attempt", attempt),
			ports.Duration("retry_in", delay),
			ports.Err(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func probeFolder(dir string) error {
	_, err := os.ReadDir(dir)
	return err
}

// accessDelay escalates: short while the folder is probably still mounting,
// then medium, then a slow steady-state probe.
func accessDelay(attempt int) time.Duration {
	switch {
	case attempt <= 10:
		return 2 * time.Second
	case attempt <= 30:
		return 15 * time.Second
	default:
		return 60 * time.Second
	}
}
