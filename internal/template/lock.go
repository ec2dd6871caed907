package template

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	DefaultLockTimeout  = 10 * time.Second
	DefaultLockRetry    = 100 * time.Millisecond
	DefaultLockMaxRetry = 100
)

type LockConfig struct {
	Timeout  time.Duration
	Retry    time.Duration
	MaxRetry int
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:  DefaultLockTimeout,
		Retry:    DefaultLockRetry,
		MaxRetry: DefaultLockMaxRetry,
	}
}

// treeLock serialises writers across processes sharing a template root.
type treeLock struct {
	lock       *flock.Flock
	path       string
	acquiredAt time.Time
}

func acquireLock(ctx context.Context, root string, cfg LockConfig) (*treeLock, error) {
	if cfg.MaxRetry <= 0 {
		cfg = DefaultLockConfig()
	}

	path := filepath.Join(root, LockFile)
	tl := &treeLock{lock: flock.New(path), path: path}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	for i := 0; i < cfg.MaxRetry; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("template lock acquisition cancelled: %w", ctx.Err())
		default:
		}

		locked, err := tl.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to attempt template lock: %w", err)
		}
		if locked {
			tl.acquiredAt = time.Now()
			return tl, nil
		}

		if i < cfg.MaxRetry-1 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.Retry):
			}
		}
	}

	return nil, fmt.Errorf("template root %s is locked by another process (timeout after %v)", root, cfg.Timeout)
}

func (tl *treeLock) Unlock() {
	if err := tl.lock.Unlock(); err != nil {
		slog.Error("Failed to release template lock", "path", tl.path, "error", err)
		return
	}
	slog.Debug("Template lock released", "path", tl.path, "held_ms", time.Since(tl.acquiredAt).Milliseconds())
}
