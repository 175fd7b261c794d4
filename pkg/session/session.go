// Package session acquires the DRM card node. When a systemd-logind
// session is reachable the card fd is brokered through it (TakeControl
// plus TakeDevice), so unprivileged compositors get the device without
// root; otherwise the node is opened directly.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval paces the fallback poll when the card's directory cannot
// be watched yet.
const pollInterval = 100 * time.Millisecond

// WaitForCard blocks until the device node at path exists. The node's
// directory is watched for creation; if the directory itself is missing
// the wait degrades to polling. ctx bounds the wait.
func WaitForCard(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("session: watch for %s: %w", path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return pollForCard(ctx, path)
	}
	// The node may have appeared between the stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	name := filepath.Base(path)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return pollForCard(ctx, path)
			}
			if filepath.Base(ev.Name) == name && ev.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return pollForCard(ctx, path)
			}
			return fmt.Errorf("session: watch for %s: %w", path, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func pollForCard(ctx context.Context, path string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
