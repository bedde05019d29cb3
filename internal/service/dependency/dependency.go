package dependency

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"time"
)

type Tailer interface {
	WaitForFiles(ctx context.Context, path string, required []string, deadline time.Time) error
}

type dependencyWaiter struct {
	tailer  Tailer
	syncDir string
	timeout time.Duration
	log     *slog.Logger
}

func NewDependencyWaiter(tailer Tailer, syncDir string, timeout time.Duration, log *slog.Logger) *dependencyWaiter {
	return &dependencyWaiter{
		tailer:  tailer,
		syncDir: syncDir,
		timeout: timeout,
		log:     log.With(slog.String("item", "DependencyWaiter")),
	}
}

// Wait tails the sync log of every peer in waitFor, in peer id order. All
// peers share one deadline for their logs to appear: start plus the timeout.
func (d *dependencyWaiter) Wait(ctx context.Context, waitFor map[string][]string, start time.Time) error {
	peers := make([]string, 0, len(waitFor))
	for peer := range waitFor {
		peers = append(peers, peer)
	}
	slices.Sort(peers)

	deadline := start.Add(d.timeout)

	for _, peer := range peers {
		path := filepath.Join(d.syncDir, peer)
		d.log.Info("Wait for files of task", slog.String("task", peer), slog.Int("files", len(waitFor[peer])))

		if err := d.tailer.WaitForFiles(ctx, path, waitFor[peer], deadline); err != nil {
			d.log.Error("Dependency was not successful", slog.String("task", peer), slog.Any("error", err))

			return err
		}
	}

	d.log.Info("Waited for all tasks", slog.Int("tasks", len(peers)))

	return nil
}
