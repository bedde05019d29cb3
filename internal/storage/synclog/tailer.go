package synclog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/ftpstage/internal/clock"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/fsutil"
	"github.com/spf13/afero"
)

type TailOptions struct {
	ExistInterval time.Duration
	TailInterval  time.Duration
	// Bound of the tail phase, measured from the moment the log appeared.
	TailTimeout time.Duration
}

// Tailer follows the sync log of another process.
type Tailer struct {
	fs    afero.Fs
	clock clock.Clock
	opts  TailOptions
	log   *slog.Logger
}

func NewTailer(fs afero.Fs, clk clock.Clock, opts TailOptions, log *slog.Logger) *Tailer {
	return &Tailer{
		fs:    fs,
		clock: clk,
		opts:  opts,
		log:   log.With(slog.String("item", "SyncLogTailer")),
	}
}

/*
WaitForFiles returns nil as soon as an F- line for every required path has
been read from the log at path. The log has to appear before deadline.
##FAILURE## and a ##FINISHED## with files outstanding end the wait with
ErrDependencyFailed and ErrDependencyFinishedEarly.
*/
func (t *Tailer) WaitForFiles(ctx context.Context, path string, required []string, deadline time.Time) error {
	log := t.log.With(slog.String("path", path))

	if err := t.waitExists(ctx, path, deadline, log); err != nil {
		return err
	}

	pending := make(map[string]struct{}, len(required))
	for _, p := range required {
		pending[p] = struct{}{}
	}

	if len(pending) == 0 {
		return nil
	}

	f, err := t.fs.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open sync log %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	tailDeadline := t.clock.Now().Add(t.opts.TailTimeout)

	var partial strings.Builder
	for {
		chunk, err := r.ReadString('\n')
		partial.WriteString(chunk)

		if err == nil {
			line := strings.TrimSuffix(partial.String(), "\n")
			partial.Reset()

			if err := t.handle(line, path, pending, log); err != nil {
				return err
			}

			if len(pending) == 0 {
				log.Debug("All files found")

				return nil
			}

			continue
		}

		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("cannot read sync log %s: %w", path, err)
		}

		if t.clock.Now().After(tailDeadline) {
			log.Error("Tail timeout", slog.Int("missing", len(pending)))

			return common.NewExitError(common.ExitDependencyTimeout,
				fmt.Errorf("%w: %s: %d files missing", common.ErrDependencyTimeout, path, len(pending)))
		}

		if err := t.clock.Sleep(ctx, t.opts.TailInterval); err != nil {
			return err
		}
	}
}

func (t *Tailer) waitExists(ctx context.Context, path string, deadline time.Time, log *slog.Logger) error {
	for !fsutil.Exists(t.fs, path) {
		if t.clock.Now().After(deadline) {
			log.Error("Sync log did not appear")

			return common.NewExitError(common.ExitDependencyTimeout,
				fmt.Errorf("%w: %s does not exist", common.ErrDependencyTimeout, path))
		}

		log.Debug("Wait for file creation")

		if err := t.clock.Sleep(ctx, t.opts.ExistInterval); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tailer) handle(text, path string, pending map[string]struct{}, log *slog.Logger) error {
	line := ParseLine(text)

	switch line.Kind {
	case LineFailure:
		log.Error("Dependency failed")

		return common.NewExitError(common.ExitDependencyFailed, fmt.Errorf("%w: %s", common.ErrDependencyFailed, path))
	case LineFinished:
		log.Error("Dependency finished before all files were found", slog.Int("missing", len(pending)))

		return common.NewExitError(common.ExitDependencyFinished,
			fmt.Errorf("%w: %s: %d files missing", common.ErrDependencyFinishedEarly, path, len(pending)))
	case LineFileDone:
		if _, ok := pending[line.Path]; ok {
			delete(pending, line.Path)
			log.Debug("File found", slog.String("file", line.Path), slog.Int("missing", len(pending)))
		}
	}

	return nil
}
