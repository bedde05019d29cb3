package synclog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/spf13/afero"
)

const filePerm = 0o644

// Writer owns the sync log file of this process. It is safe for
// concurrent use.
type Writer struct {
	mu        sync.Mutex
	f         afero.File
	w         *bufio.Writer
	finalized Marker
	log       *slog.Logger
}

// NewWriter creates path, truncating an earlier log of the same task.
func NewWriter(fs afero.Fs, path string, log *slog.Logger) (*Writer, error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("cannot create sync log %s: %w", path, err)
	}

	return &Writer{
		f:   f,
		w:   bufio.NewWriter(f),
		log: log.With(slog.String("item", "SyncLogWriter"), slog.String("path", path)),
	}, nil
}

// Mark writes a non-terminal marker and flushes it.
func (w *Writer) Mark(m Marker) error {
	if m.terminal() {
		return fmt.Errorf("cannot mark %s: use Finalize", m)
	}

	return w.append(string(m), true)
}

// FileStarted is buffered until the next flushed line.
func (w *Writer) FileStarted(path string) error {
	return w.append(prefixStarted+path, false)
}

func (w *Writer) FileDone(path string) error {
	return w.append(prefixDone+path, true)
}

func (w *Writer) append(line string, flush bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return common.ErrSyncLogClosed
	}

	if _, err := w.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("cannot write sync log: %w", err)
	}

	if flush {
		if err := w.w.Flush(); err != nil {
			return fmt.Errorf("cannot flush sync log: %w", err)
		}
	}

	return nil
}

/*
Finalize writes the terminal marker m, flushes, syncs and closes the file.
Only the first call writes; later calls return ErrSyncLogAlreadyFinalized.
*/
func (w *Writer) Finalize(m Marker) error {
	if !m.terminal() {
		return fmt.Errorf("cannot finalize with %s", m)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized != "" {
		return fmt.Errorf("%w with %s", common.ErrSyncLogAlreadyFinalized, w.finalized)
	}

	if w.f == nil {
		return common.ErrSyncLogClosed
	}
	w.finalized = m

	_, err := w.w.WriteString(string(m) + "\n")
	if err == nil {
		err = w.w.Flush()
	}

	if err == nil {
		err = w.f.Sync()
	}

	if cErr := w.f.Close(); cErr != nil && err == nil {
		err = cErr
	}
	w.f = nil

	if err != nil {
		w.log.Error("Cannot finalize sync log", slog.String("marker", string(m)), slog.Any("error", err))

		return fmt.Errorf("cannot finalize sync log: %w", err)
	}

	w.log.Info("Sync log finalized", slog.String("marker", string(m)))

	return nil
}
