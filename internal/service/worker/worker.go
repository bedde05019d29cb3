package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/runstate"
	"github.com/jgivc/ftpstage/internal/service/retriever"
)

type ConnectionManager interface {
	Acquire(ctx context.Context, node, knownIP string) (entity.Session, error)
}

type Retriever interface {
	Fetch(ctx context.Context, sess entity.Session, path string) (retriever.Result, error)
}

// ProgressLog receives the per-file progress lines.
type ProgressLog interface {
	FileStarted(path string) error
	FileDone(path string) error
}

type Options struct {
	ExitIfFileNotFound bool
	// Consecutive recoverable failures of one file before the worker gives up.
	MaxFileAttempts int
}

type worker struct {
	conn     ConnectionManager
	retr     Retriever
	progress ProgressLog
	state    *runstate.RunState
	opts     Options
	log      *slog.Logger
}

func NewWorker(conn ConnectionManager, retr Retriever, progress ProgressLog, state *runstate.RunState,
	opts Options, log *slog.Logger) *worker {
	return &worker{
		conn:     conn,
		retr:     retr,
		progress: progress,
		state:    state,
		opts:     opts,
		log:      log.With(slog.String("item", "Worker")),
	}
}

/*
Run drains the queue of job. A file is popped only after it was fully
written and its F- line appended. Recoverable failures drop the session and
retry the same file with a new one. The known IP of the job is only used for
the first connection, reconnects go through the resolver.
*/
func (w *worker) Run(ctx context.Context, job *entity.NodeJob) (entity.ThroughputSample, error) {
	log := w.log.With(slog.String("node", job.Node))

	var (
		sess     entity.Session
		bytes    int64
		elapsed  time.Duration
		failures int
	)

	knownIP := job.KnownIP
	total := len(job.Files)

	sample := func() entity.ThroughputSample {
		return entity.NewThroughputSample(job.Node, bytes, elapsed.Seconds())
	}

	for len(job.Files) > 0 {
		if err := w.aborted(ctx); err != nil {
			w.drop(sess, log)
			log.Info("Worker stopped", slog.Int("left", len(job.Files)))

			return sample(), err
		}

		if sess == nil {
			var err error
			sess, err = w.conn.Acquire(ctx, job.Node, knownIP)
			if err != nil {
				return sample(), err
			}
			knownIP = ""
		}

		path := job.Files[0]
		log.Info("Download", slog.Int("index", total-len(job.Files)+1), slog.Int("total", total),
			slog.String("path", path))

		if err := w.progress.FileStarted(path); err != nil {
			w.drop(sess, log)

			return sample(), fmt.Errorf("cannot append progress: %w", err)
		}

		res, err := w.retr.Fetch(ctx, sess, path)
		if err != nil {
			if ctxErr := w.aborted(ctx); ctxErr != nil {
				w.drop(sess, log)

				return sample(), ctxErr
			}

			w.state.IncErrors()

			retry, fatal := w.classify(err, path, log)
			if fatal != nil {
				w.drop(sess, log)

				return sample(), fatal
			}

			if retry {
				w.drop(sess, log)
				sess = nil

				failures++
				if w.opts.MaxFileAttempts > 0 && failures >= w.opts.MaxFileAttempts {
					log.Error("Give up downloading file", slog.String("path", path), slog.Int("attempts", failures))

					return sample(), common.NewExitError(common.ExitConnectRetries,
						fmt.Errorf("%w: %s: %w", common.ErrConnectRetriesExhausted, path, err))
				}

				continue
			}

			res = retriever.Result{}
		}

		failures = 0
		bytes += res.Bytes
		elapsed += res.Duration

		if err := w.progress.FileDone(path); err != nil {
			w.drop(sess, log)

			return sample(), fmt.Errorf("cannot append progress: %w", err)
		}
		job.Files = job.Files[1:]
	}

	w.close(sess, log)

	s := sample()
	log.Info("Node done", slog.Int("files", total), slog.Float64("mb", s.MB), slog.Float64("mbps", s.MBps()))

	return s, nil
}

// classify reports whether the file has to be retried or returns a fatal
// error. A missing file under a non-fatal policy is neither: it counts as done.
func (w *worker) classify(err error, path string, log *slog.Logger) (bool, error) {
	switch {
	case errors.Is(err, common.ErrRemoteFileNotFound):
		log.Warn("File not found on node", slog.String("path", path), slog.Any("error", err))
		if w.opts.ExitIfFileNotFound {
			return false, common.NewExitError(common.ExitRemoteFileNotFound, err)
		}

		return false, nil
	case errors.Is(err, common.ErrLocalFileNotFound):
		log.Warn("Local file not found", slog.String("path", path), slog.Any("error", err))
		if w.opts.ExitIfFileNotFound {
			return false, common.NewExitError(common.ExitLocalFileNotFound, err)
		}

		return false, nil
	case errors.Is(err, common.ErrConnectionLost):
		log.Warn("It seems the connection was lost, try again", slog.String("path", path))
	default:
		log.Error("Cannot download file", slog.String("path", path), slog.Any("error", err))
	}

	return true, nil
}

func (w *worker) aborted(ctx context.Context) error {
	if w.state.IsAborted() {
		return w.state.Err()
	}

	return ctx.Err()
}

// drop abandons a session after a failure. Quit errors are expected here.
func (w *worker) drop(sess entity.Session, log *slog.Logger) {
	if sess == nil {
		return
	}

	if err := sess.Quit(); err != nil {
		log.Debug("Cannot quit dropped session", slog.Any("error", err))
	}
}

func (w *worker) close(sess entity.Session, log *slog.Logger) {
	if sess == nil {
		return
	}

	if err := sess.Quit(); err != nil {
		w.state.IncErrors()
		log.Error("Cannot close session", slog.Any("error", err))
	}
}
