package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/jgivc/ftpstage/internal/clock"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/fsutil"
	"github.com/spf13/afero"
)

const fullSpeed = 100

type Options struct {
	ChunkSize datasize.ByteSize
	// Speed cap in percent of line rate, 1..100.
	Speed          int
	MinPacingSleep time.Duration
}

type Result struct {
	Bytes    int64
	Duration time.Duration
}

type retriever struct {
	fs    afero.Fs
	clock clock.Clock
	opts  Options
	log   *slog.Logger
}

func NewRetriever(clk clock.Clock, opts Options, log *slog.Logger) *retriever {
	return NewRetrieverWithFS(afero.NewOsFs(), clk, opts, log)
}

func NewRetrieverWithFS(fs afero.Fs, clk clock.Clock, opts Options, log *slog.Logger) *retriever {
	if opts.Speed <= 0 || opts.Speed > fullSpeed {
		opts.Speed = fullSpeed
	}

	return &retriever{
		fs:    fs,
		clock: clk,
		opts:  opts,
		log:   log.With(slog.String("item", "Retriever")),
	}
}

/*
Fetch downloads path from the session into the same local path. Whatever
occupies the local path is removed first. With a speed cap below 100 the
transfer is paced per chunk: after each chunk the retriever sleeps
elapsed*(100/speed)-elapsed, measured from the last sleep. Waits not longer
than MinPacingSleep are skipped and accumulate into the next chunk.
*/
func (r *retriever) Fetch(ctx context.Context, sess entity.Session, path string) (Result, error) {
	start := r.clock.Now()

	if _, err := fsutil.ClearLocation(r.fs, path, ""); err != nil {
		return Result{}, localErr(path, err)
	}

	if err := fsutil.MkdirParent(r.fs, path); err != nil {
		return Result{}, localErr(path, err)
	}

	f, err := r.fs.Create(path)
	if err != nil {
		return Result{}, localErr(path, err)
	}
	defer f.Close()

	rc, err := sess.Retr(path)
	if err != nil {
		return Result{}, fmt.Errorf("cannot retrieve %s: %w", path, err)
	}

	written, err := r.copy(ctx, f, rc)
	if err != nil {
		if cErr := rc.Close(); cErr != nil {
			r.log.Debug("Cannot close data connection", slog.String("path", path), slog.Any("error", cErr))
		}

		return Result{Bytes: written}, fmt.Errorf("cannot retrieve %s: %w", path, err)
	}

	if err := rc.Close(); err != nil {
		return Result{Bytes: written}, fmt.Errorf("cannot finish transfer of %s: %w", path, err)
	}

	res := Result{Bytes: written, Duration: r.clock.Since(start)}
	r.log.Debug("File downloaded", slog.String("path", path), slog.String("size", datasize.ByteSize(written).HR()),
		slog.Float64("mbps", rate(res)))

	return res, nil
}

func (r *retriever) copy(ctx context.Context, w io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, int(r.opts.ChunkSize.Bytes()))
	mark := r.clock.Now()

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, localErr("", err)
			}
			written += int64(n)

			if err := r.pace(ctx, &mark); err != nil {
				return written, err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}

			return written, readErr
		}
	}
}

func (r *retriever) pace(ctx context.Context, mark *time.Time) error {
	if r.opts.Speed >= fullSpeed {
		return nil
	}

	elapsed := r.clock.Since(*mark)
	wait := time.Duration(float64(elapsed)*float64(fullSpeed)/float64(r.opts.Speed)) - elapsed
	if wait <= r.opts.MinPacingSleep {
		return nil
	}

	if err := r.clock.Sleep(ctx, wait); err != nil {
		return err
	}
	*mark = r.clock.Now()

	return nil
}

func localErr(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: %w", common.ErrLocalFileNotFound, err)
	}

	if path == "" {
		return fmt.Errorf("cannot write local file: %w", err)
	}

	return fmt.Errorf("cannot prepare %s: %w", path, err)
}

func rate(res Result) float64 {
	return entity.NewThroughputSample("", res.Bytes, res.Duration.Seconds()).MBps()
}
