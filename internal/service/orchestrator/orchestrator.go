package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/ftpstage/internal/clock"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/runstate"
	"github.com/jgivc/ftpstage/internal/service/trace"
	"github.com/jgivc/ftpstage/internal/storage/synclog"
	"golang.org/x/sync/errgroup"
)

const traceFlushTimeout = 5 * time.Second

type SyncLog interface {
	Mark(m synclog.Marker) error
	Finalize(m synclog.Marker) error
}

type SymlinkStage interface {
	Apply(ctx context.Context, specs []entity.SymlinkSpec) error
}

type Worker interface {
	Run(ctx context.Context, job *entity.NodeJob) (entity.ThroughputSample, error)
}

type Notifier interface {
	NotifyFinished(ctx context.Context, task string) error
}

type DependencyWaiter interface {
	Wait(ctx context.Context, waitFor map[string][]string, start time.Time) error
}

type Tracer interface {
	SetDuration(key string, d time.Duration)
	SetThroughput(samples []entity.ThroughputSample)
	Flush(ctx context.Context) error
}

type Options struct {
	MinWorkers       int
	PollInterval     time.Duration
	NotifyCompletion bool
}

type orchestrator struct {
	syncLog  SyncLog
	symlinks SymlinkStage
	worker   Worker
	notifier Notifier
	deps     DependencyWaiter
	tracer   Tracer
	clock    clock.Clock
	state    *runstate.RunState
	opts     Options
	log      *slog.Logger
}

func NewOrchestrator(syncLog SyncLog, symlinks SymlinkStage, worker Worker, notifier Notifier,
	deps DependencyWaiter, tracer Tracer, clk clock.Clock, state *runstate.RunState, opts Options,
	log *slog.Logger) *orchestrator {
	return &orchestrator{
		syncLog:  syncLog,
		symlinks: symlinks,
		worker:   worker,
		notifier: notifier,
		deps:     deps,
		tracer:   tracer,
		clock:    clk,
		state:    state,
		opts:     opts,
		log:      log.With(slog.String("item", "Orchestrator")),
	}
}

/*
Run stages task: symlinks, downloads of every node, then the wait for the
files of other tasks. The sync log ends with ##FINISHED## when all downloads
completed and with ##FAILURE## on any abort before that. Once ##FINISHED## is
written the run can no longer be aborted. The returned error carries the exit
code of the run.
*/
func (o *orchestrator) Run(ctx context.Context, task *entity.Task, start time.Time) error {
	defer o.flushTrace()

	log := o.log.With(slog.String("task", task.ID))
	log.Info("Start to setup the environment", slog.Int("nodes", len(task.Nodes)),
		slog.Int("symlinks", len(task.Symlinks)), slog.Int("depending_tasks", len(task.WaitFor)))

	if err := o.stage(ctx, task, log); err != nil {
		return o.abort(err, log)
	}

	err := o.state.Finalize(func() error {
		return o.syncLog.Finalize(synclog.MarkerFinished)
	})
	if err != nil {
		return o.abort(err, log)
	}
	log.Info("Finished download")

	if o.opts.NotifyCompletion {
		if err := o.notifier.NotifyFinished(ctx, task.ID); err != nil {
			log.Error("Cannot notify completion", slog.Any("error", err))

			return common.NewExitError(common.ExitNotifyFailed, fmt.Errorf("%w: %w", common.ErrNotifyFailed, err))
		}
	}

	depStart := o.clock.Now()
	if err := o.deps.Wait(ctx, task.WaitFor, start); err != nil {
		return err
	}
	o.tracer.SetDuration(trace.KeyDependingTasksRuntime, o.clock.Since(depStart))
	o.tracer.SetDuration(trace.KeyRuntime, o.clock.Since(start))

	log.Info("Environment ready", slog.Duration("runtime", o.clock.Since(start)))

	return nil
}

// stage runs everything that happens while the sync log is open.
func (o *orchestrator) stage(ctx context.Context, task *entity.Task, log *slog.Logger) error {
	if err := o.syncLog.Mark(synclog.MarkerStarted); err != nil {
		return err
	}

	symStart := o.clock.Now()
	if err := o.symlinks.Apply(ctx, task.Symlinks); err != nil {
		return err
	}
	o.tracer.SetDuration(trace.KeySymlinksRuntime, o.clock.Since(symStart))

	if err := o.syncLog.Mark(synclog.MarkerSymlinks); err != nil {
		return err
	}
	o.state.SetPhase(runstate.PhaseSymlinksApplied)

	dlStart := o.clock.Now()
	o.state.SetPhase(runstate.PhaseDownloading)

	samples, err := o.download(ctx, task.Nodes, log)
	o.tracer.SetThroughput(samples)
	o.tracer.SetDuration(trace.KeyDownloadRuntime, o.clock.Since(dlStart))

	if err != nil {
		return err
	}

	return o.state.Err()
}

/*
download runs one worker per node and polls for their completion. A worker
error aborts the run state and the remaining workers are cancelled without
waiting for them.
*/
func (o *orchestrator) download(ctx context.Context, nodes []*entity.NodeJob,
	log *slog.Logger) ([]entity.ThroughputSample, error) {
	wctx, cancel := context.WithCancel(ctx)

	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(max(o.opts.MinWorkers, len(nodes), 1))

	results := make(chan entity.ThroughputSample, len(nodes))
	for _, job := range nodes {
		g.Go(func() error {
			sample, err := o.worker.Run(gctx, job)
			if err != nil {
				o.state.MarkAborted(err)

				return err
			}
			results <- sample

			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		cancel()
	}()

	samples := make([]entity.ThroughputSample, 0, len(nodes))
	collect := func() {
		for {
			select {
			case s := <-results:
				samples = append(samples, s)
			default:
				return
			}
		}
	}

	last := -1
	for {
		collect()

		if outstanding := len(nodes) - len(samples); outstanding != last {
			log.Info("Wait for workers to finish", slog.Int("outstanding", outstanding))
			last = outstanding
		}

		select {
		case err := <-done:
			cancel()
			collect()

			return samples, err
		default:
		}

		if o.state.IsAborted() {
			cancel()

			return samples, o.state.Err()
		}

		if err := o.clock.Sleep(ctx, o.opts.PollInterval); err != nil {
			cancel()

			return samples, err
		}
	}
}

// abort finalizes the sync log with ##FAILURE## and returns the error the
// run ends with. The first abort reason wins.
func (o *orchestrator) abort(err error, log *slog.Logger) error {
	o.state.MarkAborted(err)
	reason := o.state.Err()

	if fErr := o.syncLog.Finalize(synclog.MarkerFailure); fErr != nil {
		log.Error("Cannot write failure marker", slog.Any("error", fErr))
	}

	log.Error("Run aborted", slog.Int("exit_code", common.ExitCode(reason)), slog.Any("error", reason))

	return reason
}

func (o *orchestrator) flushTrace() {
	ctx, cancel := context.WithTimeout(context.Background(), traceFlushTimeout)
	defer cancel()

	if err := o.tracer.Flush(ctx); err != nil {
		o.log.Error("Cannot write trace", slog.Any("error", err))
	}
}
