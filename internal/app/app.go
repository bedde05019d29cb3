package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jgivc/ftpstage/internal/adapter/ftpadapter"
	"github.com/jgivc/ftpstage/internal/adapter/jobadapter"
	"github.com/jgivc/ftpstage/internal/adapter/resolver"
	"github.com/jgivc/ftpstage/internal/clock"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/config"
	"github.com/jgivc/ftpstage/internal/entity"
	rtrace "github.com/jgivc/ftpstage/internal/repository/trace"
	"github.com/jgivc/ftpstage/internal/runstate"
	"github.com/jgivc/ftpstage/internal/service/connection"
	"github.com/jgivc/ftpstage/internal/service/dependency"
	"github.com/jgivc/ftpstage/internal/service/orchestrator"
	"github.com/jgivc/ftpstage/internal/service/retriever"
	"github.com/jgivc/ftpstage/internal/service/symlink"
	strace "github.com/jgivc/ftpstage/internal/service/trace"
	"github.com/jgivc/ftpstage/internal/service/worker"
	"github.com/jgivc/ftpstage/internal/storage/synclog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	redisPingTimeout  = 2 * time.Second
	traceFlushTimeout = 5 * time.Second
)

type Orchestrator interface {
	Run(ctx context.Context, task *entity.Task, start time.Time) error
}

type Args struct {
	ConfigPath   string
	LogLevel     string
	TraceEnabled bool
	Name         string
	JobPath      string
}

type App struct {
	args    Args
	cfg     *config.Config
	fs      afero.Fs
	clock   clock.Clock
	state   *runstate.RunState
	closers []io.Closer
	exit    func(code int)
	log     *slog.Logger
}

func New(args Args) *App {
	return &App{
		args:  args,
		fs:    afero.NewOsFs(),
		clock: clock.New(),
		state: runstate.New(),
		exit:  os.Exit,
	}
}

// Run stages the job and returns the process exit code.
func (a *App) Run() int {
	start := a.clock.Now()

	cfg, err := config.Load(a.args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %s\n", err)

		return common.ExitUsage
	}

	if a.args.LogLevel != "" {
		cfg.LogLevel = a.args.LogLevel
	}
	a.cfg = cfg

	logFile := &lumberjack.Logger{
		Filename: cfg.LogFileName(a.args.Name),
		MaxSize:  cfg.LogMaxSizeMB,
	}
	defer logFile.Close()

	log, err := newLogger(cfg.LogLevel, io.MultiWriter(os.Stderr, logFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create logger: %s\n", err)

		return common.ExitUsage
	}

	runID := uuid.NewString()
	a.log = log.With(slog.String("run_id", runID))

	return a.run(start, runID)
}

func (a *App) run(start time.Time, runID string) int {
	log := a.log
	defer a.close()

	task, err := jobadapter.NewJobAdapter(log).Load(a.args.JobPath)
	if err != nil {
		log.Error("Cannot load job description", slog.String("path", a.args.JobPath), slog.Any("error", err))

		return common.ExitCode(err)
	}
	log = log.With(slog.String("task", task.ID))

	syncLog, err := synclog.NewWriter(a.fs, filepath.Join(task.SyncDir, task.ID), log)
	if err != nil {
		log.Error("Cannot open sync log", slog.Any("error", err))

		return common.ExitUsage
	}

	tracer := strace.NewTraceService(a.args.TraceEnabled || a.cfg.Trace.Enabled, entity.TraceRecord{
		Task:      task.ID,
		Execution: task.Execution,
		RunID:     runID,
	}, a.state, log, a.traceSinks(log)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go a.handleSignals(sigCh, cancel, tracer)

	orch := a.newOrchestrator(task, syncLog, tracer)

	err = orch.Run(ctx, task, start)
	code := common.ExitCode(err)
	if err != nil {
		log.Error("Staging failed", slog.Int("exit_code", code), slog.Any("error", err))

		return code
	}

	log.Info("Staging done", slog.Duration("runtime", a.clock.Since(start)))

	return code
}

func (a *App) newOrchestrator(task *entity.Task, syncLog *synclog.Writer, tracer orchestrator.Tracer) Orchestrator {
	cfg := a.cfg
	log := a.log

	ipResolver := resolver.NewResolver(task.DNS, task.Execution, cfg.Resolver.Timeout, log)
	dialer := ftpadapter.NewDialer(cfg.FTP.User, cfg.FTP.Password, cfg.FTP.Port, cfg.FTP.ConnectTimeout, log)

	conn := connection.NewConnectionManager(dialer, ipResolver, a.clock, a.state, connection.Options{
		MaxAttempts: cfg.FTP.MaxAttempts,
		BackoffBase: cfg.FTP.BackoffBase,
		BackoffMax:  cfg.FTP.BackoffMax,
	}, log)

	retr := retriever.NewRetriever(a.clock, retriever.Options{
		ChunkSize:      cfg.Transfer.ChunkSize,
		Speed:          task.Speed,
		MinPacingSleep: cfg.Transfer.MinPacingSleep,
	}, log)

	w := worker.NewWorker(conn, retr, syncLog, a.state, worker.Options{
		ExitIfFileNotFound: cfg.Transfer.ExitIfFileNotFound,
		MaxFileAttempts:    cfg.FTP.MaxAttempts,
	}, log)

	tailer := synclog.NewTailer(a.fs, a.clock, synclog.TailOptions{
		ExistInterval: cfg.Sync.ExistInterval,
		TailInterval:  cfg.Sync.TailInterval,
		TailTimeout:   cfg.Sync.TailTimeout,
	}, log)
	deps := dependency.NewDependencyWaiter(tailer, task.SyncDir, cfg.Sync.DependencyTimeout, log)

	return orchestrator.NewOrchestrator(syncLog, symlink.NewSymlinkStage(a.state, log), w, ipResolver,
		deps, tracer, a.clock, a.state, orchestrator.Options{
			MinWorkers:       cfg.Transfer.MinWorkers,
			PollInterval:     cfg.Sync.CompletionPollInterval,
			NotifyCompletion: cfg.NotifyCompletion,
		}, log)
}

// traceSinks always includes the trace file; redis is added when configured
// and reachable.
func (a *App) traceSinks(log *slog.Logger) []strace.Sink {
	sinks := []strace.Sink{rtrace.NewFileRepository(a.cfg.Trace.File, log)}

	if a.cfg.Trace.RedisURL == "" {
		return sinks
	}

	opt, err := redis.ParseURL(a.cfg.Trace.RedisURL)
	if err != nil {
		log.Warn("Cannot parse trace redis url", slog.Any("error", err))

		return sinks
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Warn("Trace redis is not reachable", slog.String("addr", opt.Addr), slog.Any("error", err))
		rdb.Close()

		return sinks
	}

	a.closers = append(a.closers, rdb)

	return append(sinks, rtrace.NewRedisRepository(rdb, log))
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("Cannot close", slog.Any("error", err))
		}
	}
}

/*
handleSignals aborts the run on SIGINT or SIGTERM. The orchestrator then
writes ##FAILURE## and the run ends with ExitSignaled. Once the sync log is
finalized a signal ends the process right away with ExitSignaledAfterFinish.
*/
func (a *App) handleSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, tracer orchestrator.Tracer) {
	for sig := range sigCh {
		a.log.Info("Killed", slog.String("signal", sig.String()), slog.String("phase", a.state.Phase().String()))

		if !a.state.Interrupt(common.NewExitError(common.ExitSignaled, fmt.Errorf("%w: %s", common.ErrSignaled, sig))) {
			ctx, c := context.WithTimeout(context.Background(), traceFlushTimeout)
			if err := tracer.Flush(ctx); err != nil {
				a.log.Error("Cannot write trace", slog.Any("error", err))
			}
			c()

			a.exit(common.ExitSignaledAfterFinish)

			return
		}
		cancel()
	}
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownLogLevel, level)
	}

	return slog.New(slog.NewTextHandler(w, lo)), nil
}
