package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/runstate"
)

const (
	KeyThroughput            = "scheduler_init_throughput"
	KeySymlinksRuntime       = "scheduler_init_symlinks_runtime"
	KeyDownloadRuntime       = "scheduler_init_download_runtime"
	KeyDependingTasksRuntime = "scheduler_init_depending_tasks_runtime"
	KeyRuntime               = "scheduler_init_runtime"
	KeyErrors                = "scheduler_init_errors"
)

type Sink interface {
	Save(ctx context.Context, record *entity.TraceRecord) error
}

type traceService struct {
	mu      sync.Mutex
	enabled bool
	flushed bool
	record  entity.TraceRecord
	index   map[string]int
	state   *runstate.RunState
	sinks   []Sink
	log     *slog.Logger
}

func NewTraceService(enabled bool, record entity.TraceRecord, state *runstate.RunState, log *slog.Logger,
	sinks ...Sink) *traceService {
	record.Fields = nil

	return &traceService{
		enabled: enabled,
		record:  record,
		index:   make(map[string]int),
		state:   state,
		sinks:   sinks,
		log:     log.With(slog.String("item", "TraceService")),
	}
}

// Set stores value under key. Setting a key again replaces the value in place.
func (s *traceService) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[key]; ok {
		s.record.Fields[i].Value = value

		return
	}

	s.index[key] = len(s.record.Fields)
	s.record.Fields = append(s.record.Fields, entity.TraceField{Key: key, Value: value})
}

// SetDuration stores d in milliseconds.
func (s *traceService) SetDuration(key string, d time.Duration) {
	s.Set(key, strconv.FormatInt(d.Milliseconds(), 10))
}

// SetThroughput stores the samples as a quoted "node:mbps,..." list.
func (s *traceService) SetThroughput(samples []entity.ThroughputSample) {
	parts := make([]string, 0, len(samples))
	for _, sample := range samples {
		parts = append(parts, sample.String())
	}

	s.Set(KeyThroughput, strconv.Quote(strings.Join(parts, ",")))
}

/*
Flush hands the record to every sink. Nothing is written when tracing is
disabled, nothing was recorded or the run counted errors. Only the first
call has effect.
*/
func (s *traceService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flushed {
		return nil
	}
	s.flushed = true

	if !s.enabled || len(s.record.Fields) == 0 {
		return nil
	}

	if n := s.state.ErrorCount(); n > 0 {
		s.log.Info("Skip trace, run had errors", slog.Int64("errors", n))

		return nil
	}

	rec := s.record
	rec.Fields = append(append([]entity.TraceField(nil), s.record.Fields...),
		entity.TraceField{Key: KeyErrors, Value: "0"})

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Save(ctx, &rec); err != nil {
			s.log.Error("Cannot save trace", slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cannot flush trace: %w", err)
	}

	return nil
}
