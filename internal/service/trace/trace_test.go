package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/runstate"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	records []entity.TraceRecord
	err     error
}

func (m *memSink) Save(_ context.Context, rec *entity.TraceRecord) error {
	m.records = append(m.records, *rec)

	return m.err
}

func newLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestFlush(t *testing.T) {
	testCases := []struct {
		name    string
		enabled bool
		errors  int
		expect  int
	}{
		{name: "Enabled", enabled: true, expect: 1},
		{name: "Disabled", enabled: false},
		{name: "Run with errors", enabled: true, errors: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			state := runstate.New()
			for range tc.errors {
				state.IncErrors()
			}

			sink := &memSink{}
			s := NewTraceService(tc.enabled, entity.TraceRecord{Task: "abc"}, state, newLog(), sink)
			s.SetDuration(KeySymlinksRuntime, 1500*time.Microsecond)
			s.SetThroughput([]entity.ThroughputSample{
				entity.NewThroughputSample("node-a", 3<<20, 2),
				entity.NewThroughputSample("node-b", 1<<20, 4),
			})
			s.SetDuration(KeyRuntime, 2*time.Second)

			require.NoError(t, s.Flush(context.Background()))
			require.NoError(t, s.Flush(context.Background()))
			require.Len(t, sink.records, tc.expect)

			if tc.expect == 0 {
				return
			}

			require.Equal(t, "abc", sink.records[0].Task)
			require.Equal(t, []entity.TraceField{
				{Key: KeySymlinksRuntime, Value: "1"},
				{Key: KeyThroughput, Value: `"node-a:1.500,node-b:0.250"`},
				{Key: KeyRuntime, Value: "2000"},
				{Key: KeyErrors, Value: "0"},
			}, sink.records[0].Fields)
		})
	}
}

func TestSetReplaces(t *testing.T) {
	sink := &memSink{}
	s := NewTraceService(true, entity.TraceRecord{}, runstate.New(), newLog(), sink)
	s.Set("a", "1")
	s.Set("b", "2")
	s.Set("a", "3")

	require.NoError(t, s.Flush(context.Background()))
	require.Equal(t, []entity.TraceField{
		{Key: "a", Value: "3"},
		{Key: "b", Value: "2"},
		{Key: KeyErrors, Value: "0"},
	}, sink.records[0].Fields)
}

func TestFlushSinkError(t *testing.T) {
	failing := &memSink{err: errors.New("down")}
	ok := &memSink{}
	s := NewTraceService(true, entity.TraceRecord{}, runstate.New(), newLog(), failing, ok)
	s.Set("a", "1")

	require.Error(t, s.Flush(context.Background()))
	require.Len(t, ok.records, 1)
}
