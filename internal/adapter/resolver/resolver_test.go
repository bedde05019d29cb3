package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/stretchr/testify/require"
)

func newLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestResolve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /daemon/exec-1/node-a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("10.1.2.3\n"))
	})
	mux.HandleFunc("GET /daemon/exec-1/node-bad", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(" \n"))
	})
	mux.HandleFunc("GET /daemon/exec-1/node-gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown node", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewResolver(srv.URL+"/", "exec-1", time.Second, newLog())

	testCases := []struct {
		name      string
		node      string
		expectIP  string
		expectErr error
	}{
		{name: "Known node", node: "node-a", expectIP: "10.1.2.3"},
		{name: "Empty body", node: "node-bad", expectErr: common.ErrResolverBadResponse},
		{name: "Unknown node", node: "node-gone", expectErr: common.ErrResolverBadResponse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := r.Resolve(context.Background(), tc.node)
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectIP, ip)
		})
	}
}

func TestResolveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewResolver(url, "exec-1", time.Second, newLog()).Resolve(context.Background(), "node-a")
	require.Error(t, err)
}

func TestNotifyFinished(t *testing.T) {
	testCases := []struct {
		name           string
		failures       int
		status         int
		expectErr      error
		expectAttempts int
	}{
		{name: "Accepted", status: http.StatusOK, expectAttempts: 1},
		{name: "Server error then accepted", failures: 2, status: http.StatusOK, expectAttempts: 3},
		{
			name:           "Server keeps failing",
			failures:       100,
			expectErr:      common.ErrResolverBadResponse,
			expectAttempts: notifyRetryMax + 1,
		},
		{
			name:           "Rejected",
			status:         http.StatusNotFound,
			expectErr:      common.ErrResolverBadResponse,
			expectAttempts: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				attempts int
				bodies   []string
			)

			mux := http.NewServeMux()
			mux.HandleFunc("POST /downloadtask/exec-1", func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)

				mu.Lock()
				attempts++
				n := attempts
				bodies = append(bodies, string(data))
				mu.Unlock()

				if n <= tc.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(tc.status)
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			r := NewResolver(srv.URL, "exec-1", time.Second, newLog())
			r.notify.RetryWaitMin = time.Millisecond
			r.notify.RetryWaitMax = 5 * time.Millisecond

			err := r.NotifyFinished(context.Background(), "abc123")
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
			} else {
				require.NoError(t, err)
			}

			mu.Lock()
			defer mu.Unlock()
			require.Equal(t, tc.expectAttempts, attempts)
			for _, b := range bodies {
				require.Equal(t, "abc123", b)
			}
		})
	}
}

func TestNotifyFinishedUnknownExecution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /downloadtask/exec-1", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	err := NewResolver(srv.URL, "exec-2", time.Second, newLog()).NotifyFinished(context.Background(), "abc123")
	require.ErrorIs(t, err, common.ErrResolverBadResponse)
}
