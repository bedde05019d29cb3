package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jgivc/ftpstage/internal/common"
)

const (
	maxBodySize = 1 << 10

	notifyRetryMax     = 3
	notifyRetryWaitMin = 500 * time.Millisecond
	notifyRetryWaitMax = 5 * time.Second
)

/*
resolverClient talks to the scheduler's daemon endpoints. Resolve is a single
attempt since the connection manager retries it with its own backoff. The
completion notification is sent once per run and retried here.
*/
type resolverClient struct {
	base      string
	execution string
	client    *http.Client
	notify    *retryablehttp.Client
	log       *slog.Logger
}

func NewResolver(dns, execution string, timeout time.Duration, log *slog.Logger) *resolverClient {
	log = log.With(slog.String("item", "Resolver"))

	notify := retryablehttp.NewClient()
	notify.HTTPClient.Timeout = timeout
	notify.RetryMax = notifyRetryMax
	notify.RetryWaitMin = notifyRetryWaitMin
	notify.RetryWaitMax = notifyRetryWaitMax
	notify.ErrorHandler = retryablehttp.PassthroughErrorHandler
	notify.Logger = log

	return &resolverClient{
		base:      strings.TrimSuffix(dns, "/"),
		execution: execution,
		client:    &http.Client{Timeout: timeout},
		notify:    notify,
		log:       log,
	}
}

// Resolve returns the IP of node: GET <dns>/daemon/<execution>/<node>.
func (r *resolverClient) Resolve(ctx context.Context, node string) (string, error) {
	u := r.base + "/daemon/" + url.PathEscape(r.execution) + "/" + url.PathEscape(node)
	r.log.Info("Request ip for node", slog.String("node", node))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("cannot create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("cannot read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", common.ErrResolverBadResponse, resp.StatusCode, string(body))
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("%w: empty body", common.ErrResolverBadResponse)
	}

	return ip, nil
}

// NotifyFinished tells the scheduler that the downloads of task are done:
// POST <dns>/downloadtask/<execution> with the task hash as body. Server
// errors and failed connections are retried.
func (r *resolverClient) NotifyFinished(ctx context.Context, task string) error {
	u := r.base + "/downloadtask/" + url.PathEscape(r.execution)
	r.log.Info("Notify download finished", slog.String("url", u), slog.String("task", task))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u, []byte(task))
	if err != nil {
		return fmt.Errorf("cannot create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := r.notify.Do(req)
	if err != nil {
		return fmt.Errorf("cannot send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", common.ErrResolverBadResponse, resp.StatusCode)
	}

	return nil
}
