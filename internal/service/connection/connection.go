package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jgivc/ftpstage/internal/clock"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/jgivc/ftpstage/internal/runstate"
)

type Dialer interface {
	Dial(ctx context.Context, ip string) (entity.Session, error)
}

type Resolver interface {
	Resolve(ctx context.Context, node string) (string, error)
}

type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type connectionManager struct {
	dialer   Dialer
	resolver Resolver
	clock    clock.Clock
	state    *runstate.RunState
	opts     Options
	log      *slog.Logger
}

func NewConnectionManager(dialer Dialer, resolver Resolver, clk clock.Clock, state *runstate.RunState,
	opts Options, log *slog.Logger) *connectionManager {
	return &connectionManager{
		dialer:   dialer,
		resolver: resolver,
		clock:    clk,
		state:    state,
		opts:     opts,
		log:      log.With(slog.String("item", "ConnectionManager")),
	}
}

func (m *connectionManager) newBackOff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(m.opts.BackoffBase),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(m.opts.BackoffMax),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(m.clock),
	)
}

/*
Acquire returns an authenticated session to node. Without knownIP the node is
resolved on every attempt. Each failed attempt is counted in the run state
and followed by a backoff sleep of base*2^(attempt-1). When MaxAttempts
attempts failed the error carries ExitConnectRetries.
*/
func (m *connectionManager) Acquire(ctx context.Context, node, knownIP string) (entity.Session, error) {
	log := m.log.With(slog.String("node", node))
	b := m.newBackOff()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess, err := m.connect(ctx, node, knownIP)
		if err == nil {
			log.Info("Connection established", slog.String("addr", sess.Addr()), slog.Int("attempt", attempt))

			return sess, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		m.state.IncErrors()

		wait := b.NextBackOff()
		if errors.Is(err, syscall.ECONNREFUSED) {
			log.Warn("Connection refused, try again", slog.Int("attempt", attempt),
				slog.Duration("wait", wait))
		} else {
			log.Error("Cannot connect", slog.Int("attempt", attempt),
				slog.Duration("wait", wait), slog.Any("error", err))
		}

		if err := m.clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}

		if attempt >= m.opts.MaxAttempts {
			log.Error("Give up connecting", slog.Int("attempts", attempt))

			return nil, common.NewExitError(common.ExitConnectRetries,
				fmt.Errorf("%w: node %s: %w", common.ErrConnectRetriesExhausted, node, err))
		}
	}
}

func (m *connectionManager) connect(ctx context.Context, node, knownIP string) (entity.Session, error) {
	ip := knownIP
	if ip == "" {
		var err error
		ip, err = m.resolver.Resolve(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve node: %w", err)
		}
	}

	m.log.Info("Try to connect", slog.String("node", node), slog.String("ip", ip))

	return m.dialer.Dial(ctx, ip)
}
