package clocktest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVirtualRecordsSleeps(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	v := NewVirtual(start)

	require.NoError(t, v.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, v.Sleep(context.Background(), 4*time.Second))
	v.Advance(time.Second)

	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, v.Sleeps())
	require.Equal(t, 6*time.Second, v.Slept())
	require.Equal(t, 7*time.Second, v.Since(start))
}

func TestVirtualCancelled(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, v.Sleep(ctx, time.Second), context.Canceled)
	require.Empty(t, v.Sleeps())
}
