package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rps_wager/internal/logger"
)

func TestSweeperRunsPeriodically(t *testing.T) {
	var runs atomic.Int32
	s, err := NewSweeper(20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, logger.Discard())
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown())
}
