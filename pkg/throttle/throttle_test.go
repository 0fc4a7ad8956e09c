package throttle

import (
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := New(15 * time.Second)
	th.now = func() time.Time { return now }

	ok, n := th.allow()
	require.True(t, ok)
	require.Equal(t, 0, n)

	now = now.Add(time.Second)
	ok, _ = th.allow()
	require.False(t, ok)
	ok, _ = th.allow()
	require.False(t, ok)

	now = now.Add(15 * time.Second)
	ok, n = th.allow()
	require.True(t, ok)
	require.Equal(t, 2, n)

	require.Equal(t, "", suffix(0))
	require.Equal(t, " (2 similar messages suppressed)", suffix(2))

	// smoke test against a real logger
	log := logs.NewTestingLog(t)
	now = now.Add(time.Minute)
	th.Warnf(log, "Detector failed: %v", "boom")
	th.Errorf(log, "Detector failed: %v", "boom")
}
