package installer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The run marker lives at a fixed path in the OS temp directory, so these
// checks share state and must not run in parallel with each other.
func TestRunMarkerLifecycle(t *testing.T) {
	ctx := context.Background()

	removeMarker()
	require.False(t, IsInstallerRunningNow(ctx))

	require.NoError(t, createMarker())
	require.True(t, IsInstallerRunningNow(ctx))

	removeMarker()
	require.False(t, IsInstallerRunningNow(ctx))
}

func TestRunMarker_StaleMarkerIsRecovered(t *testing.T) {
	ctx := context.Background()

	removeMarker()
	require.NoError(t, createMarker())

	expired := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(markerPath(), expired, expired))

	// No other installer process is running, so the stale marker is reclaimed.
	require.False(t, IsInstallerRunningNow(ctx))
	require.NoFileExists(t, markerPath())
}
