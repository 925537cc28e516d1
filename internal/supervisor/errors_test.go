package supervisor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := newErr(KindNotFound, "app %d not found", 7)
	require.Equal(t, "not_found: app 7 not found", plain.Error())

	cause := errors.New("permission denied")
	wrapped := wrapErr(KindSpawnFailed, cause, "spawn %q", "web")
	require.Equal(t, `spawn_failed: spawn "web": permission denied`, wrapped.Error())
	require.ErrorIs(t, wrapped, cause)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindPortInUse, KindOf(newErr(KindPortInUse, "busy")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))

	// kind survives wrapping by callers
	outer := fmt.Errorf("request failed: %w", newErr(KindNotRunning, "idle"))
	require.Equal(t, KindNotRunning, KindOf(outer))
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	a := newErr(KindLivenessTimeout, "one")
	b := newErr(KindLivenessTimeout, "two")
	c := newErr(KindShutdownTimeout, "three")
	require.ErrorIs(t, a, b)
	require.NotErrorIs(t, a, c)
}
