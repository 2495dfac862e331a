package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func liveReturning(calls *int, value string, err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return value, err
	}
}

func TestCallLive(t *testing.T) {
	sw := NewSwitch("test", ModeLive, zap.NewNop())
	var liveCalls, localCalls int

	got, err := Call(context.Background(), sw, "op",
		liveReturning(&liveCalls, "live", nil),
		liveReturning(&localCalls, "local", nil))
	require.NoError(t, err)
	require.Equal(t, "live", got)
	require.Equal(t, ModeLive, sw.Mode())
	require.Equal(t, 0, localCalls)
}

func TestCallFallbackIsSticky(t *testing.T) {
	sw := NewSwitch("test", ModeLive, zap.NewNop())
	var liveCalls, localCalls int
	live := liveReturning(&liveCalls, "", errors.New("connection refused"))
	local := liveReturning(&localCalls, "local", nil)

	got, err := Call(context.Background(), sw, "first", live, local)
	require.NoError(t, err)
	require.Equal(t, "local", got)
	require.Equal(t, ModeLocal, sw.Mode())

	// вторая операция сразу идет в Local
	got, err = Call(context.Background(), sw, "second", live, local)
	require.NoError(t, err)
	require.Equal(t, "local", got)
	require.Equal(t, 1, liveCalls)
	require.Equal(t, 2, localCalls)
}

func TestCallMalformedResponseNoFallback(t *testing.T) {
	sw := NewSwitch("test", ModeLive, zap.NewNop())
	var liveCalls, localCalls int

	_, err := Call(context.Background(), sw, "op",
		liveReturning(&liveCalls, "", fmt.Errorf("decode: %w", ErrMalformedResponse)),
		liveReturning(&localCalls, "local", nil))
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Equal(t, ModeLive, sw.Mode())
	require.Equal(t, 0, localCalls)
}

func TestCallCanceledNoFallback(t *testing.T) {
	sw := NewSwitch("test", ModeLive, zap.NewNop())
	var liveCalls, localCalls int

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, sw, "op",
		liveReturning(&liveCalls, "", context.Canceled),
		liveReturning(&localCalls, "local", nil))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, ModeLive, sw.Mode())
}

func TestSwitchesAreIndependent(t *testing.T) {
	banking := NewSwitch("cbs", ModeLive, zap.NewNop())
	scoring := NewSwitch("scoring", ModeLive, zap.NewNop())
	var liveCalls, localCalls int

	_, err := Call(context.Background(), banking, "op",
		liveReturning(&liveCalls, "", errors.New("timeout")),
		liveReturning(&localCalls, "local", nil))
	require.NoError(t, err)

	require.Equal(t, ModeLocal, banking.Mode())
	require.Equal(t, ModeLive, scoring.Mode())
	require.Equal(t, "local", banking.Mode().String())
}
