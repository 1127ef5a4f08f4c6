package wire

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeWaitForWake_RoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	done := make(chan error, 1)
	go func() { done <- WaitForWake(r) }()

	require.NoError(t, Wake(w))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WaitForWake to observe the wake token")
	}
}

func TestWaitForWake_Timeout(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, r.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	err = WaitForWake(r)
	assert.ErrorIs(t, err, ErrBarrierTimeout)
}

func TestWaitForWake_EOF(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, w.Close()) // host side closed: simulates a kill/shutdown

	err = WaitForWake(r)
	assert.ErrorIs(t, err, ErrFramingEOF)
}

func TestWaitForWake_OtherError(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	defer w.Close()

	err = WaitForWake(r)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBarrierTimeout))
	assert.False(t, errors.Is(err, ErrFramingEOF))
}
