//go:build linux || darwin

package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario D - pipe hangup: a full read followed by a second read past
// EOF returns 0 within the timeout, never ErrShortRead.
func TestScenarioD_PipeHangup(t *testing.T) {
	rPipe, wPipe, err := os.Pipe()
	require.NoError(t, err)
	defer rPipe.Close()

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = wPipe.Write(payload)
	require.NoError(t, err)
	require.NoError(t, wPipe.Close())

	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	require.NoError(t, setNonblock(int(rPipe.Fd())))
	ctx, err := r.poller.RegisterFD(int(rPipe.Fd()))
	require.NoError(t, err)

	var first, second int
	var secondErr error
	_, err = r.Spawn(func(rr *Reactor) error {
		buf := make([]byte, 1024)
		first, _ = rr.ReadExact(ctx, buf, 20)
		second, secondErr = rr.ReadExact(ctx, make([]byte, 1), 20)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	startedAt := time.Now()
	require.NoError(t, r.Start())
	assert.Less(t, time.Since(startedAt), 20*time.Millisecond+50*time.Millisecond)

	assert.Equal(t, 1024, first)
	assert.Equal(t, 0, second)
	assert.NoError(t, secondErr)
}

// Testable Property 8: edge-triggered drain produces exactly one wakeup
// per producer flush, never amplified.
func TestEdgeTriggeredDrainNoAmplification(t *testing.T) {
	rPipe, wPipe, err := os.Pipe()
	require.NoError(t, err)
	defer rPipe.Close()
	defer wPipe.Close()

	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	require.NoError(t, setNonblock(int(rPipe.Fd())))
	ctx, err := r.poller.RegisterFD(int(rPipe.Fd()))
	require.NoError(t, err)

	var wakeups int
	buf := make([]byte, 16)
	_, err = r.Spawn(func(rr *Reactor) error {
		for flush := 0; flush < 3; flush++ {
			require.NoError(t, rr.Wait(ctx, DirRead, 0))
			wakeups++
			for {
				n, _ := readFD(ctx.fd, buf)
				if n > 0 {
					continue
				}
				break
			}
		}
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(5 * time.Millisecond)
			_, _ = wPipe.Write([]byte("x"))
		}
	}()

	require.NoError(t, r.Start())
	assert.Equal(t, 3, wakeups)
}
