package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario A - sleepers overshoot, never undershoot, and Start returns
// once every fiber has drained.
func TestScenarioA_SleepersOvershoot(t *testing.T) {
	r, err := Setup(WithNumFibers(8), WithTimerGranularity(time.Millisecond))
	require.NoError(t, err)
	defer r.Teardown()

	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		100 * time.Millisecond,
		150 * time.Millisecond,
		200 * time.Millisecond,
	}
	var woke int
	for _, d := range durations {
		d := d
		_, err := r.Spawn(func(rr *Reactor) error {
			start := time.Now()
			rr.Sleep(d)
			elapsed := time.Since(start)
			assert.GreaterOrEqual(t, elapsed, d)
			assert.Less(t, elapsed, d+5*time.Millisecond)
			woke++
			return nil
		}, false)
		require.NoError(t, err)
	}

	_, err = r.Spawn(func(rr *Reactor) error {
		rr.Sleep(250 * time.Millisecond)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	runErr := make(chan error, 1)
	startedAt := time.Now()
	go func() { runErr <- r.Start() }()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(260 * time.Millisecond):
		t.Fatal("Start did not return within 260ms")
	}
	assert.Less(t, time.Since(startedAt), 260*time.Millisecond)
	assert.Equal(t, 6, woke)
}

// reactorTestMyError is scenario B's application-defined error kind.
type reactorTestMyError struct{ msg string }

func (e *reactorTestMyError) Error() string { return e.msg }

// Scenario B - an error thrown into a fiber waiting on a different event
// is observed at that wait point, not swallowed.
func TestScenarioB_ThrowAcrossFibers(t *testing.T) {
	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	e := NewEvent()
	f := NewEvent()
	var observed error
	var aHandle FiberHandle

	aHandle, err = r.Spawn(func(rr *Reactor) error {
		e.Set(rr)
		observed = f.Wait(rr)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	_, err = r.Spawn(func(rr *Reactor) error {
		_ = e.Wait(rr)
		rr.ThrowIn(aHandle, &reactorTestMyError{msg: "x"})
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())

	var target *reactorTestMyError
	require.True(t, errors.As(observed, &target))
	assert.Equal(t, "x", target.msg)
}

// Scenario F - fiber iteration reports the expected mix of lifecycle
// states.
// Scenario F - enumerating fiber states distinguishes a never-run fiber
// (Starting, even though it is already on the ready queue) from one that
// ran once and yielded back onto the ready queue (Scheduled).
func TestScenarioF_FiberIterationStates(t *testing.T) {
	r, err := Setup(WithNumFibers(8))
	require.NoError(t, err)
	defer r.Teardown()

	unset := NewEvent()
	done := NewEvent()

	var xHandle, yHandle, zHandle FiberHandle

	_, err = r.Spawn(func(rr *Reactor) error {
		var err error
		xHandle, err = rr.Spawn(func(rr2 *Reactor) error {
			rr2.Yield()
			return done.Wait(rr2)
		}, false)
		require.NoError(t, err)

		yHandle, err = rr.Spawn(func(rr2 *Reactor) error {
			return unset.Wait(rr2)
		}, false)
		require.NoError(t, err)

		rr.Yield()

		zHandle, err = rr.Spawn(func(rr2 *Reactor) error {
			return done.Wait(rr2)
		}, false)
		require.NoError(t, err)

		states := rr.IterateFibers()
		byHandle := map[FiberHandle]FiberState{}
		for _, f := range states {
			byHandle[f.Handle] = f.State
		}
		assert.Len(t, states, 4)
		assert.Equal(t, StateScheduled, byHandle[xHandle])
		assert.Equal(t, StateSleeping, byHandle[yHandle])
		assert.Equal(t, StateStarting, byHandle[zHandle])
		assert.Equal(t, StateRunning, byHandle[rr.CurrentHandle()])

		done.Set(rr)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())
}

// TestHandleValidity covers Testable Property 1: a handle is valid from
// spawn until the body returns, and never again after the slot recycles.
func TestHandleValidity(t *testing.T) {
	r, err := Setup(WithNumFibers(4))
	require.NoError(t, err)
	defer r.Teardown()

	done := NewEvent()
	var h FiberHandle
	h, err = r.Spawn(func(rr *Reactor) error {
		done.Set(rr)
		return nil
	}, false)
	require.NoError(t, err)

	assert.NotNil(t, r.lookup(h))

	_, err = r.Spawn(func(rr *Reactor) error {
		_ = done.Wait(rr)
		assert.Nil(t, rr.lookup(h))
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())
}

// TestFairness covers Testable Property 2: N fibers in a yield ring each
// execute exactly once per N total yields.
func TestFairness(t *testing.T) {
	const n = 5
	const rounds = 4

	r, err := Setup(WithNumFibers(n + 2))
	require.NoError(t, err)
	defer r.Teardown()

	counts := make([]int, n)
	for i := 0; i < n; i++ {
		i := i
		_, err := r.Spawn(func(rr *Reactor) error {
			for round := 0; round < rounds; round++ {
				counts[i]++
				rr.Yield()
			}
			if i == n-1 {
				rr.Stop()
			}
			return nil
		}, false)
		require.NoError(t, err)
	}

	require.NoError(t, r.Start())

	for i, c := range counts {
		assert.Equal(t, rounds, c, "fiber %d ran an unfair number of times", i)
	}
}

// TestCriticalSectionSuspendRejected covers Testable Property 7: a
// suspension attempted while a timer callback holds the critical section
// is rejected, not silently corrupted.
func TestCriticalSectionSuspendRejected(t *testing.T) {
	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	var gotErr error
	_, ok := r.RegisterTimer(time.Millisecond, func(rr *Reactor) {
		rr.EnterCriticalSection()
		defer rr.LeaveCriticalSection()
		gotErr = rr.Suspend(0)
	})
	require.True(t, ok)

	_, spawnErr := r.Spawn(func(rr *Reactor) error {
		rr.Sleep(10 * time.Millisecond)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, spawnErr)

	require.NoError(t, r.Start())
	assert.ErrorIs(t, gotErr, ErrCriticalSection)
}

// TestFiberGroupKill covers FiberGroup.Kill's documented contract: every
// live member observes ErrFiberGroupExtinction and Wait unblocks once.
func TestFiberGroupKill(t *testing.T) {
	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	g := NewFiberGroup()
	seen := make(chan error, 2)

	for i := 0; i < 2; i++ {
		_, err := g.Spawn(r, func(rr *Reactor) error {
			err := rr.Suspend(0)
			seen <- err
			return err
		}, false)
		require.NoError(t, err)
	}

	_, err = r.Spawn(func(rr *Reactor) error {
		rr.Yield()
		require.NoError(t, g.Kill(rr))
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())

	close(seen)
	for err := range seen {
		assert.ErrorIs(t, err, ErrFiberGroupExtinction)
	}
	assert.Equal(t, 0, g.Len())
}

// TestBarrierReleasesAllArrivals exercises the N-party rendezvous: the
// first N-1 arrivals suspend until the Nth releases all of them.
func TestBarrierReleasesAllArrivals(t *testing.T) {
	r, err := Setup()
	require.NoError(t, err)
	defer r.Teardown()

	b := NewBarrier(3)
	released := make([]bool, 3)

	for i := 0; i < 3; i++ {
		i := i
		_, err := r.Spawn(func(rr *Reactor) error {
			require.NoError(t, b.Arrive(rr))
			released[i] = true
			if i == 2 {
				rr.Stop()
			}
			return nil
		}, false)
		require.NoError(t, err)
	}

	require.NoError(t, r.Start())
	for i, ok := range released {
		assert.True(t, ok, "waiter %d was never released", i)
	}
}

// TestOutOfFibers exercises Spawn's documented ErrOutOfFibers path.
func TestOutOfFibers(t *testing.T) {
	r, err := Setup(WithNumFibers(3))
	require.NoError(t, err)
	defer r.Teardown()

	block := NewEvent()
	_, err = r.Spawn(func(rr *Reactor) error { return block.Wait(rr) }, false)
	require.NoError(t, err)

	_, err = r.Spawn(func(rr *Reactor) error { return nil }, false)
	require.ErrorIs(t, err, ErrOutOfFibers)
}
