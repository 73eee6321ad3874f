package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Slots must be reserved before any Reactor is set up (NewFLSSlot panics
// once the registry is sealed), so these live as package-level vars,
// initialized before any test calls Setup.
var (
	flsTestIntSlot = NewFLSSlot[int]()
	flsTestStrSlot = NewFLSSlot[string]()
)

func TestFLSSlotPerFiberIsolation(t *testing.T) {
	slot := flsTestIntSlot

	r, err := Setup(WithNumFibers(4))
	require.NoError(t, err)
	defer r.Teardown()

	var gotA, gotB int
	doneA := NewEvent()
	doneB := NewEvent()

	_, err = r.Spawn(func(rr *Reactor) error {
		slot.CurrentSet(rr, 1)
		rr.Yield()
		gotA = slot.CurrentGet(rr)
		doneA.Set(rr)
		return nil
	}, false)
	require.NoError(t, err)

	_, err = r.Spawn(func(rr *Reactor) error {
		slot.CurrentSet(rr, 2)
		rr.Yield()
		gotB = slot.CurrentGet(rr)
		doneB.Set(rr)
		return nil
	}, false)
	require.NoError(t, err)

	_, err = r.Spawn(func(rr *Reactor) error {
		_ = doneA.Wait(rr)
		_ = doneB.Wait(rr)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.Equal(t, 1, gotA)
	assert.Equal(t, 2, gotB)
}

func TestFLSSlotStaleHandleFails(t *testing.T) {
	slot := flsTestStrSlot

	r, err := Setup(WithNumFibers(4))
	require.NoError(t, err)
	defer r.Teardown()

	var h FiberHandle
	h, err = r.Spawn(func(rr *Reactor) error { return nil }, false)
	require.NoError(t, err)

	_, err = r.Spawn(func(rr *Reactor) error {
		rr.Yield()
		ok := slot.Set(rr, h, "stale")
		assert.False(t, ok)
		_, ok = slot.Get(rr, h)
		assert.False(t, ok)
		rr.Stop()
		return nil
	}, false)
	require.NoError(t, err)

	require.NoError(t, r.Start())
}
