package reactor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctqLengthInvariant(t *testing.T, q *ctq) {
	t.Helper()
	var counted int
	for _, level := range q.bins {
		for _, bin := range level {
			counted += bin.Len()
		}
	}
	counted += q.overflow[q.overflowActiv].Len()
	counted += q.overflow[1-q.overflowActiv].Len()
	assert.Equal(t, q.length, counted, "ctq.length must equal sum of bin sizes plus both overflow lists")
}

// Testable Property 3: firing order matches deadline order for
// pairwise-distinct deadlines.
func TestCTQTimerOrdering(t *testing.T) {
	q := newCTQ(1, 3, 4, 64, 0)

	deadlines := []int64{500, 10, 300, 1, 200, 50}
	for _, d := range deadlines {
		_, ok := q.insert(d, 0, func(*Reactor) {})
		require.True(t, ok)
	}
	ctqLengthInvariant(t, q)

	var fired []int64
	for {
		node, ok := q.pop(600)
		if !ok {
			break
		}
		fired = append(fired, node.expiry)
	}

	want := append([]int64(nil), deadlines...)
	for i := 1; i < len(want); i++ {
		for j := i; j > 0 && want[j-1] > want[j]; j-- {
			want[j-1], want[j] = want[j], want[j-1]
		}
	}
	assert.Equal(t, want, fired)
}

// Testable Property 4: each timer fires within [deadline, deadline +
// resolution).
func TestCTQTimerAccuracy(t *testing.T) {
	const resolution = int64(4)
	q := newCTQ(resolution, 3, 4, 64, 0)

	deadlines := []int64{3, 17, 101, 997}
	for _, d := range deadlines {
		_, ok := q.insert(d, 0, func(*Reactor) {})
		require.True(t, ok)
	}

	for _, d := range deadlines {
		node, ok := q.pop(d + resolution - 1)
		require.True(t, ok)
		assert.GreaterOrEqual(t, node.expiry, d)
		assert.Less(t, node.expiry, d+resolution)
		assert.Equal(t, d, node.expiry)
	}
}

// Scenario C - CTQ random stress: insert/cancel/advance, then verify the
// length invariant and that no timer is popped before its expiry.
func TestScenarioC_CTQRandomStress(t *testing.T) {
	const resolution = int64(4)
	q := newCTQ(resolution, 3, 4, 20000, 0)
	horizon := q.horizon()

	rng := rand.New(rand.NewSource(1))
	type pending struct {
		handle TimerHandle
		expiry int64
	}
	var live []pending
	var numInserted, numFired, numCancelled int
	var now int64

	for i := 0; i < 10000; i++ {
		expiry := now + int64(rng.Intn(int(horizon*2)))
		h, ok := q.insert(expiry, 0, func(*Reactor) {})
		require.True(t, ok)
		live = append(live, pending{handle: h, expiry: expiry})
		numInserted++

		if rng.Intn(10) == 0 && len(live) > 0 {
			idx := rng.Intn(len(live))
			if q.cancel(live[idx].handle) {
				numCancelled++
			}
			live = append(live[:idx], live[idx+1:]...)
		}

		advanceBy := int64(rng.Intn(51))
		now += advanceBy * resolution
		for {
			node, ok := q.pop(now)
			if !ok {
				break
			}
			assert.GreaterOrEqual(t, now, node.expiry)
			for j, p := range live {
				if p.handle.id == node.id && p.handle.incarnation == node.incarnation {
					live = append(live[:j], live[j+1:]...)
					break
				}
			}
			numFired++
		}
	}

	ctqLengthInvariant(t, q)
	assert.Equal(t, numInserted-numFired-numCancelled, q.Len())
}

func TestCTQCancelUnknownHandleIsNoop(t *testing.T) {
	q := newCTQ(1, 2, 4, 4, 0)
	assert.False(t, q.cancel(TimerHandle{id: 99, incarnation: 1}))
	assert.False(t, q.cancel(TimerHandle{}))
}

func TestCTQRecurringReinsertsFromNow(t *testing.T) {
	q := newCTQ(1, 2, 4, 4, 0)
	h, ok := q.insert(10, 5, func(*Reactor) {})
	require.True(t, ok)

	node, ok := q.pop(10)
	require.True(t, ok)
	assert.Equal(t, h.id, node.id)

	q.reinsertRecurring(node, 200)
	assert.Equal(t, int64(205), node.expiry)
	ctqLengthInvariant(t, q)

	_, ok = q.pop(204)
	assert.False(t, ok)
	refired, ok := q.pop(205)
	require.True(t, ok)
	assert.Equal(t, node.id, refired.id)
}
