package reactor

import (
	"sort"
	"time"
)

// Metrics tracks runtime statistics for a Reactor. A Metrics value is only
// ever touched from the reactor's own OS thread (the single-threaded
// invariant the whole package relies on), so unlike a typical multi-goroutine
// event loop's metrics this type needs no internal locking of its own.
//
// Example:
//
//	r, _ := reactor.Setup(reactor.WithMetrics(true))
//	defer r.Teardown()
//	stats := r.Metrics()
//	fmt.Printf("TPS: %.2f, P99 switch latency: %v\n", stats.TPS, stats.SwitchLatency.P99)
type Metrics struct {
	// SwitchLatency tracks how long each fibril context switch takes.
	SwitchLatency LatencyMetrics

	// Queue tracks ready-queue and CTQ occupancy.
	Queue QueueMetrics

	// TPS is the most recently sampled ticks-per-second figure (ready
	// fibers resumed, per second).
	TPS float64

	ticks *TPSCounter
}

// NewMetrics constructs a Metrics collector with a 10s/100ms TPS window,
// matching the granularity a reactor's hogger threshold typically cares
// about.
func NewMetrics() *Metrics {
	return &Metrics{ticks: NewTPSCounter(10*time.Second, 100*time.Millisecond)}
}

// RecordTick registers one fiber resume, for TPS accounting.
func (m *Metrics) RecordTick() {
	m.ticks.Increment()
	m.TPS = m.ticks.TPS()
}

// LatencyMetrics tracks a latency distribution with percentiles, using the
// P-Square algorithm for O(1) streaming percentile estimation.
type LatencyMetrics struct {
	psquare *pSquareMultiQuantile

	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the size of the exact-percentile fallback buffer used
// until enough samples exist for the P-Square estimator to be reliable.
const sampleSize = 1000

// Record records one latency sample (e.g. the wall-clock duration of a
// single fibril switch, or time spent running before yielding).
func (l *LatencyMetrics) Record(duration time.Duration) {
	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(duration))

	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}
	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentile fields from the samples
// collected so far, and returns the sample count used.
func (l *LatencyMetrics) Sample() int {
	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueMetrics tracks occupancy of the reactor's internal queues: the
// scheduler's ready queue and the cascading timer queue's pending-entry
// count.
type QueueMetrics struct {
	ReadyCurrent int
	ReadyMax     int
	ReadyAvg     float64
	readyEMAInit bool

	TimerCurrent int
	TimerMax     int
	TimerAvg     float64
	timerEMAInit bool
}

// UpdateReady records the current ready-queue depth.
func (q *QueueMetrics) UpdateReady(depth int) {
	q.ReadyCurrent = depth
	if depth > q.ReadyMax {
		q.ReadyMax = depth
	}
	if !q.readyEMAInit {
		q.ReadyAvg = float64(depth)
		q.readyEMAInit = true
	} else {
		q.ReadyAvg = 0.9*q.ReadyAvg + 0.1*float64(depth)
	}
}

// UpdateTimers records the current CTQ pending-entry count.
func (q *QueueMetrics) UpdateTimers(depth int) {
	q.TimerCurrent = depth
	if depth > q.TimerMax {
		q.TimerMax = depth
	}
	if !q.timerEMAInit {
		q.TimerAvg = float64(depth)
		q.timerEMAInit = true
	} else {
		q.TimerAvg = 0.9*q.TimerAvg + 0.1*float64(depth)
	}
}

// TPSCounter tracks a rolling-window rate (ticks per second) using a ring
// buffer of fixed-width time buckets. Because it is only ever driven from
// the reactor's own thread it needs no synchronization, unlike a counter
// shared across goroutines.
type TPSCounter struct {
	lastRotation time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
}

// NewTPSCounter creates a rate counter over the given rolling window, with
// the given bucket granularity. windowSize must be >= bucketSize and both
// must be positive.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	if windowSize <= 0 {
		panic("reactor: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("reactor: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("reactor: bucketSize cannot exceed windowSize")
	}
	bucketCount := int(windowSize / bucketSize)
	return &TPSCounter{
		buckets:      make([]int64, bucketCount),
		bucketSize:   bucketSize,
		windowSize:   windowSize,
		lastRotation: time.Now(),
	}
}

// Increment records one event.
func (t *TPSCounter) Increment() {
	t.rotate()
	t.buckets[len(t.buckets)-1]++
}

func (t *TPSCounter) rotate() {
	now := time.Now()
	elapsed := now.Sub(t.lastRotation)

	advance := int64(elapsed) / int64(t.bucketSize)
	if advance < 0 || advance > int64(len(t.buckets)) {
		advance = int64(len(t.buckets))
	}

	if advance >= int64(len(t.buckets)) {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.lastRotation = now
		return
	}
	if advance <= 0 {
		return
	}

	copy(t.buckets, t.buckets[advance:])
	for i := len(t.buckets) - int(advance); i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}
	t.lastRotation = t.lastRotation.Add(time.Duration(advance) * t.bucketSize)
}

// TPS returns the current rate, in events per second.
func (t *TPSCounter) TPS() float64 {
	t.rotate()
	var sum int64
	for _, count := range t.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}
	monitored := float64(len(t.buckets)) * t.bucketSize.Seconds()
	return float64(sum) / monitored
}
