// Package aggregate implements the telemetry aggregator (spec.md §4.10): a
// rolling per-(satellite, metric) buffer of recent samples, multi-window
// statistics, a simple OLS trend estimate, periodic hourly persistence, and
// a change-threshold broadcast policy.
//
// The buffer table is a dsa.ShardedMap keyed by "satelliteID\x00metric"
// (SPEC_FULL.md §12's sharded-process-wide-table supplement), so recording a
// sample for one satellite never contends with another's stripe lock — the
// same generalization internal/infra/healing's teacher-era single-mutex
// table would have needed had it tracked per-satellite state.
package aggregate

import (
	"context"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/dsa"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

const (
	maxBufferAge     = 24 * time.Hour
	maxBufferEntries = 10000
	trendWindow      = 300 * time.Second
	broadcastDelta   = 0.05
)

type point struct {
	ts    time.Time
	value float64
}

// buffer holds the samples for one (satellite, metric) pair, newest-first.
type buffer struct {
	mu         sync.Mutex
	points     []point
	updatedAt  time.Time
	lastOneMin float64
	hasOneMin  bool
}

// Config tunes the aggregator's periodic tasks.
type Config struct {
	PersistInterval time.Duration // default 60s
	CleanupInterval time.Duration // default 5m
}

func DefaultConfig() Config {
	return Config{PersistInterval: 60 * time.Second, CleanupInterval: 5 * time.Minute}
}

// Aggregator implements domain.AggregatorReader plus the writer-side record
// API the telemetry ingester calls.
type Aggregator struct {
	cfg     Config
	buffers *dsa.ShardedMap
	store   domain.Store
	bus     domain.Bus
	now     func() time.Time
	logger  *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(store domain.Store, bus domain.Bus, cfg Config) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		buffers: dsa.NewShardedMap(64),
		store:   store,
		bus:     bus,
		now:     time.Now,
		logger:  log.New(os.Stderr, "[aggregate] ", log.LstdFlags),
		stopCh:  make(chan struct{}),
	}
}

func key(satelliteID, metric string) string { return satelliteID + "\x00" + metric }

// Record appends a sample for (satelliteID, metric), trims the buffer to the
// last 24h / 10000 entries, and broadcasts an update if the 1-minute average
// moved by more than 5% (spec.md §4.10's broadcast policy).
func (a *Aggregator) Record(satelliteID, metric string, value float64, ts time.Time) {
	if ts.IsZero() {
		ts = a.now()
	}
	b := a.buffers.GetOrCreate(key(satelliteID, metric), func() any { return &buffer{} }).(*buffer)

	b.mu.Lock()
	b.points = append([]point{{ts: ts, value: value}}, b.points...)
	cutoff := a.now().Add(-maxBufferAge)
	b.points = trimBuffer(b.points, cutoff, maxBufferEntries)
	b.updatedAt = a.now()

	newAvg, hasPoints := windowAvg(b.points, a.now(), domain.Window1m.Duration())
	shouldBroadcast := false
	if hasPoints {
		if !b.hasOneMin {
			shouldBroadcast = true
		} else if b.lastOneMin == 0 {
			shouldBroadcast = newAvg != 0
		} else if math.Abs(newAvg-b.lastOneMin)/math.Abs(b.lastOneMin) > broadcastDelta {
			shouldBroadcast = true
		}
		b.lastOneMin = newAvg
		b.hasOneMin = true
	}
	b.mu.Unlock()

	if shouldBroadcast && a.bus != nil {
		a.bus.Publish("satellite:"+satelliteID+":aggregates", aggregateUpdate{
			SatelliteID: satelliteID, Metric: metric, OneMinAvg: newAvg,
		})
	}
}

type aggregateUpdate struct {
	SatelliteID string  `json:"satellite_id"`
	Metric      string  `json:"metric"`
	OneMinAvg   float64 `json:"one_min_avg"`
}

func trimBuffer(points []point, cutoff time.Time, maxLen int) []point {
	n := len(points)
	for n > 0 && points[n-1].ts.Before(cutoff) {
		n--
	}
	points = points[:n]
	if len(points) > maxLen {
		points = points[:maxLen]
	}
	return points
}

// GetStats returns {avg, min, max, count, stddev} for every window with at
// least one point, omitting empty windows (spec.md §4.10).
func (a *Aggregator) GetStats(satelliteID, metric string) map[domain.StatWindow]domain.WindowStats {
	v, ok := a.buffers.Get(key(satelliteID, metric))
	if !ok {
		return map[domain.StatWindow]domain.WindowStats{}
	}
	b := v.(*buffer)

	b.mu.Lock()
	points := make([]point, len(b.points))
	copy(points, b.points)
	b.mu.Unlock()

	now := a.now()
	out := make(map[domain.StatWindow]domain.WindowStats)
	for _, w := range domain.AllWindows() {
		stats, ok := windowStats(points, now, w.Duration())
		if ok {
			out[w] = stats
		}
	}
	return out
}

// GetTrend computes the OLS-derived direction over the trailing 300s of
// points (spec.md §4.10).
func (a *Aggregator) GetTrend(satelliteID, metric string) domain.Trend {
	v, ok := a.buffers.Get(key(satelliteID, metric))
	if !ok {
		return domain.TrendUnknown
	}
	b := v.(*buffer)

	b.mu.Lock()
	points := make([]point, len(b.points))
	copy(points, b.points)
	b.mu.Unlock()

	cutoff := a.now().Add(-trendWindow)
	var xs, ys []float64
	for _, p := range points {
		if p.ts.Before(cutoff) {
			continue
		}
		xs = append(xs, p.ts.Sub(cutoff).Seconds())
		ys = append(ys, p.value)
	}
	if len(xs) == 0 {
		return domain.TrendUnknown
	}
	if len(xs) == 1 {
		return domain.TrendStable
	}

	slope, mean := olsSlope(xs, ys)
	if mean == 0 {
		if slope == 0 {
			return domain.TrendStable
		}
		return slopeToTrend(slope)
	}
	relative := slope / math.Abs(mean)
	switch {
	case relative > 0.01:
		return domain.TrendIncreasing
	case relative < -0.01:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

func slopeToTrend(slope float64) domain.Trend {
	switch {
	case slope > 0:
		return domain.TrendIncreasing
	case slope < 0:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

// olsSlope fits y = a + b*x by ordinary least squares and returns (b, mean(y)).
func olsSlope(xs, ys []float64) (slope, meanY float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	meanY = sumY / n
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, meanY
	}
	slope = (n*sumXY - sumX*sumY) / denom
	return slope, meanY
}

func windowAvg(points []point, now time.Time, d time.Duration) (float64, bool) {
	stats, ok := windowStats(points, now, d)
	return stats.Avg, ok
}

func windowStats(points []point, now time.Time, d time.Duration) (domain.WindowStats, bool) {
	cutoff := now.Add(-d)
	var vals []float64
	for _, p := range points {
		if p.ts.Before(cutoff) {
			break
		}
		vals = append(vals, p.value)
	}
	if len(vals) == 0 {
		return domain.WindowStats{}, false
	}

	sort.Float64s(vals)
	min, max := vals[0], vals[len(vals)-1]
	var sum float64
	for _, v := range vals {
		sum += v
	}
	avg := sum / float64(len(vals))

	var variance float64
	for _, v := range vals {
		d := v - avg
		variance += d * d
	}
	variance /= float64(len(vals))

	return domain.WindowStats{
		Avg: avg, Min: min, Max: max, Count: len(vals), StdDev: math.Sqrt(variance),
	}, true
}

// Start launches the periodic hourly-persist and stale-buffer-cleanup tasks.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(2)
	go a.persistLoop(ctx)
	go a.cleanupLoop(ctx)
}

// Stop halts the periodic tasks and waits for them to exit.
func (a *Aggregator) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Aggregator) persistLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.persistHourly(ctx)
		}
	}
}

func (a *Aggregator) persistHourly(ctx context.Context) {
	if a.store == nil {
		return
	}
	now := a.now()
	for _, k := range a.buffers.Keys() {
		satelliteID, metric := splitKey(k)
		stats := a.GetStats(satelliteID, metric)
		h, ok := stats[domain.Window1h]
		if !ok {
			continue
		}
		agg := domain.HourlyAggregate{SatelliteID: satelliteID, Metric: metric, Window: domain.Window1h, RecordedAt: now, Stats: h}
		if err := a.store.UpsertHourlyAggregate(ctx, agg); err != nil {
			a.logger.Printf("persist hourly aggregate %s/%s: %v", satelliteID, metric, err)
			continue
		}
		metrics.AggregatorFlushes.Inc()
	}
}

func (a *Aggregator) cleanupLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.dropStaleBuffers()
		}
	}
}

// dropStaleBuffers removes buffers whose updated_at is older than 24h.
func (a *Aggregator) dropStaleBuffers() {
	cutoff := a.now().Add(-maxBufferAge)
	for _, k := range a.buffers.Keys() {
		v, ok := a.buffers.Get(k)
		if !ok {
			continue
		}
		b := v.(*buffer)
		b.mu.Lock()
		stale := b.updatedAt.Before(cutoff)
		b.mu.Unlock()
		if stale {
			a.buffers.Delete(k)
		}
	}
}

func splitKey(k string) (satelliteID, metric string) {
	for i := 0; i < len(k); i++ {
		if k[i] == 0 {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

var _ domain.AggregatorReader = (*Aggregator)(nil)
