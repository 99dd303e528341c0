package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestPriceTracker_EvictsByAge(t *testing.T) {
	tr := NewPriceTracker(time.Minute, 100)
	base := time.Now()

	tr.RecordAt(domain.SideUp, 0.50, base)
	tr.RecordAt(domain.SideUp, 0.51, base.Add(30*time.Second))
	assert.Equal(t, 2, tr.HistoryCount(domain.SideUp))

	// this write pushes the first sample past the lookback horizon
	tr.RecordAt(domain.SideUp, 0.52, base.Add(70*time.Second))
	assert.Equal(t, 2, tr.HistoryCount(domain.SideUp))
}

func TestPriceTracker_EvictsByCount(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 3)
	base := time.Now()
	for i := 0; i < 10; i++ {
		tr.RecordAt(domain.SideDown, 0.40, base.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 3, tr.HistoryCount(domain.SideDown))
}

func TestPriceTracker_SidesAreIndependent(t *testing.T) {
	tr := NewPriceTracker(time.Minute, 100)
	tr.Record(domain.SideUp, 0.60)
	assert.Equal(t, 1, tr.HistoryCount(domain.SideUp))
	assert.Equal(t, 0, tr.HistoryCount(domain.SideDown))
}

func TestPriceTracker_Volatility(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 100)
	base := time.Now()

	// fewer than two samples yields zero
	assert.Zero(t, tr.Volatility(domain.SideUp, time.Minute))
	tr.RecordAt(domain.SideUp, 0.50, base)
	assert.Zero(t, tr.Volatility(domain.SideUp, time.Minute))

	tr.RecordAt(domain.SideUp, 0.54, base.Add(10*time.Second))
	// sample stddev of {0.50, 0.54}: mean 0.52, variance 0.0008
	assert.InDelta(t, 0.028284, tr.Volatility(domain.SideUp, time.Minute), 1e-6)
}

func TestPriceTracker_VolatilityWindowExcludesOldSamples(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 100)
	base := time.Now()

	tr.RecordAt(domain.SideUp, 0.90, base)
	tr.RecordAt(domain.SideUp, 0.50, base.Add(2*time.Minute))
	tr.RecordAt(domain.SideUp, 0.50, base.Add(2*time.Minute+10*time.Second))

	// a one-minute window back from the newest sample excludes the 0.90 print
	assert.Zero(t, tr.Volatility(domain.SideUp, time.Minute))
}

func TestPriceTracker_DetectDrop(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 100)
	base := time.Now()

	tr.RecordAt(domain.SideUp, 0.60, base)
	tr.RecordAt(domain.SideUp, 0.58, base.Add(10*time.Second))
	tr.RecordAt(domain.SideUp, 0.25, base.Add(20*time.Second))

	mv, ok := tr.DetectDrop(domain.SideUp, 0.30, time.Minute)
	require.True(t, ok)
	assert.InDelta(t, 0.60, mv.From, 1e-9)
	assert.InDelta(t, 0.25, mv.To, 1e-9)
	assert.InDelta(t, 0.35, mv.Dropped, 1e-9)
}

func TestPriceTracker_DetectDropBelowThreshold(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 100)
	base := time.Now()

	tr.RecordAt(domain.SideUp, 0.60, base)
	tr.RecordAt(domain.SideUp, 0.55, base.Add(10*time.Second))

	_, ok := tr.DetectDrop(domain.SideUp, 0.30, time.Minute)
	assert.False(t, ok)
}

func TestPriceTracker_DetectDropIgnoresStaleHigh(t *testing.T) {
	tr := NewPriceTracker(time.Hour, 100)
	base := time.Now()

	tr.RecordAt(domain.SideUp, 0.95, base)
	tr.RecordAt(domain.SideUp, 0.50, base.Add(5*time.Minute))
	tr.RecordAt(domain.SideUp, 0.48, base.Add(5*time.Minute+10*time.Second))

	// the 0.95 print is outside the one-minute lookback, so no signal
	_, ok := tr.DetectDrop(domain.SideUp, 0.30, time.Minute)
	assert.False(t, ok)
}

func TestPriceTracker_Clear(t *testing.T) {
	tr := NewPriceTracker(time.Minute, 100)
	tr.Record(domain.SideUp, 0.60)
	tr.Record(domain.SideDown, 0.40)
	tr.Clear()
	assert.Zero(t, tr.HistoryCount(domain.SideUp))
	assert.Zero(t, tr.HistoryCount(domain.SideDown))
}
