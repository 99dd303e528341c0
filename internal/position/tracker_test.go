package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestTracker_OpenAssignsID(t *testing.T) {
	tr := NewTracker(0.10, 0.20)

	p := tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-1")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Equal(t, 1, tr.OpenCount())
}

func TestTracker_EvaluateExits_TakeProfit(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	p := tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-1")

	// +12% of cost: 0.25*40 = 10 cost, pnl = (0.28-0.25)*40 = 1.2
	exits := tr.EvaluateExits(map[string]float64{"tok-down": 0.28})
	require.Len(t, exits, 1)
	assert.Equal(t, ExitTakeProfit, exits[0].Kind)
	assert.Equal(t, p.ID, exits[0].Position.ID)
	assert.InDelta(t, 1.2, exits[0].PnL, 1e-9)
}

func TestTracker_EvaluateExits_StopLoss(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-1")

	// -20% of cost: pnl = (0.20-0.25)*40 = -2.0 on cost 10
	exits := tr.EvaluateExits(map[string]float64{"tok-down": 0.20})
	require.Len(t, exits, 1)
	assert.Equal(t, ExitStopLoss, exits[0].Kind)
	assert.InDelta(t, -2.0, exits[0].PnL, 1e-9)
}

func TestTracker_EvaluateExits_TakeProfitWinsWhenBothWouldFire(t *testing.T) {
	// degenerate thresholds where any move qualifies for both rules
	tr := NewTracker(0.0, 0.0)
	tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-1")

	exits := tr.EvaluateExits(map[string]float64{"tok-up": 0.50})
	require.Len(t, exits, 1)
	assert.Equal(t, ExitTakeProfit, exits[0].Kind)
}

func TestTracker_EvaluateExits_SkipsMissingAndFlatPrices(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-1")
	tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-2")

	exits := tr.EvaluateExits(map[string]float64{"tok-up": 0, "tok-down": 0.28})
	require.Len(t, exits, 1)
	assert.Equal(t, "tok-down", exits[0].Position.TokenID)
}

func TestTracker_EvaluateExits_PreservesOpeningOrder(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	first := tr.Open(domain.SideUp, "tok-a", 0.50, 10, "ord-1")
	second := tr.Open(domain.SideUp, "tok-b", 0.50, 10, "ord-2")

	exits := tr.EvaluateExits(map[string]float64{"tok-a": 0.60, "tok-b": 0.60})
	require.Len(t, exits, 2)
	assert.Equal(t, first.ID, exits[0].Position.ID)
	assert.Equal(t, second.ID, exits[1].Position.ID)
}

func TestTracker_CloseRealizesStats(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	win := tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-1")
	loss := tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-2")

	closed, err := tr.Close(win.ID, 0.28, 1.2)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.ExitPrice)
	assert.InDelta(t, 0.28, *closed.ExitPrice, 1e-9)

	_, err = tr.Close(loss.ID, 0.45, -0.5)
	require.NoError(t, err)

	stats := tr.Stats()
	assert.Equal(t, 2, stats.TradesClosed)
	assert.InDelta(t, 0.7, stats.TotalPnL, 1e-9)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 50.0, stats.WinRate(), 1e-9)
	assert.Zero(t, tr.OpenCount())
	assert.Len(t, tr.ClosedPositions(), 2)
}

func TestTracker_CloseTwiceReturnsPositionClosed(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	p := tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-1")

	_, err := tr.Close(p.ID, 0.55, 0.5)
	require.NoError(t, err)

	_, err = tr.Close(p.ID, 0.55, 0.5)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	// stats unaffected by the rejected second close
	assert.Equal(t, 1, tr.Stats().TradesClosed)
}

func TestTracker_CloseUnknownReturnsNotFound(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	_, err := tr.Close("nope", 0.5, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTracker_CanOpen(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	assert.True(t, tr.CanOpen(1))
	tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-1")
	assert.False(t, tr.CanOpen(1))
	assert.True(t, tr.CanOpen(0)) // zero means unlimited
}

func TestTracker_UnrealizedPnL(t *testing.T) {
	tr := NewTracker(0.10, 0.20)
	tr.Open(domain.SideUp, "tok-up", 0.50, 10, "ord-1")
	tr.Open(domain.SideDown, "tok-down", 0.25, 40, "ord-2")

	total := tr.UnrealizedPnL(map[string]float64{"tok-up": 0.55, "tok-down": 0.24})
	assert.InDelta(t, 0.5-0.4, total, 1e-9)
}
