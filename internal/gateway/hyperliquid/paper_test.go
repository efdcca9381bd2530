package hyperliquid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hypertrader/internal/gateway/exchange"
)

func TestApplySlippage(t *testing.T) {
	// 30 bps 按半档计算：50000 × 0.003 / 2 = 75。
	assert.InDelta(t, 50075, applySlippage(50000, exchange.SideLong, 30), 1e-9)
	assert.InDelta(t, 49925, applySlippage(50000, exchange.SideShort, 30), 1e-9)
	assert.InDelta(t, 50000, applySlippage(50000, exchange.SideLong, 0), 1e-9)
}

func TestPaperReduceRealizesPnl(t *testing.T) {
	g := NewPaperGateway(nil, 10000)
	g.positions["BTC"] = exchange.Position{
		Coin: "BTC", Side: exchange.SideLong, EntryPrice: 100, Size: 2, Leverage: 3,
	}

	res, err := g.reduceLocked("BTC", 110, 2)
	assert.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.InDelta(t, 10020, g.balance, 1e-9)
	_, stillOpen := g.positions["BTC"]
	assert.False(t, stillOpen)
}

func TestPaperReduceShortPnlSign(t *testing.T) {
	g := NewPaperGateway(nil, 10000)
	g.positions["ETH"] = exchange.Position{
		Coin: "ETH", Side: exchange.SideShort, EntryPrice: 100, Size: 1, Leverage: 3,
	}

	_, err := g.reduceLocked("ETH", 110, 1)
	assert.NoError(t, err)
	assert.InDelta(t, 9990, g.balance, 1e-9, "空头在价格上涨时亏损")
}

func TestPaperPartialReduceKeepsRemainder(t *testing.T) {
	g := NewPaperGateway(nil, 10000)
	g.positions["BTC"] = exchange.Position{
		Coin: "BTC", Side: exchange.SideLong, EntryPrice: 100, Size: 2, Leverage: 3,
	}

	_, err := g.reduceLocked("BTC", 110, 0.5)
	assert.NoError(t, err)
	assert.InDelta(t, 1.5, g.positions["BTC"].Size, 1e-9)
	assert.InDelta(t, 10005, g.balance, 1e-9)
}

func TestIntervalDuration(t *testing.T) {
	d, ok := intervalDuration("1h")
	assert.True(t, ok)
	assert.Equal(t, "1h0m0s", d.String())
	_, ok = intervalDuration("3h")
	assert.False(t, ok)
}
