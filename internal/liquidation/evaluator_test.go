package liquidation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
)

func newScenario(t *testing.T, proceeds int64) (*fakeReader, *Evaluator) {
	t.Helper()
	r := newFakeReader()
	r.reserves[testWETH] = big.NewInt(5000)
	r.quotes[testWETH] = big.NewInt(1)
	r.collateralOut = big.NewInt(4000)
	r.proceeds = big.NewInt(proceeds)

	ev, err := NewEvaluator(r, Config{
		Assets:      []common.Address{testWETH},
		UnitOfBase:  big.NewInt(1),
		GasCost:     big.NewInt(20),
		PoolFee:     3000,
		MaxPurchase: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return r, ev
}

func TestBaseNeededTruncates(t *testing.T) {
	cases := []struct {
		reserve, quote, unit int64
		want                 string
	}{
		{1000, 500, 1000, "2000"},
		{1000, 300, 1000, "3333"},
		{0, 7, 1000, "0"},
		{1, 3, 1, "0"},
	}
	for _, tc := range cases {
		got, err := BaseNeeded(big.NewInt(tc.reserve), big.NewInt(tc.quote), big.NewInt(tc.unit))
		if err != nil {
			t.Fatalf("BaseNeeded(%d,%d,%d): %v", tc.reserve, tc.quote, tc.unit, err)
		}
		if got.String() != tc.want {
			t.Fatalf("BaseNeeded(%d,%d,%d)=%s want %s", tc.reserve, tc.quote, tc.unit, got, tc.want)
		}
	}
	if _, err := BaseNeeded(big.NewInt(1), big.NewInt(0), big.NewInt(1)); !errors.Is(err, comet.ErrZeroQuote) {
		t.Fatalf("expected ErrZeroQuote, got %v", err)
	}
}

func TestEvaluateNotEligibleStopsReading(t *testing.T) {
	r, ev := newScenario(t, 5100)
	r.liquidatable = false

	c, err := ev.Evaluate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Eligible || c.Actionable() {
		t.Fatalf("expected ineligible candidate, got %+v", c)
	}
	if n := r.callCount(); n != 1 {
		t.Fatalf("expected only isLiquidatable to be read, got %d calls", n)
	}
}

func TestEvaluateProfitable(t *testing.T) {
	_, ev := newScenario(t, 5100)

	c, err := ev.Evaluate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Eligible {
		t.Fatalf("expected eligible")
	}
	if c.TotalBaseNeeded.Int64() != 5000 || c.CollateralOut.Int64() != 4000 || c.Proceeds.Int64() != 5100 {
		t.Fatalf("plan mismatch: need=%s out=%s back=%s", c.TotalBaseNeeded, c.CollateralOut, c.Proceeds)
	}
	if c.NetProfit.Int64() != 80 {
		t.Fatalf("net=%s want 80", c.NetProfit)
	}
	if !c.Actionable() {
		t.Fatalf("expected actionable")
	}
	if c.BaseAsset != testBase {
		t.Fatalf("base=%s", c.BaseAsset.Hex())
	}
	if len(c.PoolConfigs) != 1 || c.PoolConfigs[0].Exchange != comet.ExchangeUniswap || c.PoolConfigs[0].UniswapPoolFee.Int64() != 3000 {
		t.Fatalf("pool configs=%+v", c.PoolConfigs)
	}
	if len(c.MaxPurchase) != 1 || c.MaxPurchase[0].Int64() != 1000 {
		t.Fatalf("max purchase=%v", c.MaxPurchase)
	}
}

func TestEvaluateUnprofitableAndBreakEven(t *testing.T) {
	cases := []struct {
		proceeds int64
		net      int64
	}{
		{4990, -30},
		{5020, 0},
	}
	for _, tc := range cases {
		_, ev := newScenario(t, tc.proceeds)
		c, err := ev.Evaluate(context.Background(), testUser)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.NetProfit.Int64() != tc.net {
			t.Fatalf("proceeds=%d: net=%s want %d", tc.proceeds, c.NetProfit, tc.net)
		}
		if c.Actionable() {
			t.Fatalf("proceeds=%d: expected not actionable", tc.proceeds)
		}
	}
}

func TestEvaluateMinProfitFloor(t *testing.T) {
	r, _ := newScenario(t, 5100)
	ev, err := NewEvaluator(r, Config{
		Assets:      []common.Address{testWETH},
		UnitOfBase:  big.NewInt(1),
		GasCost:     big.NewInt(20),
		MinProfit:   big.NewInt(80),
		PoolFee:     3000,
		MaxPurchase: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	c, err := ev.Evaluate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Actionable() {
		t.Fatalf("net equal to the floor must not be actionable")
	}
}

func TestEvaluateSumsLegsInOrder(t *testing.T) {
	r := newFakeReader()
	r.reserves[testWETH] = big.NewInt(1000)
	r.quotes[testWETH] = big.NewInt(500)
	r.reserves[testWBTC] = big.NewInt(1000)
	r.quotes[testWBTC] = big.NewInt(300)
	r.collateralOut = big.NewInt(1)
	r.proceeds = big.NewInt(1)

	ev, err := NewEvaluator(r, Config{
		Assets:      []common.Address{testWETH, testWBTC},
		UnitOfBase:  big.NewInt(1000),
		PoolFee:     3000,
		MaxPurchase: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	c, err := ev.Evaluate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TotalBaseNeeded.String() != "5333" {
		t.Fatalf("total=%s want 5333", c.TotalBaseNeeded)
	}
	assets := c.Assets()
	if len(assets) != 2 || assets[0] != testWETH || assets[1] != testWBTC {
		t.Fatalf("assets order=%v", assets)
	}
}

func TestEvaluateZeroQuoteIsPermanent(t *testing.T) {
	r, ev := newScenario(t, 5100)
	r.quotes[testWETH] = big.NewInt(0)

	_, err := ev.Evaluate(context.Background(), testUser)
	if !comet.IsPermanent(err) || !errors.Is(err, comet.ErrZeroQuote) {
		t.Fatalf("expected permanent zero-quote error, got %v", err)
	}
}

func TestEvaluateNoReserves(t *testing.T) {
	r, ev := newScenario(t, 5100)
	r.reserves[testWETH] = big.NewInt(0)

	c, err := ev.Evaluate(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.NetProfit.Int64() != -20 || c.Actionable() {
		t.Fatalf("expected gas-only loss, got net=%s", c.NetProfit)
	}
}

func TestEvaluatePropagatesReadError(t *testing.T) {
	r, ev := newScenario(t, 5100)
	r.err = &comet.TransientReadError{Op: "isLiquidatable", Err: context.DeadlineExceeded}

	if _, err := ev.Evaluate(context.Background(), testUser); !comet.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewEvaluatorValidates(t *testing.T) {
	r := newFakeReader()
	good := Config{Assets: []common.Address{testWETH}, UnitOfBase: big.NewInt(1), PoolFee: 3000, MaxPurchase: big.NewInt(1)}

	noAssets := good
	noAssets.Assets = nil
	noUnit := good
	noUnit.UnitOfBase = nil
	badFee := good
	badFee.PoolFee = 0
	noMax := good
	noMax.MaxPurchase = big.NewInt(0)
	negGas := good
	negGas.GasCost = big.NewInt(-1)

	for name, cfg := range map[string]Config{"no assets": noAssets, "no unit": noUnit, "bad fee": badFee, "no max": noMax, "negative gas": negGas} {
		if _, err := NewEvaluator(r, cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := NewEvaluator(r, good); err != nil {
		t.Fatalf("good config: %v", err)
	}
}
