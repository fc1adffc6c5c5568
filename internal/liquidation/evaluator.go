package liquidation

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
)

// Reader is the protocol read surface the evaluator needs (satisfied by
// *comet.Reader).
type Reader interface {
	IsLiquidatable(ctx context.Context, account common.Address) (bool, error)
	BaseToken(ctx context.Context) (common.Address, error)
	CollateralReserves(ctx context.Context, asset common.Address) (*big.Int, error)
	QuoteCollateral(ctx context.Context, asset common.Address, baseAmount *big.Int) (*big.Int, error)
	QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)
}

type Config struct {
	// Assets is the ordered collateral allowlist. Assets[0] is the asset used
	// for the external round-trip quote.
	Assets []common.Address
	// UnitOfBase is the base amount passed to quoteCollateral.
	UnitOfBase *big.Int
	// GasCost is the assumed cost of the absorb in base units.
	GasCost *big.Int
	// MinProfit is the strict lower bound on NetProfit for a candidate to be
	// actionable.
	MinProfit *big.Int
	// PoolFee is the Uniswap v3 fee tier put into each PoolConfig.
	PoolFee uint32
	// MaxPurchase caps the collateral bought per asset.
	MaxPurchase *big.Int

	Now func() time.Time
}

// Leg is the plan for one collateral asset.
type Leg struct {
	Asset      common.Address
	Reserve    *big.Int
	Quote      *big.Int
	BaseNeeded *big.Int
}

// Candidate is the outcome of evaluating one account at one point in time.
type Candidate struct {
	Account  common.Address
	Eligible bool

	BaseAsset       common.Address
	Legs            []Leg
	TotalBaseNeeded *big.Int
	CollateralOut   *big.Int
	Proceeds        *big.Int
	GasCost         *big.Int
	NetProfit       *big.Int
	MinProfit       *big.Int

	MaxPurchase []*big.Int
	PoolConfigs []comet.PoolConfig

	EvaluatedAt time.Time
}

// Actionable reports whether the candidate is eligible and clears the profit
// floor.
func (c *Candidate) Actionable() bool {
	if c == nil || !c.Eligible || c.NetProfit == nil {
		return false
	}
	floor := c.MinProfit
	if floor == nil {
		floor = new(big.Int)
	}
	return c.NetProfit.Cmp(floor) > 0
}

// Assets returns the ordered collateral assets of the plan.
func (c *Candidate) Assets() []common.Address {
	out := make([]common.Address, 0, len(c.Legs))
	for _, leg := range c.Legs {
		out = append(out, leg.Asset)
	}
	return out
}

// Evaluator computes liquidation candidates. It only reads chain state and is
// safe for concurrent use.
type Evaluator struct {
	reader Reader
	cfg    Config
}

func NewEvaluator(reader Reader, cfg Config) (*Evaluator, error) {
	if reader == nil {
		return nil, fmt.Errorf("evaluator: reader required")
	}
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("evaluator: at least one collateral asset required")
	}
	if cfg.UnitOfBase == nil || cfg.UnitOfBase.Sign() <= 0 {
		return nil, fmt.Errorf("evaluator: unit of base must be > 0")
	}
	if cfg.PoolFee == 0 || cfg.PoolFee >= 1<<24 {
		return nil, fmt.Errorf("evaluator: pool fee must be in (0,2^24), got %d", cfg.PoolFee)
	}
	if cfg.GasCost == nil {
		cfg.GasCost = new(big.Int)
	}
	if cfg.GasCost.Sign() < 0 {
		return nil, fmt.Errorf("evaluator: gas cost must be >= 0")
	}
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	if cfg.MaxPurchase == nil || cfg.MaxPurchase.Sign() <= 0 {
		return nil, fmt.Errorf("evaluator: max purchase must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Assets = append([]common.Address(nil), cfg.Assets...)
	return &Evaluator{reader: reader, cfg: cfg}, nil
}

// BaseNeeded returns reserve * unitOfBase / quote, truncated toward zero.
func BaseNeeded(reserve, quote, unitOfBase *big.Int) (*big.Int, error) {
	if quote == nil || quote.Sign() == 0 {
		return nil, comet.ErrZeroQuote
	}
	n := new(big.Int).Mul(reserve, unitOfBase)
	return n.Quo(n, quote), nil
}

// Evaluate reads the account and market state and builds a candidate. An
// account that is not liquidatable yields Eligible=false with no further reads.
func (e *Evaluator) Evaluate(ctx context.Context, account common.Address) (*Candidate, error) {
	c := &Candidate{
		Account:   account,
		GasCost:   new(big.Int).Set(e.cfg.GasCost),
		MinProfit: new(big.Int).Set(e.cfg.MinProfit),
	}

	ok, err := e.reader.IsLiquidatable(ctx, account)
	if err != nil {
		return nil, err
	}
	c.EvaluatedAt = e.cfg.Now()
	if !ok {
		return c, nil
	}
	c.Eligible = true

	base, err := e.reader.BaseToken(ctx)
	if err != nil {
		return nil, err
	}
	c.BaseAsset = base

	total := new(big.Int)
	for _, asset := range e.cfg.Assets {
		reserve, err := e.reader.CollateralReserves(ctx, asset)
		if err != nil {
			return nil, err
		}
		quote, err := e.reader.QuoteCollateral(ctx, asset, e.cfg.UnitOfBase)
		if err != nil {
			return nil, err
		}
		need, err := BaseNeeded(reserve, quote, e.cfg.UnitOfBase)
		if err != nil {
			return nil, &comet.PermanentReadError{Op: "quoteCollateral " + asset.Hex(), Err: err}
		}
		total.Add(total, need)
		c.Legs = append(c.Legs, Leg{Asset: asset, Reserve: reserve, Quote: quote, BaseNeeded: need})
		c.MaxPurchase = append(c.MaxPurchase, new(big.Int).Set(e.cfg.MaxPurchase))
		c.PoolConfigs = append(c.PoolConfigs, comet.UniswapPool(e.cfg.PoolFee))
	}
	c.TotalBaseNeeded = total

	if total.Sign() == 0 {
		// Nothing to buy back; the absorb would only cost gas.
		c.CollateralOut = new(big.Int)
		c.Proceeds = new(big.Int)
	} else {
		out, err := e.reader.QuoteExactOutput(ctx, base, e.cfg.Assets[0], total)
		if err != nil {
			return nil, err
		}
		back, err := e.reader.QuoteExactOutput(ctx, e.cfg.Assets[0], base, out)
		if err != nil {
			return nil, err
		}
		c.CollateralOut = out
		c.Proceeds = back
	}

	cost := new(big.Int).Add(c.TotalBaseNeeded, c.GasCost)
	c.NetProfit = new(big.Int).Sub(c.Proceeds, cost)
	return c, nil
}
