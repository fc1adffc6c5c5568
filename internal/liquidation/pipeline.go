package liquidation

import (
	"context"
	"errors"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
	"github.com/rocknwa/Liquidation-Bot/internal/ethutil"
)

// Executor runs an attempt for a candidate (satisfied by *Engine).
type Executor interface {
	Execute(ctx context.Context, c *Candidate) *Attempt
}

// Observer is told about every evaluation, successful or not.
type Observer interface {
	Evaluated(account common.Address, c *Candidate, err error)
}

type PipelineOptions struct {
	Observer Observer
	// BaseDecimals only affects how amounts are logged.
	BaseDecimals int32
}

// Pipeline evaluates one account and hands actionable candidates to the
// executor.
type Pipeline struct {
	eval   Rechecker
	exec   Executor
	obs    Observer
	baseDp int32
}

func NewPipeline(eval Rechecker, exec Executor, opts PipelineOptions) *Pipeline {
	return &Pipeline{eval: eval, exec: exec, obs: opts.Observer, baseDp: opts.BaseDecimals}
}

// Check evaluates account and executes when actionable. It returns the
// attempt if one was made. Once ctx is done no new evaluation starts.
// Per-account failures are logged, not propagated as fatal.
func (p *Pipeline) Check(ctx context.Context, account common.Address) (*Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := p.eval.Evaluate(ctx, account)
	if p.obs != nil {
		p.obs.Evaluated(account, c, err)
	}
	if err != nil {
		if ctx.Err() == nil {
			level := "[warn]"
			if comet.IsTransient(err) {
				level = "[info]"
			}
			log.Printf("%s evaluate %s: %v", level, account.Hex(), err)
		}
		return nil, err
	}
	if !c.Eligible {
		return nil, nil
	}

	log.Printf("[liq] %s is liquidatable base_needed=%s proceeds=%s gas=%s net=%s",
		account.Hex(),
		ethutil.FormatUnits(c.TotalBaseNeeded, p.baseDp),
		ethutil.FormatUnits(c.Proceeds, p.baseDp),
		ethutil.FormatUnits(c.GasCost, p.baseDp),
		ethutil.FormatUnits(c.NetProfit, p.baseDp),
	)
	if !c.Actionable() {
		log.Printf("[liq] %s not profitable, skipping", account.Hex())
		return nil, nil
	}

	a := p.exec.Execute(ctx, c)
	p.logAttempt(a)
	return a, nil
}

func (p *Pipeline) logAttempt(a *Attempt) {
	if a == nil {
		return
	}
	acct := a.Account.Hex()
	switch a.Outcome {
	case OutcomeConfirmed:
		log.Printf("[liq] liquidated %s in tx %s block=%d gas_used=%d", acct, a.TxHash.Hex(), a.BlockNumber, a.GasUsed)
	case OutcomeReverted:
		log.Printf("[info] absorb of %s reverted (likely lost the race): %v", acct, a.Err)
	case OutcomeSkipped:
		switch {
		case errors.Is(a.Err, ErrDryRun):
			log.Printf("[liq] dry-run: would absorb %s gas_limit=%d", acct, a.GasLimit)
		case errors.Is(a.Err, ErrInFlight):
			log.Printf("[info] %s already in flight", acct)
		default:
			log.Printf("[info] %s skipped: %v", acct, a.Err)
		}
	default:
		log.Printf("[warn] absorb of %s %s: %v", acct, a.Outcome, a.Err)
	}
}
