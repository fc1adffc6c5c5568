package liquidation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
)

const (
	DefaultGasBufferBps   = 12_000
	DefaultConfirmTimeout = 5 * time.Minute
	DefaultSubmitTimeout  = 30 * time.Second
)

type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Terminal reports whether no further records follow for the attempt.
func (o Outcome) Terminal() bool { return o != OutcomeSubmitted }

// Attempt is the record of one try at liquidating one account.
type Attempt struct {
	ID        uuid.UUID
	Account   common.Address
	Candidate *Candidate

	GasEstimate uint64
	GasLimit    uint64
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64

	Outcome    Outcome
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Submitter sends liquidation transactions (satisfied by *comet.Liquidator).
type Submitter interface {
	EstimateGas(ctx context.Context, data []byte) (uint64, error)
	Send(ctx context.Context, data []byte, gasLimit uint64) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Rechecker re-evaluates an account right before submission.
type Rechecker interface {
	Evaluate(ctx context.Context, account common.Address) (*Candidate, error)
}

// Remover drops an account from the watched set (satisfied by *watch.Ledger).
type Remover interface {
	Remove(addr common.Address) bool
}

// Recorder receives a copy of every attempt record, including the
// intermediate Submitted record.
type Recorder interface {
	Record(a Attempt)
}

type EngineConfig struct {
	Comet common.Address
	// FlashLoanPairToken defaults to the candidate's base asset.
	FlashLoanPairToken   common.Address
	FlashLoanPoolFee     uint32
	LiquidationThreshold *big.Int

	// GasBufferBps multiplies the gas estimate; 12000 = 1.2x.
	GasBufferBps uint64
	// RecheckAfter is the candidate age beyond which it is re-evaluated
	// before sending. Zero rechecks every time.
	RecheckAfter time.Duration
	// NoRecheck disables the pre-submit recheck.
	NoRecheck bool

	SubmitTimeout  time.Duration
	ConfirmTimeout time.Duration

	// DryRun runs every check but never sends.
	DryRun bool

	Now func() time.Time
}

// Engine executes actionable candidates with at most one attempt in flight
// per account.
type Engine struct {
	sub     Submitter
	recheck Rechecker
	ledger  Remover
	rec     Recorder
	cfg     EngineConfig

	mu       sync.Mutex
	inFlight map[common.Address]struct{}
}

func NewEngine(sub Submitter, recheck Rechecker, ledger Remover, rec Recorder, cfg EngineConfig) (*Engine, error) {
	if sub == nil {
		return nil, fmt.Errorf("engine: submitter required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("engine: ledger required")
	}
	if cfg.Comet == (common.Address{}) {
		return nil, fmt.Errorf("engine: comet address required")
	}
	if recheck == nil && !cfg.NoRecheck {
		return nil, fmt.Errorf("engine: rechecker required unless recheck is disabled")
	}
	if cfg.GasBufferBps == 0 {
		cfg.GasBufferBps = DefaultGasBufferBps
	}
	if cfg.GasBufferBps < 10_000 {
		return nil, fmt.Errorf("engine: gas buffer must be >= 10000 bps, got %d", cfg.GasBufferBps)
	}
	if cfg.FlashLoanPoolFee >= 1<<24 {
		return nil, fmt.Errorf("engine: flash loan pool fee out of range: %d", cfg.FlashLoanPoolFee)
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		sub:      sub,
		recheck:  recheck,
		ledger:   ledger,
		rec:      rec,
		cfg:      cfg,
		inFlight: make(map[common.Address]struct{}),
	}, nil
}

// GasLimit applies a basis-point safety multiplier to a gas estimate.
func GasLimit(estimate, bps uint64) uint64 {
	return estimate * bps / 10_000
}

// InFlight reports whether an attempt for account is running.
func (e *Engine) InFlight(account common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[account]
	return ok
}

func (e *Engine) acquire(account common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[account]; ok {
		return false
	}
	e.inFlight[account] = struct{}{}
	return true
}

func (e *Engine) release(account common.Address) {
	e.mu.Lock()
	delete(e.inFlight, account)
	e.mu.Unlock()
}

// Execute runs one attempt for c and returns its terminal record. It never
// sends a candidate that is not actionable, and starts nothing once ctx is
// done. After an attempt starts, chain work is detached from ctx cancellation
// and bounded by the engine's own timeouts.
func (e *Engine) Execute(ctx context.Context, c *Candidate) *Attempt {
	a := &Attempt{ID: uuid.New(), Candidate: c, StartedAt: e.cfg.Now()}
	if c == nil {
		return e.finish(a, OutcomeSkipped, ErrNotActionable)
	}
	a.Account = c.Account
	if !c.Actionable() {
		return e.finish(a, OutcomeSkipped, ErrNotActionable)
	}
	if err := ctx.Err(); err != nil {
		return e.finish(a, OutcomeSkipped, err)
	}
	if !e.acquire(c.Account) {
		return e.finish(a, OutcomeSkipped, ErrInFlight)
	}
	defer e.release(c.Account)

	work := context.WithoutCancel(ctx)

	data, err := e.calldata(c)
	if err != nil {
		return e.finish(a, OutcomeFailed, &SubmissionFailure{Stage: "pack", Err: err})
	}

	estCtx, cancel := context.WithTimeout(work, e.cfg.SubmitTimeout)
	gas, err := e.sub.EstimateGas(estCtx, data)
	cancel()
	if err != nil {
		return e.finish(a, OutcomeFailed, &SubmissionFailure{Stage: "estimate", Err: err})
	}
	a.GasEstimate = gas
	a.GasLimit = GasLimit(gas, e.cfg.GasBufferBps)

	if e.needsRecheck(c) {
		fresh, err := e.recheck.Evaluate(work, c.Account)
		if err != nil {
			return e.finish(a, OutcomeSkipped, fmt.Errorf("%w: %w", ErrStale, err))
		}
		if !fresh.Actionable() {
			a.Candidate = fresh
			return e.finish(a, OutcomeSkipped, ErrStale)
		}
		a.Candidate = fresh
	}

	if e.cfg.DryRun {
		return e.finish(a, OutcomeSkipped, ErrDryRun)
	}

	sendCtx, cancel := context.WithTimeout(work, e.cfg.SubmitTimeout)
	tx, err := e.sub.Send(sendCtx, data, a.GasLimit)
	cancel()
	if err != nil {
		return e.finish(a, OutcomeFailed, &SubmissionFailure{Stage: "send", Err: err})
	}
	a.TxHash = tx.Hash()
	a.Outcome = OutcomeSubmitted
	e.record(a)

	waitCtx, cancel := context.WithTimeout(work, e.cfg.ConfirmTimeout)
	receipt, err := e.sub.WaitMined(waitCtx, tx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return e.finish(a, OutcomeFailed, fmt.Errorf("%w after %s: %s", ErrConfirmTimeout, e.cfg.ConfirmTimeout, a.TxHash.Hex()))
		}
		return e.finish(a, OutcomeFailed, &SubmissionFailure{Stage: "wait", Err: err})
	}
	if receipt.BlockNumber != nil {
		a.BlockNumber = receipt.BlockNumber.Uint64()
	}
	a.GasUsed = receipt.GasUsed

	if receipt.Status != types.ReceiptStatusSuccessful {
		return e.finish(a, OutcomeReverted, &RevertedExecution{TxHash: a.TxHash, BlockNumber: a.BlockNumber, GasUsed: a.GasUsed})
	}
	e.ledger.Remove(c.Account)
	return e.finish(a, OutcomeConfirmed, nil)
}

func (e *Engine) needsRecheck(c *Candidate) bool {
	if e.cfg.NoRecheck || e.recheck == nil {
		return false
	}
	return e.cfg.Now().Sub(c.EvaluatedAt) >= e.cfg.RecheckAfter
}

func (e *Engine) calldata(c *Candidate) ([]byte, error) {
	pair := e.cfg.FlashLoanPairToken
	if pair == (common.Address{}) {
		pair = c.BaseAsset
	}
	call := comet.AbsorbCall{
		Comet:                e.cfg.Comet,
		Accounts:             []common.Address{c.Account},
		Assets:               c.Assets(),
		PoolConfigs:          c.PoolConfigs,
		MaxAmountsToPurchase: c.MaxPurchase,
		FlashLoanPairToken:   pair,
		FlashLoanPoolFee:     new(big.Int).SetUint64(uint64(e.cfg.FlashLoanPoolFee)),
		LiquidationThreshold: e.cfg.LiquidationThreshold,
	}
	return call.Pack()
}

func (e *Engine) finish(a *Attempt, outcome Outcome, err error) *Attempt {
	a.Outcome = outcome
	a.Err = err
	a.FinishedAt = e.cfg.Now()
	e.record(a)
	return a
}

func (e *Engine) record(a *Attempt) {
	if e.rec == nil {
		return
	}
	e.rec.Record(*a)
}
