package comet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const DefaultReadTimeout = 5 * time.Second

// Caller is the read side of the ledger client (satisfied by *ethclient.Client).
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type ReaderConfig struct {
	Comet  common.Address
	Quoter common.Address
	// PoolFee is the Uniswap v3 fee tier used for external quotes (3000 = 0.3%).
	PoolFee uint32
	// Timeout bounds every single eth_call. Zero means DefaultReadTimeout.
	Timeout time.Duration
}

// Reader performs the read-only queries used to evaluate an account.
// It is safe for concurrent use.
type Reader struct {
	caller  Caller
	comet   common.Address
	quoter  common.Address
	poolFee *big.Int
	timeout time.Duration

	baseMu sync.Mutex
	base   common.Address
}

func NewReader(caller Caller, cfg ReaderConfig) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("comet reader: caller required")
	}
	if cfg.Comet == (common.Address{}) {
		return nil, fmt.Errorf("comet reader: comet address required")
	}
	if cfg.Quoter == (common.Address{}) {
		return nil, fmt.Errorf("comet reader: quoter address required")
	}
	if cfg.PoolFee == 0 || cfg.PoolFee >= 1<<24 {
		return nil, fmt.Errorf("comet reader: pool fee must be in (0,2^24), got %d", cfg.PoolFee)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Reader{
		caller:  caller,
		comet:   cfg.Comet,
		quoter:  cfg.Quoter,
		poolFee: new(big.Int).SetUint64(uint64(cfg.PoolFee)),
		timeout: timeout,
	}, nil
}

func (r *Reader) IsLiquidatable(ctx context.Context, account common.Address) (bool, error) {
	const op = "isLiquidatable"
	out, err := r.call(ctx, r.comet, cometABI, op, account)
	if err != nil {
		return false, err
	}
	v, ok := out.(bool)
	if !ok {
		return false, &PermanentReadError{Op: op, Err: fmt.Errorf("unexpected type %T", out)}
	}
	return v, nil
}

// BaseToken returns the market's base asset. The first successful answer is
// cached since it never changes for a deployment.
func (r *Reader) BaseToken(ctx context.Context) (common.Address, error) {
	r.baseMu.Lock()
	defer r.baseMu.Unlock()
	if r.base != (common.Address{}) {
		return r.base, nil
	}

	const op = "baseToken"
	out, err := r.call(ctx, r.comet, cometABI, op)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out.(common.Address)
	if !ok {
		return common.Address{}, &PermanentReadError{Op: op, Err: fmt.Errorf("unexpected type %T", out)}
	}
	if addr == (common.Address{}) {
		return common.Address{}, &PermanentReadError{Op: op, Err: fmt.Errorf("zero base token")}
	}
	r.base = addr
	return addr, nil
}

func (r *Reader) CollateralReserves(ctx context.Context, asset common.Address) (*big.Int, error) {
	return r.callUint(ctx, r.comet, cometABI, "getCollateralReserves", asset)
}

// QuoteCollateral returns how much of asset the protocol gives for baseAmount
// of the base asset, at its internal (discounted) price.
func (r *Reader) QuoteCollateral(ctx context.Context, asset common.Address, baseAmount *big.Int) (*big.Int, error) {
	return r.callUint(ctx, r.comet, cometABI, "quoteCollateral", asset, baseAmount)
}

// QuoteExactOutput asks the external pool how much tokenIn is needed to
// receive amountOut of tokenOut.
func (r *Reader) QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	return r.callUint(ctx, r.quoter, quoterABI, "quoteExactOutputSingle", tokenIn, tokenOut, r.poolFee, amountOut, new(big.Int))
}

func (r *Reader) callUint(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := r.call(ctx, to, contract, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok || v == nil {
		return nil, &PermanentReadError{Op: method, Err: fmt.Errorf("unexpected type %T", out)}
	}
	return v, nil
}

// call packs, executes and unpacks a single-output eth_call.
func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) (any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, &PermanentReadError{Op: method, Err: fmt.Errorf("pack: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyCallError(method, err)
	}
	if len(out) == 0 {
		return nil, &PermanentReadError{Op: method, Err: errEmptyResult}
	}

	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, &PermanentReadError{Op: method, Err: fmt.Errorf("unpack: %w", err)}
	}
	if len(vals) != 1 {
		return nil, &PermanentReadError{Op: method, Err: fmt.Errorf("unexpected result len %d", len(vals))}
	}
	return vals[0], nil
}
