package liquidation

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testComet = common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3")
	testBase  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testWETH  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testWBTC  = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	testUser  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeReader struct {
	mu sync.Mutex

	liquidatable  bool
	reserves      map[common.Address]*big.Int
	quotes        map[common.Address]*big.Int
	collateralOut *big.Int
	proceeds      *big.Int
	err           error

	calls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		liquidatable:  true,
		reserves:      map[common.Address]*big.Int{},
		quotes:        map[common.Address]*big.Int{},
		collateralOut: big.NewInt(0),
		proceeds:      big.NewInt(0),
	}
}

func (f *fakeReader) setProceeds(v int64) {
	f.mu.Lock()
	f.proceeds = big.NewInt(v)
	f.mu.Unlock()
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeReader) IsLiquidatable(ctx context.Context, account common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.liquidatable, f.err
}

func (f *fakeReader) BaseToken(ctx context.Context) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return testBase, nil
}

func (f *fakeReader) CollateralReserves(ctx context.Context, asset common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if v, ok := f.reserves[asset]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) QuoteCollateral(ctx context.Context, asset common.Address, baseAmount *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if v, ok := f.quotes[asset]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(1), nil
}

func (f *fakeReader) QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if tokenIn == testBase {
		return new(big.Int).Set(f.collateralOut), nil
	}
	return new(big.Int).Set(f.proceeds), nil
}

// fakeSubmitter records calls. When block is non-nil WaitMined waits on it.
type fakeSubmitter struct {
	mu sync.Mutex

	estimate  uint64
	status    uint64
	estimates int
	sends     int
	gasLimits []uint64
	sendErr   error

	// onEstimate runs at the start of EstimateGas.
	onEstimate func()

	sent  chan struct{}
	block chan struct{}
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{estimate: 100_000, status: types.ReceiptStatusSuccessful, sent: make(chan struct{}, 16)}
}

func (f *fakeSubmitter) counts() (estimates, sends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.estimates, f.sends
}

func (f *fakeSubmitter) EstimateGas(ctx context.Context, data []byte) (uint64, error) {
	if f.onEstimate != nil {
		f.onEstimate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates++
	return f.estimate, nil
}

func (f *fakeSubmitter) Send(ctx context.Context, data []byte, gasLimit uint64) (*types.Transaction, error) {
	f.mu.Lock()
	f.sends++
	f.gasLimits = append(f.gasLimits, gasLimit)
	n := uint64(f.sends)
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.sent <- struct{}{}
	return types.NewTx(&types.LegacyTx{Nonce: n, Gas: gasLimit, GasPrice: big.NewInt(1), Data: data}), nil
}

func (f *fakeSubmitter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Receipt{Status: f.status, TxHash: tx.Hash(), BlockNumber: big.NewInt(42), GasUsed: 90_000}, nil
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (m *memRecorder) Record(a Attempt) {
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
}

func (m *memRecorder) outcomes() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outcome, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, a.Outcome)
	}
	return out
}
