package comet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Exchange identifiers understood by the liquidator contract's PoolConfig.
const (
	ExchangeUniswap  uint8 = 0
	ExchangeSushi    uint8 = 1
	ExchangeBalancer uint8 = 2
	ExchangeCurve    uint8 = 3
)

// PoolConfig tells the liquidator how to sell one collateral asset. Field
// names follow the tuple components of the contract ABI.
type PoolConfig struct {
	Exchange       uint8
	UniswapPoolFee *big.Int
	SwapViaWeth    bool
	BalancerPoolId [32]byte
	CurvePool      common.Address
}

// UniswapPool returns a PoolConfig that routes a direct swap through the
// Uniswap v3 pool with the given fee tier.
func UniswapPool(fee uint32) PoolConfig {
	return PoolConfig{
		Exchange:       ExchangeUniswap,
		UniswapPoolFee: new(big.Int).SetUint64(uint64(fee)),
	}
}

// AbsorbCall holds the arguments of absorbAndArbitrage.
type AbsorbCall struct {
	Comet                common.Address
	Accounts             []common.Address
	Assets               []common.Address
	PoolConfigs          []PoolConfig
	MaxAmountsToPurchase []*big.Int
	FlashLoanPairToken   common.Address
	FlashLoanPoolFee     *big.Int
	LiquidationThreshold *big.Int
}

// Pack validates the call and returns its calldata.
func (c AbsorbCall) Pack() ([]byte, error) {
	if c.Comet == (common.Address{}) {
		return nil, fmt.Errorf("absorbAndArbitrage: comet address required")
	}
	if len(c.Accounts) == 0 {
		return nil, fmt.Errorf("absorbAndArbitrage: no accounts")
	}
	if len(c.Assets) != len(c.PoolConfigs) || len(c.Assets) != len(c.MaxAmountsToPurchase) {
		return nil, fmt.Errorf("absorbAndArbitrage: length mismatch assets=%d pools=%d max=%d", len(c.Assets), len(c.PoolConfigs), len(c.MaxAmountsToPurchase))
	}
	fee := c.FlashLoanPoolFee
	if fee == nil {
		fee = new(big.Int)
	}
	threshold := c.LiquidationThreshold
	if threshold == nil {
		threshold = new(big.Int)
	}
	return liquidatorABI.Pack("absorbAndArbitrage",
		c.Comet,
		c.Accounts,
		c.Assets,
		c.PoolConfigs,
		c.MaxAmountsToPurchase,
		c.FlashLoanPairToken,
		fee,
		threshold,
	)
}

// Backend is the subset of *ethclient.Client used to submit and track
// liquidation transactions.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

var ErrNoSigner = errors.New("liquidator: no signing key configured")

// Liquidator submits calls to the liquidator contract from the execution account.
type Liquidator struct {
	backend Backend
	address common.Address
	from    common.Address
	opts    *bind.TransactOpts
	bound   *bind.BoundContract
}

// NewLiquidator binds the liquidator contract at address. A nil key yields a
// client that can estimate gas but not send.
func NewLiquidator(backend Backend, address common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*Liquidator, error) {
	if backend == nil {
		return nil, fmt.Errorf("liquidator: backend required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("liquidator: contract address required")
	}
	l := &Liquidator{
		backend: backend,
		address: address,
		bound:   bind.NewBoundContract(address, liquidatorABI, backend, backend, backend),
	}
	if key != nil {
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("liquidator: transactor: %w", err)
		}
		l.opts = opts
		l.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return l, nil
}

func (l *Liquidator) Address() common.Address { return l.address }

// From returns the execution account, or the zero address without a key.
func (l *Liquidator) From() common.Address { return l.from }

func (l *Liquidator) EstimateGas(ctx context.Context, data []byte) (uint64, error) {
	to := l.address
	return l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &to, Data: data})
}

// Send signs and submits calldata with an explicit gas limit.
func (l *Liquidator) Send(ctx context.Context, data []byte, gasLimit uint64) (*types.Transaction, error) {
	if l.opts == nil {
		return nil, ErrNoSigner
	}
	opts := *l.opts
	opts.Context = ctx
	opts.GasLimit = gasLimit
	return l.bound.RawTransact(&opts, data)
}

// WaitMined blocks until tx is included or ctx is done.
func (l *Liquidator) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, l.backend, tx)
}
