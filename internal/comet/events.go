package comet

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type EventKind string

const (
	EventBorrow             EventKind = "borrow"
	EventSupply             EventKind = "supply"
	EventWithdraw           EventKind = "withdraw"
	EventSupplyCollateral   EventKind = "supply_collateral"
	EventWithdrawCollateral EventKind = "withdraw_collateral"
)

// eventLayout describes where an event carries the account it names.
type eventLayout struct {
	kind EventKind
	// topic index of the account whose position changed
	accountTopic int
	// topic index of the asset, 0 if the event has none
	assetTopic int
	topics     int
}

var (
	borrowTopic             = crypto.Keccak256Hash([]byte("Borrow(address,uint256)"))
	supplyTopic             = crypto.Keccak256Hash([]byte("Supply(address,address,uint256)"))
	withdrawTopic           = crypto.Keccak256Hash([]byte("Withdraw(address,address,uint256)"))
	supplyCollateralTopic   = crypto.Keccak256Hash([]byte("SupplyCollateral(address,address,address,uint256)"))
	withdrawCollateralTopic = crypto.Keccak256Hash([]byte("WithdrawCollateral(address,address,address,uint256)"))

	eventLayouts = map[common.Hash]eventLayout{
		// Borrow(address indexed user, uint256 amount)
		borrowTopic: {kind: EventBorrow, accountTopic: 1, topics: 2},
		// Supply(address indexed user, address indexed asset, uint256 amount)
		supplyTopic: {kind: EventSupply, accountTopic: 1, assetTopic: 2, topics: 3},
		// Withdraw(address indexed user, address indexed asset, uint256 amount)
		withdrawTopic: {kind: EventWithdraw, accountTopic: 1, assetTopic: 2, topics: 3},
		// SupplyCollateral(address indexed from, address indexed dst, address indexed asset, uint256 amount)
		supplyCollateralTopic: {kind: EventSupplyCollateral, accountTopic: 2, assetTopic: 3, topics: 4},
		// WithdrawCollateral(address indexed src, address indexed to, address indexed asset, uint256 amount)
		withdrawCollateralTopic: {kind: EventWithdrawCollateral, accountTopic: 1, assetTopic: 3, topics: 4},
	}

	ErrUnknownEvent = errors.New("not a watched comet event")
)

// AccountEvent is a decoded Comet log that names an account.
type AccountEvent struct {
	Kind    EventKind
	Account common.Address
	Asset   common.Address
	Amount  *big.Int

	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	Removed     bool
}

// ImmediateCheck reports whether the event should trigger an evaluation right
// away instead of waiting for the next sweep. Borrowing is the action most
// likely to push an account over the liquidation threshold.
func (e *AccountEvent) ImmediateCheck() bool {
	return e != nil && e.Kind == EventBorrow
}

// DecodeLog decodes a watched Comet event. Logs with other topics return
// ErrUnknownEvent.
func DecodeLog(vLog types.Log) (*AccountEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	layout, ok := eventLayouts[vLog.Topics[0]]
	if !ok {
		return nil, ErrUnknownEvent
	}
	if len(vLog.Topics) < layout.topics {
		return nil, fmt.Errorf("%s: unexpected topics len=%d", layout.kind, len(vLog.Topics))
	}
	if len(vLog.Data) < 32 {
		return nil, fmt.Errorf("%s: unexpected data len=%d", layout.kind, len(vLog.Data))
	}

	ev := &AccountEvent{
		Kind:        layout.kind,
		Account:     common.BytesToAddress(vLog.Topics[layout.accountTopic].Bytes()),
		Amount:      new(big.Int).SetBytes(vLog.Data[:32]),
		TxHash:      vLog.TxHash,
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,
		Removed:     vLog.Removed,
	}
	if layout.assetTopic > 0 {
		ev.Asset = common.BytesToAddress(vLog.Topics[layout.assetTopic].Bytes())
	}
	return ev, nil
}

// EventQuery returns the filter for every watched event emitted by cometAddr.
func EventQuery(cometAddr common.Address) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{cometAddr},
		Topics: [][]common.Hash{{
			borrowTopic,
			supplyTopic,
			withdrawTopic,
			supplyCollateralTopic,
			withdrawCollateralTopic,
		}},
	}
}
