package liquidation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInFlight means another attempt for the same account has not finished.
	ErrInFlight = errors.New("liquidation already in flight for account")
	// ErrNotActionable means the candidate was not eligible or not profitable.
	ErrNotActionable = errors.New("candidate not actionable")
	// ErrStale means the pre-submit recheck no longer found a profitable absorb.
	ErrStale = errors.New("candidate stale on recheck")
	// ErrDryRun means every check passed but execution is disabled.
	ErrDryRun = errors.New("dry-run")
	// ErrConfirmTimeout means the transaction was sent but no receipt arrived in time.
	ErrConfirmTimeout = errors.New("confirmation timed out")
)

// SubmissionFailure is a failure to build, estimate, send or track the
// liquidation transaction.
type SubmissionFailure struct {
	Stage string // pack | estimate | send | wait
	Err   error
}

func (e *SubmissionFailure) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Stage, e.Err)
}

func (e *SubmissionFailure) Unwrap() error { return e.Err }

// RevertedExecution is a mined transaction with a failed status. It usually
// means a competing liquidator absorbed the account first.
type RevertedExecution struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

func (e *RevertedExecution) Error() string {
	return fmt.Sprintf("tx %s reverted in block %d (gas used %d)", e.TxHash.Hex(), e.BlockNumber, e.GasUsed)
}
