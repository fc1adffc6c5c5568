package comet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// TransientReadError is a read that failed for reasons expected to clear up
// (timeouts, dropped connections, provider throttling). The result is unknown;
// try again on the next trigger.
type TransientReadError struct {
	Op  string
	Err error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("%s: transient read error: %v", e.Op, e.Err)
}

func (e *TransientReadError) Unwrap() error { return e.Err }

// PermanentReadError is a read whose response could not be used: the call
// reverted, returned nothing, or did not decode against the expected ABI.
// It aborts the current evaluation but not the process.
type PermanentReadError struct {
	Op  string
	Err error
}

func (e *PermanentReadError) Error() string {
	return fmt.Sprintf("%s: permanent read error: %v", e.Op, e.Err)
}

func (e *PermanentReadError) Unwrap() error { return e.Err }

var (
	errEmptyResult = errors.New("empty call result")
	ErrZeroQuote   = errors.New("zero quote")
)

// IsTransient reports whether err (or anything it wraps) is a TransientReadError.
func IsTransient(err error) bool {
	var te *TransientReadError
	return errors.As(err, &te)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentReadError.
func IsPermanent(err error) bool {
	var pe *PermanentReadError
	return errors.As(err, &pe)
}

// classifyCallError maps an eth_call failure onto the read error taxonomy.
// Reverts carry error data and are deterministic for the current state.
// Timeouts, transport errors and other JSON-RPC failures are transient.
func classifyCallError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return &PermanentReadError{Op: op, Err: err}
	}
	return &TransientReadError{Op: op, Err: err}
}
