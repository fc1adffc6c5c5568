package trigger

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
)

// Checker evaluates one account end to end (satisfied by *liquidation.Pipeline).
type Checker interface {
	Check(ctx context.Context, account common.Address) (*liquidation.Attempt, error)
}

// Adder inserts an account into the watched set (satisfied by *watch.Ledger).
type Adder interface {
	Add(addr common.Address) bool
}

// EventObserver is told about every decoded event.
type EventObserver interface {
	EventSeen(ev *comet.AccountEvent, added bool)
}

// Listener turns Comet logs into ledger inserts and immediate checks.
type Listener struct {
	ledger  Adder
	checker Checker
	obs     EventObserver

	wg sync.WaitGroup
}

func NewListener(ledger Adder, checker Checker, obs EventObserver) *Listener {
	return &Listener{ledger: ledger, checker: checker, obs: obs}
}

// Run dispatches logs until ctx is done. Logs are handled in arrival order by
// this single loop; immediate checks run in their own goroutines.
func (l *Listener) Run(ctx context.Context, logs <-chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case vLog, ok := <-logs:
			if !ok {
				return nil
			}
			l.Handle(ctx, vLog)
		}
	}
}

// Handle processes a single log.
func (l *Listener) Handle(ctx context.Context, vLog types.Log) {
	if vLog.Removed {
		return
	}
	ev, err := comet.DecodeLog(vLog)
	if err != nil {
		if !errors.Is(err, comet.ErrUnknownEvent) {
			log.Printf("[warn] decode comet log tx=%s idx=%d: %v", vLog.TxHash.Hex(), vLog.Index, err)
		}
		return
	}
	if ev.Account == (common.Address{}) {
		return
	}

	added := l.ledger.Add(ev.Account)
	if l.obs != nil {
		l.obs.EventSeen(ev, added)
	}
	log.Printf("[event] %s account=%s block=%d new=%v", ev.Kind, ev.Account.Hex(), ev.BlockNumber, added)

	if !ev.ImmediateCheck() || ctx.Err() != nil {
		return
	}
	l.wg.Add(1)
	go func(account common.Address) {
		defer l.wg.Done()
		_, _ = l.checker.Check(ctx, account)
	}(ev.Account)
}

// Wait blocks until every immediate check started by Handle has returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}
