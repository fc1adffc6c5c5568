package main

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocknwa/Liquidation-Bot/internal/chainconn"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
	"github.com/rocknwa/Liquidation-Bot/internal/trigger"
	"github.com/rocknwa/Liquidation-Bot/internal/watch"
)

type closingSub struct{ errc chan error }

func (s *closingSub) Err() <-chan error { return s.errc }
func (s *closingSub) Unsubscribe()      {}

type countingChecker struct{ calls atomic.Int32 }

func (c *countingChecker) Check(ctx context.Context, account common.Address) (*liquidation.Attempt, error) {
	c.calls.Add(1)
	return nil, ctx.Err()
}

func testBorrowLog(account common.Address) types.Log {
	return types.Log{
		Address: common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3"),
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Borrow(address,uint256)")),
			common.BytesToHash(account.Bytes()),
		},
		Data: big.NewInt(1).FillBytes(make([]byte, 32)),
	}
}

func TestSubscriptionCloseEndsRunWithConnectionFailure(t *testing.T) {
	sup := chainconn.NewSupervisor()
	runCtx, cancel := superviseRun(context.Background(), sup)
	defer cancel()

	sub := &closingSub{errc: make(chan error)}
	sup.Watch(runCtx, "comet logs subscription", sub)

	ledger := watch.NewLedger()
	ledger.Add(common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	checker := &countingChecker{}
	listener := trigger.NewListener(ledger, checker, nil)
	sweeper, err := trigger.NewSweeper(ledger, checker, trigger.SweepConfig{Interval: time.Hour, Concurrency: 2}, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	close(sub.errc)
	select {
	case <-runCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run context not cancelled after subscription close")
	}

	listener.Handle(runCtx, testBorrowLog(common.HexToAddress("0x00000000000000000000000000000000000000bb")))
	listener.Wait()
	if n := sweeper.Sweep(runCtx); n != 0 {
		t.Fatalf("sweep started %d checks after failure", n)
	}
	if n := checker.calls.Load(); n != 0 {
		t.Fatalf("checks after failure=%d want 0", n)
	}

	failure := sup.Err()
	if !errors.Is(failure, chainconn.ErrSubscriptionClosed) {
		t.Fatalf("failure=%v", failure)
	}
	if code := exitCode(failure, nil); code != exitConnectionFailure {
		t.Fatalf("exit=%d want %d", code, exitConnectionFailure)
	}
}

func TestSuperviseRunFollowsParent(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	sup := chainconn.NewSupervisor()
	runCtx, cancel := superviseRun(parent, sup)
	defer cancel()

	stop()
	select {
	case <-runCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run context not cancelled with parent")
	}
	if sup.Err() != nil {
		t.Fatalf("graceful stop recorded a failure: %v", sup.Err())
	}
}

func TestExitCode(t *testing.T) {
	conn := &chainconn.ConnectionFailure{Source: "head subscription", Err: chainconn.ErrHeadTimeout}
	cases := []struct {
		name    string
		failure error
		runErr  error
		want    int
	}{
		{"clean", nil, nil, exitOK},
		{"runtime error", nil, errors.New("listen tcp: address in use"), exitStartup},
		{"connection failure", conn, nil, exitConnectionFailure},
		{"connection failure wins", conn, errors.New("other"), exitConnectionFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.failure, tc.runErr); got != tc.want {
			t.Fatalf("%s: exit=%d want %d", tc.name, got, tc.want)
		}
	}
}
