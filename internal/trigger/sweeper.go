package trigger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultSweepInterval    = 60 * time.Second
	DefaultSweepConcurrency = 4
)

// Snapshotter returns the current watched set (satisfied by *watch.Ledger).
type Snapshotter interface {
	Snapshot() []common.Address
}

// SweepObserver is told when a sweep finishes.
type SweepObserver interface {
	SweepDone(accounts int, elapsed time.Duration)
}

type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
	// RPS paces the start of account checks. Zero means unlimited.
	RPS float64
}

// Sweeper periodically checks every watched account.
type Sweeper struct {
	ledger  Snapshotter
	checker Checker
	obs     SweepObserver
	cfg     SweepConfig
	limiter *rate.Limiter

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewSweeper(ledger Snapshotter, checker Checker, cfg SweepConfig, obs SweepObserver) (*Sweeper, error) {
	if ledger == nil || checker == nil {
		return nil, fmt.Errorf("sweeper: ledger and checker required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSweepConcurrency
	}
	if cfg.RPS < 0 {
		return nil, fmt.Errorf("sweeper: rps must be >= 0")
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Sweeper{ledger: ledger, checker: checker, obs: obs, cfg: cfg, limiter: limiter}, nil
}

// Run sweeps every interval until ctx is done. A tick that fires while a
// sweep is running is dropped. Run does not wait for the running sweep; use
// Wait for that.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				log.Printf("[sweep] previous sweep still running, skipping tick")
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.running.Store(false)
				s.Sweep(ctx)
			}()
		}
	}
}

// Wait blocks until the sweep started by Run, if any, has returned.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

// Sweep checks every account in a snapshot of the ledger with bounded
// concurrency and returns how many checks were started.
func (s *Sweeper) Sweep(ctx context.Context) int {
	accounts := s.ledger.Snapshot()
	start := time.Now()
	log.Printf("[sweep] scanning %d accounts", len(accounts))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	started := 0
	for _, account := range accounts {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		started++
		account := account
		g.Go(func() error {
			_, _ = s.checker.Check(ctx, account)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	if s.obs != nil {
		s.obs.SweepDone(started, elapsed)
	}
	log.Printf("[sweep] done checked=%d elapsed=%s", started, elapsed.Truncate(time.Millisecond))
	return started
}
