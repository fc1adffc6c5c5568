package liquidation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	next  Executor
}

func (c *countingExecutor) Execute(ctx context.Context, cand *Candidate) *Attempt {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.next == nil {
		return &Attempt{Account: cand.Account, Outcome: OutcomeSkipped, Err: ErrDryRun}
	}
	return c.next.Execute(ctx, cand)
}

type evalLog struct {
	mu   sync.Mutex
	errs []error
}

func (e *evalLog) Evaluated(_ common.Address, _ *Candidate, err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func TestPipelineNotEligibleNeverExecutes(t *testing.T) {
	r, ev := newScenario(t, 5100)
	r.liquidatable = false
	exec := &countingExecutor{}
	p := NewPipeline(ev, exec, PipelineOptions{})

	a, err := p.Check(context.Background(), testUser)
	if err != nil || a != nil {
		t.Fatalf("attempt=%v err=%v", a, err)
	}
	if exec.calls != 0 {
		t.Fatalf("execute called %d times", exec.calls)
	}
}

func TestPipelineProfitableExecutes(t *testing.T) {
	f := newEngineFixture(t, 5100, nil)
	obs := &evalLog{}
	p := NewPipeline(f.eval, f.engine, PipelineOptions{Observer: obs, BaseDecimals: 6})

	a, err := p.Check(context.Background(), testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil || a.Outcome != OutcomeConfirmed {
		t.Fatalf("attempt=%+v", a)
	}
	if a.Candidate.NetProfit.Int64() != 80 {
		t.Fatalf("net=%s want 80", a.Candidate.NetProfit)
	}
	if f.ledger.Contains(testUser) {
		t.Fatalf("account should be removed after confirmation")
	}
	if len(obs.errs) != 1 || obs.errs[0] != nil {
		t.Fatalf("observer saw %v", obs.errs)
	}
}

func TestPipelineUnprofitableSkips(t *testing.T) {
	f := newEngineFixture(t, 4990, nil)
	exec := &countingExecutor{next: f.engine}
	p := NewPipeline(f.eval, exec, PipelineOptions{})

	a, err := p.Check(context.Background(), testUser)
	if err != nil || a != nil {
		t.Fatalf("attempt=%v err=%v", a, err)
	}
	if exec.calls != 0 {
		t.Fatalf("unprofitable candidate reached the executor")
	}
	if _, sends := f.sub.counts(); sends != 0 {
		t.Fatalf("sends=%d want 0", sends)
	}
	if !f.ledger.Contains(testUser) {
		t.Fatalf("account must stay watched")
	}
}

func TestPipelineStopsAfterShutdown(t *testing.T) {
	r, ev := newScenario(t, 5100)
	p := NewPipeline(ev, &countingExecutor{}, PipelineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Check(ctx, testUser); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := r.callCount(); n != 0 {
		t.Fatalf("evaluation started after shutdown: %d reads", n)
	}
}

func TestPipelineConcurrentTriggersOneSubmission(t *testing.T) {
	f := newEngineFixture(t, 5100, nil)
	f.sub.block = make(chan struct{})
	p := NewPipeline(f.eval, f.engine, PipelineOptions{})

	// The first check holds the in-flight slot until WaitMined is released.
	first := make(chan *Attempt, 1)
	go func() {
		a, _ := p.Check(context.Background(), testUser)
		first <- a
	}()
	<-f.sub.sent

	var wg sync.WaitGroup
	var mu sync.Mutex
	var skipped int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := p.Check(context.Background(), testUser)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if a != nil && errors.Is(a.Err, ErrInFlight) {
				mu.Lock()
				skipped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(f.sub.block)
	if a := <-first; a == nil || a.Outcome != OutcomeConfirmed {
		t.Fatalf("first attempt=%+v", a)
	}

	if _, sends := f.sub.counts(); sends != 1 {
		t.Fatalf("sends=%d want 1", sends)
	}
	if skipped != 8 {
		t.Fatalf("skipped=%d want 8", skipped)
	}
}

// cancelAfterEval cancels the run right after a successful evaluation.
type cancelAfterEval struct {
	eval   *Evaluator
	cancel context.CancelFunc
}

func (c *cancelAfterEval) Evaluate(ctx context.Context, account common.Address) (*Candidate, error) {
	cand, err := c.eval.Evaluate(ctx, account)
	c.cancel()
	return cand, err
}

func TestPipelineShutdownDuringEvaluationSendsNothing(t *testing.T) {
	f := newEngineFixture(t, 5100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPipeline(&cancelAfterEval{eval: f.eval, cancel: cancel}, f.engine, PipelineOptions{})

	a, _ := p.Check(ctx, testUser)
	if a == nil || a.Outcome != OutcomeSkipped || !errors.Is(a.Err, context.Canceled) {
		t.Fatalf("attempt=%+v", a)
	}
	if est, sends := f.sub.counts(); est != 0 || sends != 0 {
		t.Fatalf("estimates=%d sends=%d want 0/0", est, sends)
	}
	if !f.ledger.Contains(testUser) {
		t.Fatalf("account must stay watched")
	}
}
