package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rocknwa/Liquidation-Bot/internal/chainconn"
	"github.com/rocknwa/Liquidation-Bot/internal/comet"
	"github.com/rocknwa/Liquidation-Bot/internal/dotenv"
	"github.com/rocknwa/Liquidation-Bot/internal/ethutil"
	"github.com/rocknwa/Liquidation-Bot/internal/jsonl"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
	"github.com/rocknwa/Liquidation-Bot/internal/metrics"
	"github.com/rocknwa/Liquidation-Bot/internal/trigger"
	"github.com/rocknwa/Liquidation-Bot/internal/watch"
)

const (
	exitOK                = 0
	exitStartup           = 1
	exitConnectionFailure = 3
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}
	parsed, err := parseArgs(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	os.Exit(run(parsed))
}

func run(parsed args) int {
	runStartedAt := time.Now()
	mode := liqMode(parsed.enableExecution)

	out, err := jsonl.Open(parsed.outFile)
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	if out != nil {
		log.Printf("Liquidation log: %s (JSONL)", out.Path())
		defer func() {
			if err := out.Close(); err != nil {
				log.Printf("[warn] liquidation log close: %v", err)
			}
		}()
	}

	log.Printf("Comet liquidator → %s", parsed.comet.Hex())
	log.Printf("Liquidator contract: %s", parsed.liquidator.Hex())
	log.Printf("Collateral: %s", ethutil.JoinHex(parsed.assets))
	log.Printf("Sweep: every %s (concurrency=%d rps=%g)", parsed.sweepInterval, parsed.sweepConcurrency, parsed.sweepRPS)
	log.Printf("Gas buffer: %d bps; gas cost estimate: %s", parsed.gasBufferBps, ethutil.FormatUnits(parsed.gasCost, parsed.baseDecimals))
	log.Printf("Dry-run: %v", !parsed.enableExecution)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, headNum, err := chainconn.Dial(ctx, parsed.rpcWS, chainconn.DialOptions{Timeout: parsed.dialTimeout})
	if err != nil {
		if ctx.Err() != nil {
			return exitOK
		}
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	defer client.Close()

	callCtx, cancel := context.WithTimeout(ctx, parsed.readTimeout)
	chainID, err := client.ChainID(callCtx)
	cancel()
	if err != nil {
		log.Printf("[fatal] chain id: %v", err)
		return exitStartup
	}
	log.Printf("Connected chain_id=%s head=%d", chainID, headNum)

	ledger := watch.NewLedger()
	for _, acct := range parsed.watch {
		ledger.Add(acct)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, func() float64 { return float64(ledger.Len()) })
	if err != nil {
		log.Printf("[fatal] metrics: %v", err)
		return exitStartup
	}
	rec := &recorder{out: out, metrics: m, mode: mode, started: runStartedAt}

	reader, err := comet.NewReader(client, comet.ReaderConfig{
		Comet:   parsed.comet,
		Quoter:  parsed.quoter,
		PoolFee: parsed.poolFee,
		Timeout: parsed.readTimeout,
	})
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	evaluator, err := liquidation.NewEvaluator(reader, liquidation.Config{
		Assets:      parsed.assets,
		UnitOfBase:  parsed.unitOfBase,
		GasCost:     parsed.gasCost,
		MinProfit:   parsed.minProfit,
		PoolFee:     parsed.poolFee,
		MaxPurchase: parsed.maxPurchase,
	})
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	liq, err := comet.NewLiquidator(client, parsed.liquidator, parsed.privateKey, chainID)
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	executor := ""
	if parsed.privateKey != nil {
		executor = crypto.PubkeyToAddress(parsed.privateKey.PublicKey).Hex()
		log.Printf("Executor: %s", executor)
	}
	engine, err := liquidation.NewEngine(liq, evaluator, ledger, rec, liquidation.EngineConfig{
		Comet:                parsed.comet,
		FlashLoanPoolFee:     parsed.poolFee,
		LiquidationThreshold: parsed.threshold,
		GasBufferBps:         parsed.gasBufferBps,
		RecheckAfter:         parsed.recheckAfter,
		ConfirmTimeout:       parsed.confirmTimeout,
		DryRun:               !parsed.enableExecution,
	})
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}
	pipeline := liquidation.NewPipeline(evaluator, engine, liquidation.PipelineOptions{
		Observer:     rec,
		BaseDecimals: parsed.baseDecimals,
	})

	if parsed.bootstrapBlocks > 0 {
		from := uint64(0)
		if headNum+1 > parsed.bootstrapBlocks {
			from = headNum + 1 - parsed.bootstrapBlocks
		}
		log.Printf("Bootstrapping accounts from logs [%d..%d]...", from, headNum)
		added, err := trigger.Bootstrap(ctx, client, parsed.comet, ledger, from, headNum)
		if err != nil {
			if ctx.Err() != nil {
				return exitOK
			}
			log.Printf("[warn] bootstrap incomplete: %v", err)
		}
		log.Printf("Bootstrap added %d accounts", added)
	}
	log.Printf("Watching %d accounts", ledger.Len())

	logLiqEvent(out, liqLogEvent{
		TsMs:       time.Now().UnixMilli(),
		Event:      "start",
		Mode:       mode,
		ChainID:    chainID.Uint64(),
		Comet:      parsed.comet.Hex(),
		Liquidator: parsed.liquidator.Hex(),
		Executor:   executor,
		HeadBlock:  headNum,
		Watched:    ledger.Len(),
	})

	sup := chainconn.NewSupervisor()
	runCtx, cancelRun := superviseRun(ctx, sup)
	defer cancelRun()

	logsCh := make(chan types.Log, 2048)
	logSub, err := client.SubscribeFilterLogs(runCtx, comet.EventQuery(parsed.comet), logsCh)
	if err != nil {
		log.Printf("[fatal] subscribe comet logs: %v", err)
		return exitConnectionFailure
	}
	defer logSub.Unsubscribe()
	headsCh := make(chan *types.Header, 16)
	headSub, err := client.SubscribeNewHead(runCtx, headsCh)
	if err != nil {
		log.Printf("[fatal] subscribe heads: %v", err)
		return exitConnectionFailure
	}
	defer headSub.Unsubscribe()

	sup.Watch(runCtx, "comet logs subscription", logSub)
	sup.Watch(runCtx, "head subscription", headSub)
	sup.WatchHeads(runCtx, headsCh, parsed.headTimeout, m.ObserveHead)

	listener := trigger.NewListener(ledger, pipeline, m)
	sweeper, err := trigger.NewSweeper(ledger, pipeline, trigger.SweepConfig{
		Interval:    parsed.sweepInterval,
		Concurrency: parsed.sweepConcurrency,
		RPS:         parsed.sweepRPS,
	}, m)
	if err != nil {
		log.Printf("[fatal] %v", err)
		return exitStartup
	}

	log.Printf("Listening…")
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return listener.Run(gctx, logsCh) })
	g.Go(func() error { return sweeper.Run(gctx) })
	if parsed.metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, parsed.metricsAddr, reg) })
	}
	runErr := g.Wait()
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		log.Printf("[fatal] %v", runErr)
	}

	failure := sup.Err()
	if failure == nil {
		log.Printf("Shutting down...")
		// Let running checks finish; in-flight attempts are bounded by their own timeouts.
		listener.Wait()
		sweeper.Wait()
	}

	ev := liqLogEvent{
		TsMs:     time.Now().UnixMilli(),
		Event:    "shutdown",
		Mode:     mode,
		Watched:  ledger.Len(),
		Ok:       failure == nil,
		UptimeMs: time.Since(runStartedAt).Milliseconds(),
	}
	switch {
	case failure != nil:
		ev.Err = failure.Error()
	case runErr != nil:
		ev.Ok = false
		ev.Err = runErr.Error()
	}
	logLiqEvent(out, ev)

	return exitCode(failure, runErr)
}

// superviseRun derives the run context: it is cancelled when ctx is done or
// sup reports a connection failure.
func superviseRun(ctx context.Context, sup *chainconn.Supervisor) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-sup.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, cancel
}

// exitCode maps how the run ended onto the process exit status. A lost
// connection takes precedence over other runtime errors.
func exitCode(failure, runErr error) int {
	switch {
	case failure != nil:
		return exitConnectionFailure
	case runErr != nil:
		return exitStartup
	}
	return exitOK
}
