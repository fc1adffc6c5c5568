package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocknwa/Liquidation-Bot/internal/chainconn"
	"github.com/rocknwa/Liquidation-Bot/internal/ethutil"
)

const (
	defaultOutFile = "./out/liquidations.jsonl"

	// WETH, WBTC, LINK, UNI, COMP on Ethereum mainnet.
	defaultCollateral = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2," +
		"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599," +
		"0x514910771AF9Ca656af840dff83E8264EcF986CA," +
		"0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984," +
		"0xc00e94Cb662C3520282E6f5717214004A7f26888"
)

type args struct {
	rpcWS      string
	privateKey *ecdsa.PrivateKey
	liquidator common.Address
	comet      common.Address
	quoter     common.Address

	assets       []common.Address
	watch        []common.Address
	gasBufferBps uint64
	minProfit    *big.Int
	gasCost      *big.Int
	unitOfBase   *big.Int
	baseDecimals int32
	poolFee      uint32
	maxPurchase  *big.Int
	threshold    *big.Int

	sweepInterval    time.Duration
	sweepConcurrency int
	sweepRPS         float64
	bootstrapBlocks  uint64

	readTimeout    time.Duration
	confirmTimeout time.Duration
	recheckAfter   time.Duration
	headTimeout    time.Duration
	dialTimeout    time.Duration

	enableExecution bool
	outFile         string
	metricsAddr     string
}

// envLookup returns the first non-empty environment value among names.
type envLookup func(names ...string) string

func newEnvLookup(getenv func(string) string) envLookup {
	return func(names ...string) string {
		values := make([]string, 0, len(names))
		for _, n := range names {
			values = append(values, getenv(n))
		}
		return strings.TrimSpace(firstNonEmpty(values...))
	}
}

func parseArgs(fs *flag.FlagSet, argv []string, getenv func(string) string) (args, error) {
	env := newEnvLookup(getenv)

	envOr := func(def string, names ...string) string {
		if v := env(names...); v != "" {
			return v
		}
		return def
	}
	durationDefault := func(name string, def time.Duration) (time.Duration, error) {
		raw := env(name)
		if raw == "" {
			return def, nil
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		return v, nil
	}
	uintDefault := func(name string, def uint64) (uint64, error) {
		raw := env(name)
		if raw == "" {
			return def, nil
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		return v, nil
	}

	var (
		firstErr error
		keep     = func(err error) {
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	)

	sweepIntervalDef, err := durationDefault("SWEEP_INTERVAL", 60*time.Second)
	keep(err)
	readTimeoutDef, err := durationDefault("READ_TIMEOUT", 5*time.Second)
	keep(err)
	confirmTimeoutDef, err := durationDefault("CONFIRM_TIMEOUT", 5*time.Minute)
	keep(err)
	recheckAfterDef, err := durationDefault("RECHECK_AFTER", 0)
	keep(err)
	headTimeoutDef, err := durationDefault("HEAD_TIMEOUT", 2*time.Minute)
	keep(err)
	dialTimeoutDef, err := durationDefault("DIAL_TIMEOUT", chainconn.DefaultDialTimeout)
	keep(err)
	gasBufferDef, err := uintDefault("GAS_BUFFER_BPS", 12_000)
	keep(err)
	baseDecimalsDef, err := uintDefault("BASE_DECIMALS", 6)
	keep(err)
	poolFeeDef, err := uintDefault("POOL_FEE", 3000)
	keep(err)
	concurrencyDef, err := uintDefault("SWEEP_CONCURRENCY", 4)
	keep(err)
	bootstrapDef, err := uintDefault("BOOTSTRAP_BLOCKS", 0)
	keep(err)

	sweepRPSDef := 0.0
	if raw := env("SWEEP_RPS"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			keep(fmt.Errorf("invalid SWEEP_RPS %q: %w", raw, err))
		}
		sweepRPSDef = v
	}
	enableDef := false
	if raw := env("ENABLE_EXECUTION"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			keep(fmt.Errorf("invalid ENABLE_EXECUTION %q: %w", raw, err))
		}
		enableDef = v
	}
	if firstErr != nil {
		return args{}, firstErr
	}

	var (
		rpcFlag, keyFlag, liquidatorFlag, cometFlag, quoterFlag string
		collateralFlag, accountsFlag                            string
		minProfitFlag, gasCostFlag, unitFlag, maxFlag           string
		thresholdFlag, outFlag, metricsFlag                     string
		gasBufferFlag, baseDecimalsFlag, poolFeeFlag            uint64
		concurrencyFlag, bootstrapFlag                          uint64
		rpsFlag                                                 float64
		parsed                                                  args
	)

	fs.StringVar(&rpcFlag, "rpc-ws", envOr("", "RPC_WS_URL", "ALCHEMY_MAINNET_WS", "RPC_URL"), "Ethereum WebSocket RPC URL (ws:// or wss://)")
	fs.StringVar(&keyFlag, "private-key", "", "Execution account private key hex (or PRIVATE_KEY env)")
	fs.StringVar(&liquidatorFlag, "liquidator", envOr("", "LIQUIDATOR_CONTRACT"), "Liquidator contract address")
	fs.StringVar(&cometFlag, "comet", envOr("", "COMET_ADDRESS"), "Comet market address")
	fs.StringVar(&quoterFlag, "quoter", envOr("", "UNISWAP_QUOTER"), "Uniswap v3 quoter address")
	fs.StringVar(&collateralFlag, "collateral", envOr(defaultCollateral, "COLLATERAL_ASSETS"), "Ordered collateral asset allowlist (comma-separated)")
	fs.StringVar(&accountsFlag, "accounts", envOr("", "WATCH_ACCOUNTS"), "Accounts to watch from startup (comma-separated)")

	fs.Uint64Var(&gasBufferFlag, "gas-buffer-bps", gasBufferDef, "Gas limit multiplier in basis points (12000 = 1.2x)")
	fs.StringVar(&minProfitFlag, "min-profit", envOr("0", "MIN_PROFIT"), "Minimum net profit in base units")
	fs.StringVar(&gasCostFlag, "gas-cost", envOr("2000000000000000", "GAS_COST_ESTIMATE"), "Assumed absorb gas cost in base units")
	fs.StringVar(&unitFlag, "unit-of-base", envOr("1e18", "UNIT_OF_BASE"), "Base amount used for quoteCollateral")
	fs.Uint64Var(&baseDecimalsFlag, "base-decimals", baseDecimalsDef, "Base asset decimals (log formatting only)")
	fs.Uint64Var(&poolFeeFlag, "pool-fee", poolFeeDef, "Uniswap v3 fee tier for quotes and swaps")
	fs.StringVar(&maxFlag, "max-purchase", envOr("1000e18", "MAX_PURCHASE"), "Max collateral purchase per asset")
	fs.StringVar(&thresholdFlag, "liquidation-threshold", envOr("0", "LIQUIDATION_THRESHOLD"), "Liquidator contract liquidationThreshold argument")

	fs.DurationVar(&parsed.sweepInterval, "sweep-interval", sweepIntervalDef, "Interval between full sweeps")
	fs.Uint64Var(&concurrencyFlag, "sweep-concurrency", concurrencyDef, "Concurrent account checks per sweep")
	fs.Float64Var(&rpsFlag, "sweep-rps", sweepRPSDef, "Account checks started per second during a sweep (0 = unlimited)")
	fs.Uint64Var(&bootstrapFlag, "bootstrap-blocks", bootstrapDef, "Scan this many past blocks for accounts at startup (0 = off)")

	fs.DurationVar(&parsed.readTimeout, "read-timeout", readTimeoutDef, "Per eth_call timeout")
	fs.DurationVar(&parsed.confirmTimeout, "confirm-timeout", confirmTimeoutDef, "Max wait for a receipt")
	fs.DurationVar(&parsed.recheckAfter, "recheck-after", recheckAfterDef, "Re-evaluate before sending when the candidate is older than this")
	fs.DurationVar(&parsed.headTimeout, "head-timeout", headTimeoutDef, "Fail when no new head arrives for this long (0 = off)")
	fs.DurationVar(&parsed.dialTimeout, "dial-timeout", dialTimeoutDef, "Give up connecting after this long")

	fs.BoolVar(&parsed.enableExecution, "enable-execution", enableDef, "Actually send liquidation transactions (default is dry-run)")
	fs.StringVar(&outFlag, "out", envOr(defaultOutFile, "LIQUIDATOR_OUT_FILE"), "JSONL output path for decisions and attempts (empty = off)")
	fs.StringVar(&metricsFlag, "metrics-addr", envOr("", "METRICS_ADDR"), "Prometheus listen address, e.g. :9102 (empty = off)")

	if err := fs.Parse(argv); err != nil {
		return args{}, err
	}

	parsed.rpcWS = strings.TrimSpace(rpcFlag)
	if parsed.rpcWS == "" {
		return args{}, fmt.Errorf("rpc url required via --rpc-ws or RPC_WS_URL/ALCHEMY_MAINNET_WS")
	}
	if err := chainconn.ValidateWSURL(parsed.rpcWS); err != nil {
		return args{}, err
	}

	for _, a := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"liquidator", liquidatorFlag, &parsed.liquidator},
		{"comet", cometFlag, &parsed.comet},
		{"quoter", quoterFlag, &parsed.quoter},
	} {
		if strings.TrimSpace(a.raw) == "" {
			return args{}, fmt.Errorf("%s address required", a.name)
		}
		addr, err := ethutil.ParseAddress(a.raw)
		if err != nil {
			return args{}, fmt.Errorf("invalid --%s: %w", a.name, err)
		}
		*a.dst = addr
	}

	assets, err := ethutil.ParseAddressList(collateralFlag)
	if err != nil {
		return args{}, fmt.Errorf("invalid collateral list: %w", err)
	}
	if len(assets) == 0 {
		return args{}, fmt.Errorf("at least one collateral asset required")
	}
	parsed.assets = assets

	if parsed.watch, err = ethutil.ParseAddressList(accountsFlag); err != nil {
		return args{}, fmt.Errorf("invalid accounts list: %w", err)
	}

	for _, a := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"min-profit", minProfitFlag, &parsed.minProfit},
		{"gas-cost", gasCostFlag, &parsed.gasCost},
		{"unit-of-base", unitFlag, &parsed.unitOfBase},
		{"max-purchase", maxFlag, &parsed.maxPurchase},
		{"liquidation-threshold", thresholdFlag, &parsed.threshold},
	} {
		v, err := ethutil.ParseAmount(a.raw)
		if err != nil {
			return args{}, fmt.Errorf("invalid --%s: %w", a.name, err)
		}
		*a.dst = v
	}
	if parsed.unitOfBase.Sign() == 0 {
		return args{}, fmt.Errorf("--unit-of-base must be > 0")
	}
	if parsed.maxPurchase.Sign() == 0 {
		return args{}, fmt.Errorf("--max-purchase must be > 0")
	}

	if gasBufferFlag < 10_000 {
		return args{}, fmt.Errorf("--gas-buffer-bps must be >= 10000 (got %d)", gasBufferFlag)
	}
	parsed.gasBufferBps = gasBufferFlag
	if poolFeeFlag == 0 || poolFeeFlag >= 1<<24 {
		return args{}, fmt.Errorf("--pool-fee must be in (0,2^24) (got %d)", poolFeeFlag)
	}
	parsed.poolFee = uint32(poolFeeFlag)
	if baseDecimalsFlag > 36 {
		return args{}, fmt.Errorf("--base-decimals too large (got %d)", baseDecimalsFlag)
	}
	parsed.baseDecimals = int32(baseDecimalsFlag)

	if parsed.sweepInterval <= 0 {
		return args{}, fmt.Errorf("--sweep-interval must be > 0")
	}
	if concurrencyFlag == 0 || concurrencyFlag > 256 {
		return args{}, fmt.Errorf("--sweep-concurrency must be in [1,256] (got %d)", concurrencyFlag)
	}
	parsed.sweepConcurrency = int(concurrencyFlag)
	if rpsFlag < 0 {
		return args{}, fmt.Errorf("--sweep-rps must be >= 0")
	}
	parsed.sweepRPS = rpsFlag
	parsed.bootstrapBlocks = bootstrapFlag

	if parsed.readTimeout <= 0 || parsed.confirmTimeout <= 0 || parsed.dialTimeout <= 0 {
		return args{}, fmt.Errorf("read, confirm and dial timeouts must be > 0")
	}
	if parsed.recheckAfter < 0 || parsed.headTimeout < 0 {
		return args{}, fmt.Errorf("recheck-after and head-timeout must be >= 0")
	}

	keyHex := firstNonEmpty(keyFlag, getenv("PRIVATE_KEY"))
	if strings.TrimSpace(keyHex) != "" {
		pk, err := parsePrivateKey(keyHex)
		if err != nil {
			return args{}, err
		}
		parsed.privateKey = pk
	} else if parsed.enableExecution {
		return args{}, fmt.Errorf("--enable-execution requires --private-key or PRIVATE_KEY")
	}

	parsed.outFile = strings.TrimSpace(outFlag)
	parsed.metricsAddr = strings.TrimSpace(metricsFlag)
	return parsed, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
