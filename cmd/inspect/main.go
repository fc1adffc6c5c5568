package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocknwa/Liquidation-Bot/internal/chainconn"
	"github.com/rocknwa/Liquidation-Bot/internal/comet"
	"github.com/rocknwa/Liquidation-Bot/internal/dotenv"
	"github.com/rocknwa/Liquidation-Bot/internal/ethutil"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
)

// WETH, WBTC, LINK, UNI, COMP on Ethereum mainnet.
const defaultCollateral = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2,0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599,0x514910771AF9Ca656af840dff83E8264EcF986CA,0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984,0xc00e94Cb662C3520282E6f5717214004A7f26888"

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var (
		rpcFlag        string
		cometFlag      string
		quoterFlag     string
		collateralFlag string
		accountsFlag   string
		executorFlag   string
		unitFlag       string
		gasCostFlag    string
		poolFee        uint
		baseDecimals   int
		timeout        time.Duration
	)
	flag.StringVar(&rpcFlag, "rpc-ws", "", "Ethereum WebSocket RPC URL (or RPC_WS_URL/ALCHEMY_MAINNET_WS)")
	flag.StringVar(&cometFlag, "comet", "", "Comet market address (or COMET_ADDRESS)")
	flag.StringVar(&quoterFlag, "quoter", "", "Uniswap v3 quoter address (or UNISWAP_QUOTER)")
	flag.StringVar(&collateralFlag, "collateral", "", "Ordered collateral allowlist (or COLLATERAL_ASSETS)")
	flag.StringVar(&accountsFlag, "accounts", "", "Accounts to evaluate (comma-separated)")
	flag.StringVar(&executorFlag, "executor", "", "Execution account to report the ETH balance of (default: signer from PRIVATE_KEY)")
	flag.StringVar(&unitFlag, "unit-of-base", "1e18", "Base amount used for quoteCollateral")
	flag.StringVar(&gasCostFlag, "gas-cost", "2000000000000000", "Assumed absorb gas cost in base units")
	flag.UintVar(&poolFee, "pool-fee", 3000, "Uniswap v3 fee tier")
	flag.IntVar(&baseDecimals, "base-decimals", 6, "Base asset decimals for display")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	rpcURL := firstNonEmpty(rpcFlag, os.Getenv("RPC_WS_URL"), os.Getenv("ALCHEMY_MAINNET_WS"), os.Getenv("RPC_URL"))
	if rpcURL == "" {
		log.Fatalf("[fatal] rpc url required via --rpc-ws or RPC_WS_URL")
	}
	cometAddr, err := ethutil.ParseAddress(firstNonEmpty(cometFlag, os.Getenv("COMET_ADDRESS")))
	if err != nil {
		log.Fatalf("[fatal] comet address: %v", err)
	}
	quoterAddr, err := ethutil.ParseAddress(firstNonEmpty(quoterFlag, os.Getenv("UNISWAP_QUOTER")))
	if err != nil {
		log.Fatalf("[fatal] quoter address: %v", err)
	}
	assets, err := ethutil.ParseAddressList(firstNonEmpty(collateralFlag, os.Getenv("COLLATERAL_ASSETS"), defaultCollateral))
	if err != nil {
		log.Fatalf("[fatal] collateral: %v", err)
	}
	accounts, err := ethutil.ParseAddressList(accountsFlag)
	if err != nil {
		log.Fatalf("[fatal] accounts: %v", err)
	}
	unit, err := ethutil.ParseAmount(unitFlag)
	if err != nil {
		log.Fatalf("[fatal] unit-of-base: %v", err)
	}
	gasCost, err := ethutil.ParseAmount(gasCostFlag)
	if err != nil {
		log.Fatalf("[fatal] gas-cost: %v", err)
	}
	fee, err := poolFeeTier(poolFee)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if baseDecimals < 0 || baseDecimals > 36 {
		log.Fatalf("[fatal] --base-decimals out of range (got %d)", baseDecimals)
	}
	executor, executorSrc, err := resolveExecutor(executorFlag, os.Getenv)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if len(accounts) == 0 && executor == (common.Address{}) {
		log.Fatalf("[fatal] nothing to inspect: pass --accounts and/or --executor")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, head, err := chainconn.Dial(ctx, rpcURL, chainconn.DialOptions{Timeout: timeout})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()
	fmt.Printf("head: %d\n", head)

	if executor != (common.Address{}) {
		bal, err := client.BalanceAt(ctx, executor, nil)
		if err != nil {
			log.Fatalf("[fatal] executor balance: %v", err)
		}
		fmt.Printf("executor: %s (%s) eth=%s\n", executor.Hex(), executorSrc, ethutil.FormatUnits(bal, 18))
	}
	if len(accounts) == 0 {
		return
	}

	reader, err := comet.NewReader(client, comet.ReaderConfig{Comet: cometAddr, Quoter: quoterAddr, PoolFee: fee})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	evaluator, err := liquidation.NewEvaluator(reader, liquidation.Config{
		Assets:      assets,
		UnitOfBase:  unit,
		GasCost:     gasCost,
		PoolFee:     fee,
		MaxPurchase: unit,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	dp := int32(baseDecimals)
	for _, acct := range accounts {
		c, err := evaluator.Evaluate(ctx, acct)
		if err != nil {
			fmt.Printf("%s: error: %v\n", acct.Hex(), err)
			continue
		}
		if !c.Eligible {
			fmt.Printf("%s: not liquidatable\n", acct.Hex())
			continue
		}
		fmt.Printf("%s: liquidatable actionable=%v\n", acct.Hex(), c.Actionable())
		for _, leg := range c.Legs {
			fmt.Printf("  %s reserve=%s quote=%s base_needed=%s\n", leg.Asset.Hex(), leg.Reserve, leg.Quote, ethutil.FormatUnits(leg.BaseNeeded, dp))
		}
		fmt.Printf("  total_base_needed=%s proceeds=%s gas=%s net=%s\n",
			ethutil.FormatUnits(c.TotalBaseNeeded, dp),
			ethutil.FormatUnits(c.Proceeds, dp),
			ethutil.FormatUnits(c.GasCost, dp),
			ethutil.FormatUnits(c.NetProfit, dp),
		)
	}
}

// poolFeeTier range-checks a Uniswap v3 fee tier before narrowing it.
func poolFeeTier(v uint) (uint32, error) {
	if v == 0 || v >= 1<<24 {
		return 0, fmt.Errorf("--pool-fee must be in (0,2^24) (got %d)", v)
	}
	return uint32(v), nil
}

func resolveExecutor(flagValue string, getenv func(string) string) (common.Address, string, error) {
	if raw := strings.TrimSpace(flagValue); raw != "" {
		addr, err := ethutil.ParseAddress(raw)
		if err != nil {
			return common.Address{}, "", fmt.Errorf("invalid --executor: %w", err)
		}
		return addr, "--executor", nil
	}
	if pkHex := strings.TrimSpace(getenv("PRIVATE_KEY")); pkHex != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
		if err != nil {
			return common.Address{}, "", fmt.Errorf("invalid PRIVATE_KEY: %w", err)
		}
		return crypto.PubkeyToAddress(pk.PublicKey), "PRIVATE_KEY", nil
	}
	return common.Address{}, "", nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
