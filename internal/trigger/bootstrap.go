package trigger

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
)

const maxInitialChunk uint64 = 2000

// LogFilterer is the historical log surface of the ledger client
// (satisfied by *ethclient.Client).
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Bootstrap scans Comet logs in [from, to] and adds every account they name
// to the ledger. It returns the number of accounts that were new.
func Bootstrap(ctx context.Context, client LogFilterer, cometAddr common.Address, ledger Adder, from, to uint64) (int, error) {
	if client == nil || ledger == nil {
		return 0, fmt.Errorf("bootstrap: client and ledger required")
	}
	added := 0
	err := scanLogs(ctx, client, comet.EventQuery(cometAddr), from, to, func(vLog types.Log) {
		if vLog.Removed {
			return
		}
		ev, err := comet.DecodeLog(vLog)
		if err != nil {
			return
		}
		if ledger.Add(ev.Account) {
			added++
		}
	})
	return added, err
}

// scanLogs runs eth_getLogs over [from, to] in chunks. The chunk shrinks to a
// provider-reported range limit when one is found in the error, and halves on
// other failures until it reaches a single block.
func scanLogs(ctx context.Context, client LogFilterer, base ethereum.FilterQuery, from, to uint64, fn func(types.Log)) error {
	if from > to {
		return nil
	}
	chunk := to - from + 1
	if chunk > maxInitialChunk {
		chunk = maxInitialChunk
	}

	for start := from; start <= to; {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + chunk - 1
		if end > to {
			end = to
		}

		query := base
		query.FromBlock = new(big.Int).SetUint64(start)
		query.ToBlock = new(big.Int).SetUint64(end)

		logs, err := client.FilterLogs(ctx, query)
		if err != nil {
			if limit, ok := parseRangeLimit(err); ok && limit > 0 && limit < chunk {
				chunk = limit
				log.Printf("[warn] eth_getLogs range limit detected, retrying with chunk=%d blocks", chunk)
				continue
			}
			if chunk > 1 {
				chunk /= 2
				log.Printf("[warn] bootstrap query failed, retrying with chunk=%d blocks: %v", chunk, err)
				continue
			}
			return fmt.Errorf("eth_getLogs [%d..%d]: %w", start, end, err)
		}
		for _, vLog := range logs {
			fn(vLog)
		}
		start = end + 1
	}
	return nil
}

// parseRangeLimit extracts N from provider errors such as
// "... limited to a 500 block range".
func parseRangeLimit(err error) (uint64, bool) {
	if err == nil {
		return 0, false
	}
	const marker = "limited to a "
	s := err.Error()
	idx := strings.Index(s, marker)
	if idx < 0 {
		return 0, false
	}
	rest := s[idx+len(marker):]
	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == 0 {
		return 0, false
	}
	limit, err := strconv.ParseUint(rest[:j], 10, 64)
	if err != nil {
		return 0, false
	}
	return limit, true
}
