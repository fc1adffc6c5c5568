package main

import (
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocknwa/Liquidation-Bot/internal/jsonl"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
	"github.com/rocknwa/Liquidation-Bot/internal/metrics"
)

type liqLogEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	Mode string `json:"mode,omitempty"` // dry | live

	// Run context (start/shutdown).
	ChainID    uint64 `json:"chain_id,omitempty"`
	Comet      string `json:"comet,omitempty"`
	Liquidator string `json:"liquidator,omitempty"`
	Executor   string `json:"executor,omitempty"`
	HeadBlock  uint64 `json:"head_block,omitempty"`
	Watched    int    `json:"watched,omitempty"`

	// Evaluation fields, raw base units.
	Account         string   `json:"account,omitempty"`
	Assets          []string `json:"assets,omitempty"`
	TotalBaseNeeded string   `json:"total_base_needed,omitempty"`
	CollateralOut   string   `json:"collateral_out,omitempty"`
	Proceeds        string   `json:"proceeds,omitempty"`
	GasCost         string   `json:"gas_cost,omitempty"`
	NetProfit       string   `json:"net_profit,omitempty"`
	Actionable      bool     `json:"actionable,omitempty"`

	// Attempt fields.
	AttemptID   string `json:"attempt_id,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Block       uint64 `json:"block,omitempty"`
	GasEstimate uint64 `json:"gas_estimate,omitempty"`
	GasLimit    uint64 `json:"gas_limit,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`

	Ok  bool   `json:"ok,omitempty"`
	Err string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func liqMode(enableExecution bool) string {
	if enableExecution {
		return "live"
	}
	return "dry"
}

func logLiqEvent(w *jsonl.Writer, ev liqLogEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] liquidation log write failed: %v", err)
	}
}

func candidateFields(ev *liqLogEvent, c *liquidation.Candidate) {
	if c == nil {
		return
	}
	ev.Account = c.Account.Hex()
	for _, asset := range c.Assets() {
		ev.Assets = append(ev.Assets, asset.Hex())
	}
	if c.TotalBaseNeeded != nil {
		ev.TotalBaseNeeded = c.TotalBaseNeeded.String()
	}
	if c.CollateralOut != nil {
		ev.CollateralOut = c.CollateralOut.String()
	}
	if c.Proceeds != nil {
		ev.Proceeds = c.Proceeds.String()
	}
	if c.GasCost != nil {
		ev.GasCost = c.GasCost.String()
	}
	if c.NetProfit != nil {
		ev.NetProfit = c.NetProfit.String()
	}
	ev.Actionable = c.Actionable()
}

// recorder fans attempt records and evaluations out to the JSONL log and
// metrics.
type recorder struct {
	out     *jsonl.Writer
	metrics *metrics.Metrics
	mode    string
	started time.Time
}

func (r *recorder) Record(a liquidation.Attempt) {
	if r.metrics != nil {
		r.metrics.Record(a)
	}
	ev := liqLogEvent{
		TsMs:        time.Now().UnixMilli(),
		Event:       "attempt",
		Mode:        r.mode,
		AttemptID:   a.ID.String(),
		Outcome:     string(a.Outcome),
		Block:       a.BlockNumber,
		GasEstimate: a.GasEstimate,
		GasLimit:    a.GasLimit,
		GasUsed:     a.GasUsed,
		Ok:          a.Outcome == liquidation.OutcomeConfirmed,
		UptimeMs:    time.Since(r.started).Milliseconds(),
	}
	candidateFields(&ev, a.Candidate)
	ev.Account = a.Account.Hex()
	if a.TxHash != (common.Hash{}) {
		ev.TxHash = a.TxHash.Hex()
	}
	if !a.FinishedAt.IsZero() {
		ev.DurationMs = a.FinishedAt.Sub(a.StartedAt).Milliseconds()
	}
	if a.Err != nil {
		ev.Err = a.Err.Error()
	}
	logLiqEvent(r.out, ev)
}

// Evaluated records eligible candidates only; ineligible accounts are the
// common case for every sweep.
func (r *recorder) Evaluated(account common.Address, c *liquidation.Candidate, err error) {
	if r.metrics != nil {
		r.metrics.Evaluated(account, c, err)
	}
	if err != nil || c == nil || !c.Eligible {
		return
	}
	ev := liqLogEvent{
		TsMs:     time.Now().UnixMilli(),
		Event:    "evaluation",
		Mode:     r.mode,
		UptimeMs: time.Since(r.started).Milliseconds(),
	}
	candidateFields(&ev, c)
	logLiqEvent(r.out, ev)
}
