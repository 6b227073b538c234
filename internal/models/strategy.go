package models

import (
	"strings"
	"time"
)

type StrategyKind string

const (
	StrategyMM   StrategyKind = "mm"
	StrategyGrid StrategyKind = "grid"
	StrategyDN   StrategyKind = "dn"
)

func ParseStrategyKind(s string) (StrategyKind, bool) {
	switch StrategyKind(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyMM:
		return StrategyMM, true
	case StrategyGrid:
		return StrategyGrid, true
	case StrategyDN:
		return StrategyDN, true
	}
	return "", false
}

type StopReason string

const (
	StopManual          StopReason = "manual"
	StopLoss            StopReason = "stop-loss"
	StopTakeProfit      StopReason = "take-profit"
	StopNetworkMismatch StopReason = "network-mismatch"
	StopFatalAccount    StopReason = "fatal-account-state"
)

// StrategyState — персистентное состояние бота по (account, network).
// running меняется только через start/stop/автостоп.
type StrategyState struct {
	AccountID int64        `json:"account_id"`
	Network   Network      `json:"network"`
	RunID     string       `json:"run_id,omitempty"`
	Running   bool         `json:"running"`
	Strategy  StrategyKind `json:"strategy,omitempty"`
	Product   string       `json:"product"`

	NotionalUSD     float64 `json:"notional_usd"`
	SpreadBp        float64 `json:"spread_bp"`
	TakeProfitPct   float64 `json:"tp_pct"`
	StopLossPct     float64 `json:"sl_pct"`
	Leverage        float64 `json:"leverage"`
	SlippagePct     float64 `json:"slippage_pct"`
	IntervalSeconds int     `json:"interval_seconds"`

	// фиксируется на первом удачном сэмпле цены, 0 = ещё не зафиксирована
	ReferencePrice float64 `json:"reference_price"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastRunAt  time.Time  `json:"last_run_at"`
	Runs       int        `json:"runs"`
	LastError  string     `json:"last_error,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// DefaultStrategyState — значения для ключа, которого ещё нет в хранилище.
func DefaultStrategyState(accountID int64, network Network) StrategyState {
	return StrategyState{
		AccountID:       accountID,
		Network:         network,
		Product:         "BTC",
		NotionalUSD:     100,
		SpreadBp:        5,
		TakeProfitPct:   1.0,
		StopLossPct:     0.5,
		Leverage:        3,
		SlippagePct:     1,
		IntervalSeconds: 60,
	}
}

// Interval — период цикла, не меньше секунды.
func (s StrategyState) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// StrategyStatus — то, что показываем пользователю.
type StrategyStatus struct {
	Network         Network
	Running         bool
	Strategy        StrategyKind
	Product         string
	NotionalUSD     float64
	SpreadBp        float64
	TakeProfitPct   float64
	StopLossPct     float64
	IntervalSeconds int
	StartedAt       *time.Time
	Runs            int
	LastError       string
}

func (s StrategyState) Status() StrategyStatus {
	return StrategyStatus{
		Network:         s.Network,
		Running:         s.Running,
		Strategy:        s.Strategy,
		Product:         s.Product,
		NotionalUSD:     s.NotionalUSD,
		SpreadBp:        s.SpreadBp,
		TakeProfitPct:   s.TakeProfitPct,
		StopLossPct:     s.StopLossPct,
		IntervalSeconds: s.IntervalSeconds,
		StartedAt:       s.StartedAt,
		Runs:            s.Runs,
		LastError:       s.LastError,
	}
}
