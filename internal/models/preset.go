package models

// StrategyPreset — дефолты стратегии, поверх которых кладутся пользовательские настройки.
type StrategyPreset struct {
	Name            string  `json:"-"`
	Description     string  `json:"-"`
	NotionalUSD     float64 `json:"notional_usd"`
	SpreadBp        float64 `json:"spread_bp"`
	IntervalSeconds int     `json:"interval_seconds"`
	TakeProfitPct   float64 `json:"tp_pct"`
	StopLossPct     float64 `json:"sl_pct"`
}

func (p StrategyPreset) Apply(st *StrategyState) {
	if p.NotionalUSD > 0 {
		st.NotionalUSD = p.NotionalUSD
	}
	if p.SpreadBp > 0 {
		st.SpreadBp = p.SpreadBp
	}
	if p.IntervalSeconds > 0 {
		st.IntervalSeconds = p.IntervalSeconds
	}
	if p.TakeProfitPct > 0 {
		st.TakeProfitPct = p.TakeProfitPct
	}
	if p.StopLossPct > 0 {
		st.StopLossPct = p.StopLossPct
	}
}

var Presets = map[StrategyKind]StrategyPreset{
	StrategyMM: {
		Name:            "🟢 Market making",
		Description:     "Узкий спред, частые циклы",
		NotionalUSD:     75,
		SpreadBp:        4,
		IntervalSeconds: 45,
		TakeProfitPct:   0.6,
		StopLossPct:     0.5,
	},
	StrategyGrid: {
		Name:            "🟡 Grid",
		Description:     "Широкая сетка, спред не меньше 8 bp",
		NotionalUSD:     100,
		SpreadBp:        10,
		IntervalSeconds: 60,
		TakeProfitPct:   1.2,
		StopLossPct:     0.8,
	},
	StrategyDN: {
		Name:            "🔵 Delta neutral",
		Description:     "Спред зажат в 2..4 bp, редкие циклы",
		NotionalUSD:     50,
		SpreadBp:        3,
		IntervalSeconds: 90,
		TakeProfitPct:   0.8,
		StopLossPct:     0.6,
	},
}

// UserSettings — настройки аккаунта на конкретной сети.
type UserSettings struct {
	DefaultLeverage float64                         `json:"default_leverage"`
	Slippage        float64                         `json:"slippage"`
	RiskProfile     string                          `json:"risk_profile"`
	Strategies      map[StrategyKind]StrategyPreset `json:"strategies"`
}

func DefaultUserSettings() UserSettings {
	strategies := make(map[StrategyKind]StrategyPreset, len(Presets))
	for k, p := range Presets {
		strategies[k] = p
	}
	return UserSettings{
		DefaultLeverage: 3,
		Slippage:        1,
		RiskProfile:     "balanced",
		Strategies:      strategies,
	}
}
