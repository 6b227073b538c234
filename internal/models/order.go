package models

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) IsBuy() bool { return s == Buy }

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type TimeInForce string

const (
	GTC      TimeInForce = "default"
	IOC      TimeInForce = "ioc"
	FOK      TimeInForce = "fok"
	PostOnly TimeInForce = "post_only"
)

// Aggressive — ордер должен пересечь стакан сразу.
func (t TimeInForce) Aggressive() bool { return t == IOC }

// OrderRequest — намерение пользователя или стратегии до выравнивания.
type OrderRequest struct {
	ProductID   int64                            `validate:"gte=0"`
	Side        Side                             `validate:"required,oneof=buy sell"`
	Size        decimal.Decimal                  `validate:"-"`
	Price       optional.Option[decimal.Decimal] `validate:"-"`
	TimeInForce TimeInForce                      `validate:"required,oneof=default ioc fok post_only"`
	Leverage    float64                          `validate:"gte=0"`
	Slippage    float64                          `validate:"gte=0"`
	ReduceOnly  bool
}

// OrderResult — итог одного логического вызова submit.
type OrderResult struct {
	Success     bool
	OrderID     string
	ProductID   int64
	Side        Side
	Size        decimal.Decimal
	FilledPrice decimal.Decimal
	Attempts    int
	Err         error
}

// ErrorText — человекочитаемая причина, пусто при успехе.
func (r OrderResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// OpenOrder — висящий ордер на бирже.
type OpenOrder struct {
	Digest    string
	ProductID int64
	Amount    decimal.Decimal // со знаком: >0 покупка
	Price     decimal.Decimal
}
