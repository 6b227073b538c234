// Package positions сводит сырые строки позиций в нетто по инструменту и закрывает их.
package positions

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/submitter"
	"nado_bot/pkg/logger"
)

const (
	amountPlaces = 12
	pricePlaces  = 8
)

// Exchange — клиент биржи, который умеет отдавать сырые позиции и ставить ордера.
type Exchange interface {
	submitter.Exchange
	Positions(ctx context.Context) ([]models.PositionRow, error)
}

type fingerprint struct {
	productID int64
	side      models.PositionSide
	amount    string
	price     string
}

func fingerprintOf(r models.PositionRow) fingerprint {
	return fingerprint{
		productID: r.ProductID,
		side:      r.Side,
		amount:    r.Amount.Abs().Round(amountPlaces).String(),
		price:     r.Price.Round(pricePlaces).String(),
	}
}

// Normalize — нетто по инструменту; строки с одинаковым отпечатком считаются один раз.
// Результат отсортирован по product id, нулевые нетто не отбрасываются.
func Normalize(rows []models.PositionRow) []models.NetPosition {
	seen := make(map[fingerprint]struct{}, len(rows))
	net := make(map[int64]decimal.Decimal)
	for _, r := range rows {
		fp := fingerprintOf(r)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		net[r.ProductID] = net[r.ProductID].Add(r.Signed())
	}

	out := make([]models.NetPosition, 0, len(net))
	for id, amount := range net {
		out = append(out, models.NetPosition{ProductID: id, Name: models.ProductName(id), Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Flat — нетто неотличимо от нуля на точности строк биржи.
func Flat(amount decimal.Decimal) bool {
	return amount.Round(amountPlaces).IsZero()
}

// Open — только ненулевые позиции.
func Open(nets []models.NetPosition) []models.NetPosition {
	out := nets[:0:0]
	for _, n := range nets {
		if !Flat(n.Amount) {
			out = append(out, n)
		}
	}
	return out
}

type Aggregator struct {
	sub *submitter.Submitter
}

func NewAggregator(sub *submitter.Submitter) *Aggregator {
	return &Aggregator{sub: sub}
}

// Net — свежие позиции аккаунта после дедупликации.
func (a *Aggregator) Net(ctx context.Context, ex Exchange) ([]models.NetPosition, error) {
	rows, err := ex.Positions(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.TransientNetwork, "Could not fetch positions.", err)
	}
	return Normalize(rows), nil
}

// CloseOne закрывает нетто по инструменту одним reduce-only IOC ордером.
func (a *Aggregator) CloseOne(ctx context.Context, ex Exchange, productID int64, slippagePct float64) models.OrderResult {
	nets, err := a.Net(ctx, ex)
	if err != nil {
		return models.OrderResult{ProductID: productID, Err: err}
	}
	for _, n := range nets {
		if n.ProductID == productID {
			return a.close(ctx, ex, n, slippagePct)
		}
	}
	return a.close(ctx, ex, models.NetPosition{ProductID: productID, Name: models.ProductName(productID)}, slippagePct)
}

func (a *Aggregator) close(ctx context.Context, ex Exchange, n models.NetPosition, slippagePct float64) models.OrderResult {
	if Flat(n.Amount) {
		return models.OrderResult{
			ProductID: n.ProductID,
			Err:       errkind.Newf(errkind.NoOpenPosition, "No open position for %s.", n.Name),
		}
	}
	side := models.Sell
	if n.Amount.IsNegative() {
		side = models.Buy
	}
	res := a.sub.PlaceMarket(ctx, ex, models.OrderRequest{
		ProductID:   n.ProductID,
		Side:        side,
		Size:        n.Amount.Abs(),
		TimeInForce: models.IOC,
		Slippage:    slippagePct,
		ReduceOnly:  true,
	})
	log := logger.L().With(
		zap.String("network", ex.Network().String()),
		zap.String("product", n.Name),
		zap.String("net", n.Amount.String()),
	)
	if res.Success {
		log.Info("position closed", zap.String("digest", res.OrderID))
	} else {
		log.Warn("position close failed", zap.Error(res.Err))
	}
	return res
}

// CloseAllResult — итог close-all: закрытые позиции и ошибки по остальным.
type CloseAllResult struct {
	Closed []models.OrderResult
	Failed []models.OrderResult
}

// CloseAll — по одному закрывающему ордеру на каждую ненулевую позицию.
// Успех, если закрылась хотя бы одна; иначе ошибка со всеми причинами.
func (a *Aggregator) CloseAll(ctx context.Context, ex Exchange, slippagePct float64) (CloseAllResult, error) {
	nets, err := a.Net(ctx, ex)
	if err != nil {
		return CloseAllResult{}, err
	}
	open := Open(nets)
	if len(open) == 0 {
		return CloseAllResult{}, errkind.New(errkind.NoOpenPosition, "No open positions to close.")
	}

	var (
		out  CloseAllResult
		errs error
	)
	for _, n := range open {
		res := a.close(ctx, ex, n, slippagePct)
		if res.Success {
			out.Closed = append(out.Closed, res)
			continue
		}
		out.Failed = append(out.Failed, res)
		errs = multierr.Append(errs, errors.Wrap(res.Err, n.Name))
	}
	if len(out.Closed) == 0 {
		return out, errkind.Wrap(errkind.Of(out.Failed[0].Err), failedText(out.Failed), errs)
	}
	return out, nil
}

func failedText(failed []models.OrderResult) string {
	msg := "Could not close positions:"
	for _, f := range failed {
		msg += fmt.Sprintf(" %s: %s;", models.ProductName(f.ProductID), f.ErrorText())
	}
	return msg
}
