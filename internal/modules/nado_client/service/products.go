package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/normalize"
)

// Gateway — публичная часть биржи по всем сетям: продукты, цены, контракты.
// Подписи тут не нужны, поэтому один экземпляр на процесс.
type Gateway struct {
	transports map[models.Network]Transport
	prices     *priceCache

	mu        sync.Mutex
	endpoints map[models.Network]common.Address
}

func NewGateway(transports map[models.Network]Transport) *Gateway {
	return &Gateway{
		transports: transports,
		prices:     newPriceCache(PriceCacheTTL),
		endpoints:  make(map[models.Network]common.Address),
	}
}

func (g *Gateway) Transport(network models.Network) (Transport, error) {
	tr, ok := g.transports[network]
	if !ok || tr == nil {
		return nil, errors.Errorf("no transport for network %q", network)
	}
	return tr, nil
}

// Modes — выбранный режим транспорта по сетям.
func (g *Gateway) Modes() map[models.Network]Mode {
	out := make(map[models.Network]Mode, len(g.transports))
	for n, tr := range g.transports {
		if tr != nil {
			out[n] = tr.Mode()
		}
	}
	return out
}

func (g *Gateway) query(ctx context.Context, network models.Network, q Query, out any) error {
	tr, err := g.Transport(network)
	if err != nil {
		return err
	}
	return tr.Query(ctx, q, out)
}

// AllProducts — шаги цены и объёма всех перпов сети.
func (g *Gateway) AllProducts(ctx context.Context, network models.Network) ([]increments.ProductMeta, error) {
	var data allProductsData
	if err := g.query(ctx, network, Query{"type": "all_products"}, &data); err != nil {
		return nil, errors.Wrap(err, "all_products")
	}
	out := make([]increments.ProductMeta, 0, len(data.PerpProducts))
	for _, p := range data.PerpProducts {
		price := firstValid(p.PriceIncrementX18, p.BookInfo.PriceIncrementX18)
		size := firstValid(p.SizeIncrementX18, p.BookInfo.SizeIncrement)
		out = append(out, increments.ProductMeta{ProductID: p.ProductID, PriceX18: price, SizeX18: size})
	}
	return out, nil
}

// FundingRates — накопленный фандинг по продуктам.
func (g *Gateway) FundingRates(ctx context.Context, network models.Network) (map[int64]decimal.Decimal, error) {
	var data allProductsData
	if err := g.query(ctx, network, Query{"type": "all_products"}, &data); err != nil {
		return nil, errors.Wrap(err, "all_products")
	}
	out := make(map[int64]decimal.Decimal, len(data.PerpProducts))
	for _, p := range data.PerpProducts {
		if p.CumFundingX18.Valid() {
			out[p.ProductID] = normalize.FromX18(p.CumFundingX18.Int)
		} else {
			out[p.ProductID] = decimal.Zero
		}
	}
	return out, nil
}

// MarketPrice — лучший bid/ask; ответ кешируется на PriceCacheTTL.
func (g *Gateway) MarketPrice(ctx context.Context, network models.Network, productID int64) (models.MarketPrice, error) {
	if p, ok := g.prices.get(network, productID); ok {
		return p, nil
	}
	var data marketPriceData
	if err := g.query(ctx, network, Query{"type": "market_price", "product_id": productID}, &data); err != nil {
		return models.MarketPrice{}, errors.Wrapf(err, "market_price %d", productID)
	}
	if !data.BidX18.Valid() || !data.AskX18.Valid() {
		return models.MarketPrice{}, errors.Errorf("market_price %d: empty book", productID)
	}
	bid := normalize.FromX18(data.BidX18.Int)
	ask := normalize.FromX18(data.AskX18.Int)
	p := models.MarketPrice{Bid: bid, Ask: ask, Mid: bid.Add(ask).Div(decimal.NewFromInt(2))}
	g.prices.put(network, productID, p)
	return p, nil
}

// Endpoint — адрес контракта endpoint, нужен для подписи отмен.
func (g *Gateway) Endpoint(ctx context.Context, network models.Network) (common.Address, error) {
	g.mu.Lock()
	addr, ok := g.endpoints[network]
	g.mu.Unlock()
	if ok {
		return addr, nil
	}
	var data contractsData
	if err := g.query(ctx, network, Query{"type": "contracts"}, &data); err != nil {
		return common.Address{}, errors.Wrap(err, "contracts")
	}
	if !common.IsHexAddress(data.EndpointAddr) {
		return common.Address{}, errors.Errorf("contracts: bad endpoint address %q", data.EndpointAddr)
	}
	addr = common.HexToAddress(data.EndpointAddr)
	g.mu.Lock()
	g.endpoints[network] = addr
	g.mu.Unlock()
	return addr, nil
}

func (g *Gateway) Close() error {
	var first error
	for _, tr := range g.transports {
		if err := tr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func firstValid(vals ...X18) *big.Int {
	for _, v := range vals {
		if v.Valid() && v.Sign() > 0 {
			return v.Int
		}
	}
	return nil
}
