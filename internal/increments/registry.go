// Package increments — кеш шагов цены/объёма по (network, product).
//
// Кеш прогревается из метаданных биржи и дообучается по текстам отказов.
// Запись идемпотентна (last write wins), поэтому параллельные warm/learn безопасны.
package increments

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"nado_bot/internal/models"
	"nado_bot/internal/normalize"
	"nado_bot/pkg/logger"
)

// ProductMeta — шаги продукта в сыром x18 виде, как их отдаёт all_products.
type ProductMeta struct {
	ProductID int64
	PriceX18  *big.Int
	SizeX18   *big.Int
}

// MetadataSource — источник метаданных продуктов (REST all_products).
type MetadataSource interface {
	AllProducts(ctx context.Context, network models.Network) ([]ProductMeta, error)
}

type Key struct {
	Network   models.Network
	ProductID int64
}

type Registry struct {
	src         MetadataSource
	warmTimeout time.Duration

	mu    sync.RWMutex
	items map[Key]models.Increments

	group singleflight.Group
}

func NewRegistry(src MetadataSource, warmTimeout time.Duration) *Registry {
	if warmTimeout <= 0 {
		warmTimeout = 10 * time.Second
	}
	return &Registry{
		src:         src,
		warmTimeout: warmTimeout,
		items:       make(map[Key]models.Increments),
	}
}

// Get — известные шаги; нули, если ещё не прогрето.
func (r *Registry) Get(network models.Network, productID int64) models.Increments {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[Key{network, productID}]
}

// Set перезаписывает только строго положительные значения.
func (r *Registry) Set(network models.Network, productID int64, inc models.Increments) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key{network, productID}
	cur := r.items[k]
	if inc.Price.IsPositive() {
		cur.Price = inc.Price
	}
	if inc.Size.IsPositive() {
		cur.Size = inc.Size
	}
	r.items[k] = cur
}

// Warm — один best-effort запрос метаданных; ошибка только логируется.
// Ключ с уже известными обоими шагами не перезапрашивается.
func (r *Registry) Warm(ctx context.Context, network models.Network, productID int64) {
	if r.Get(network, productID).Complete() || r.src == nil {
		return
	}
	if err := r.WarmNetwork(ctx, network); err != nil {
		logger.L().Debug("increments warm failed",
			zap.String("network", network.String()),
			zap.Int64("product_id", productID),
			zap.Error(err),
		)
	}
}

// WarmNetwork заполняет шаги всех продуктов сети одним запросом.
// Параллельные вызовы по одной сети схлопываются в один запрос.
func (r *Registry) WarmNetwork(ctx context.Context, network models.Network) error {
	if r.src == nil {
		return nil
	}
	_, err, _ := r.group.Do(string(network), func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, r.warmTimeout)
		defer cancel()

		metas, err := r.src.AllProducts(wctx, network)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			var inc models.Increments
			if m.PriceX18 != nil && m.PriceX18.Sign() > 0 {
				inc.Price = normalize.FromX18(m.PriceX18)
			}
			if m.SizeX18 != nil && m.SizeX18.Sign() > 0 {
				inc.Size = normalize.FromX18(m.SizeX18)
			}
			r.Set(network, m.ProductID, inc)
		}
		return nil, nil
	})
	return err
}

// LearnFromRejection вытаскивает шаг из текста отказа и перезаписывает кеш.
// size — запрошенный объём: шаг, который срезал бы его в ноль, не запоминается,
// чтобы мусор из текста не ломал все следующие ордера по продукту.
// Возвращает обновлённые шаги и признак, что что-то выучили.
func (r *Registry) LearnFromRejection(network models.Network, productID int64, text string, size decimal.Decimal) (models.Increments, bool) {
	var learned models.Increments
	if v, ok := ExtractPrice(text, productID); ok {
		learned.Price = v
	}
	if v, ok := ExtractSize(text, productID); ok {
		if size.IsPositive() && !normalize.AlignSize(size, v).IsPositive() {
			logger.L().Warn("implausible size increment in rejection ignored",
				zap.String("network", network.String()),
				zap.Int64("product_id", productID),
				zap.String("size_increment", v.String()),
				zap.String("size", size.String()),
			)
		} else {
			learned.Size = v
		}
	}
	if !learned.PriceKnown() && !learned.SizeKnown() {
		return r.Get(network, productID), false
	}
	r.Set(network, productID, learned)
	logger.L().Info("increment learned from rejection",
		zap.String("network", network.String()),
		zap.Int64("product_id", productID),
		zap.String("price_increment", decimalOrDash(learned.Price)),
		zap.String("size_increment", decimalOrDash(learned.Size)),
	)
	return r.Get(network, productID), true
}

// Snapshot — копия кеша, для botctl и health.
func (r *Registry) Snapshot() map[Key]models.Increments {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Key]models.Increments, len(r.items))
	for k, v := range r.items {
		out[k] = v
	}
	return out
}

func decimalOrDash(v decimal.Decimal) string {
	if !v.IsPositive() {
		return "-"
	}
	return v.String()
}
