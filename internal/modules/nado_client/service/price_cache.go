package service

import (
	"fmt"
	"sync"
	"time"

	"nado_bot/internal/models"
)

const PriceCacheTTL = 5 * time.Second

type cachedPrice struct {
	price models.MarketPrice
	at    time.Time
}

// priceCache — bid/ask по ключу network:product, живёт PriceCacheTTL.
type priceCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]cachedPrice
}

func newPriceCache(ttl time.Duration) *priceCache {
	return &priceCache{ttl: ttl, now: time.Now, items: make(map[string]cachedPrice)}
}

func priceKey(network models.Network, productID int64) string {
	return fmt.Sprintf("%s:%d", network, productID)
}

func (c *priceCache) get(network models.Network, productID int64) (models.MarketPrice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[priceKey(network, productID)]
	if !ok || c.now().Sub(v.at) >= c.ttl {
		return models.MarketPrice{}, false
	}
	return v.price, true
}

func (c *priceCache) put(network models.Network, productID int64, p models.MarketPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[priceKey(network, productID)] = cachedPrice{price: p, at: c.now()}
}
