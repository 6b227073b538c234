package models

import (
	"fmt"
	"strings"
)

type ProductKind string

const (
	ProductSpot ProductKind = "spot"
	ProductPerp ProductKind = "perp"
)

// Product — статическая карточка инструмента биржи.
type Product struct {
	ID     int64
	Name   string
	Symbol string
	Kind   ProductKind
}

// QuoteProductID — USDT0, в нём считается маржа.
const QuoteProductID int64 = 0

var Products = []Product{
	{ID: 0, Name: "USDT0", Kind: ProductSpot},
	{ID: 2, Name: "BTC", Symbol: "BTC-PERP", Kind: ProductPerp},
	{ID: 4, Name: "ETH", Symbol: "ETH-PERP", Kind: ProductPerp},
	{ID: 8, Name: "SOL", Symbol: "SOL-PERP", Kind: ProductPerp},
	{ID: 10, Name: "XRP", Symbol: "XRP-PERP", Kind: ProductPerp},
	{ID: 14, Name: "BNB", Symbol: "BNB-PERP", Kind: ProductPerp},
	{ID: 16, Name: "LINK", Symbol: "LINK-PERP", Kind: ProductPerp},
	{ID: 18, Name: "AVAX", Symbol: "AVAX-PERP", Kind: ProductPerp},
	{ID: 22, Name: "DOGE", Symbol: "DOGE-PERP", Kind: ProductPerp},
}

var productAliases = func() map[string]Product {
	out := make(map[string]Product, len(Products)*2)
	for _, p := range Products {
		out[strings.ToLower(p.Name)] = p
		if p.Symbol != "" {
			out[strings.ToLower(p.Symbol)] = p
		}
	}
	return out
}()

// LookupProduct ищет по имени, символу или алиасу вида "btc-perp".
func LookupProduct(name string) (Product, bool) {
	p, ok := productAliases[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func ProductByID(id int64) (Product, bool) {
	for _, p := range Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// ProductName — символ для вывода; неизвестные id рендерятся как "ID:<n>".
func ProductName(id int64) string {
	p, ok := ProductByID(id)
	if !ok {
		return fmt.Sprintf("ID:%d", id)
	}
	if p.Symbol != "" {
		return p.Symbol
	}
	return p.Name
}

// PerpProducts — все перпы каталога.
func PerpProducts() []Product {
	out := make([]Product, 0, len(Products))
	for _, p := range Products {
		if p.Kind == ProductPerp {
			out = append(out, p)
		}
	}
	return out
}
