package service

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// X18 — целое *10^18; биржа отдаёт его то строкой, то числом.
type X18 struct {
	*big.Int
}

func (x *X18) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		x.Int = nil
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return errors.Errorf("x18: bad integer %q", s)
	}
	x.Int = v
	return nil
}

func (x X18) Valid() bool { return x.Int != nil }

// envelope — общий ответ gateway: {"status":"success","data":...} или {"status":"failure","error":...}.
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorCode int             `json:"error_code"`
	RequestID string          `json:"id,omitempty"`
}

func (e envelope) ok() bool { return e.Status == "success" }

func (e envelope) decode(out any) error {
	if out == nil || len(e.Data) == 0 {
		return nil
	}
	return errors.Wrap(sonic.Unmarshal(e.Data, out), "decode data")
}

type bookInfo struct {
	SizeIncrement     X18 `json:"size_increment"`
	PriceIncrementX18 X18 `json:"price_increment_x18"`
}

type perpProduct struct {
	ProductID         int64    `json:"product_id"`
	SizeIncrementX18  X18      `json:"size_increment_x18"`
	PriceIncrementX18 X18      `json:"price_increment_x18"`
	CumFundingX18     X18      `json:"cum_funding_x18"`
	BookInfo          bookInfo `json:"book_info"`
}

type allProductsData struct {
	PerpProducts []perpProduct `json:"perp_products"`
}

type marketPriceData struct {
	ProductID int64 `json:"product_id"`
	BidX18    X18   `json:"bid_x18"`
	AskX18    X18   `json:"ask_x18"`
}

type balanceAmount struct {
	Amount        X18 `json:"amount"`
	VQuoteBalance X18 `json:"v_quote_balance"`
}

type spotBalance struct {
	ProductID int64         `json:"product_id"`
	Balance   balanceAmount `json:"balance"`
}

// rawPosition — терпимая к формату строка позиции: поля разнятся между списками ответа.
type rawPosition struct {
	ProductID        *int64         `json:"product_id"`
	Balance          *balanceAmount `json:"balance"`
	Amount           X18            `json:"amount"`
	AmountX18        X18            `json:"amount_x18"`
	Size             X18            `json:"size"`
	SizeX18          X18            `json:"size_x18"`
	EntryPriceX18    X18            `json:"entry_price_x18"`
	AvgEntryPriceX18 X18            `json:"avg_entry_price_x18"`
	PriceX18         X18            `json:"price_x18"`
	EntryPrice       X18            `json:"entry_price"`
}

type subaccountInfoData struct {
	Exists        *bool         `json:"exists"`
	SpotBalances  []spotBalance `json:"spot_balances"`
	PerpPositions []rawPosition `json:"perp_positions"`
	Positions     []rawPosition `json:"positions"`
	PerpBalances  []rawPosition `json:"perp_balances"`
}

type openOrder struct {
	Digest    string `json:"digest"`
	ProductID int64  `json:"product_id"`
	Amount    X18    `json:"amount"`
	PriceX18  X18    `json:"price_x18"`
}

type subaccountOrdersData struct {
	ProductID int64       `json:"product_id"`
	Orders    []openOrder `json:"orders"`
}

type contractsData struct {
	ChainID      string `json:"chain_id"`
	EndpointAddr string `json:"endpoint_addr"`
}

type placeOrderData struct {
	Digest string `json:"digest"`
}

// wireOrder — ордер в JSON: все целые строками.
type wireOrder struct {
	Sender     string `json:"sender"`
	PriceX18   string `json:"priceX18"`
	Amount     string `json:"amount"`
	Expiration string `json:"expiration"`
	Nonce      string `json:"nonce"`
	Appendix   string `json:"appendix"`
}

type placeOrderBody struct {
	ProductID int64     `json:"product_id"`
	Order     wireOrder `json:"order"`
	Signature string    `json:"signature"`
}

type placeOrderRequest struct {
	PlaceOrder placeOrderBody `json:"place_order"`
}

type wireCancellation struct {
	Sender     string   `json:"sender"`
	ProductIDs []int64  `json:"productIds"`
	Digests    []string `json:"digests"`
	Nonce      string   `json:"nonce"`
}

type cancelOrdersBody struct {
	Tx        wireCancellation `json:"tx"`
	Signature string           `json:"signature"`
}

type cancelOrdersRequest struct {
	CancelOrders cancelOrdersBody `json:"cancel_orders"`
}
