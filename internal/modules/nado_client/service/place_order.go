package service

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"nado_bot/internal/signer"
)

// PlaceOrder отправляет подписанный ордер и возвращает digest.
// Отказ биржи приходит как *RejectError, сетевые сбои — обёрнутой ошибкой.
func (c *Client) PlaceOrder(ctx context.Context, productID int64, s signer.Signed) (string, error) {
	req := placeOrderRequest{PlaceOrder: placeOrderBody{
		ProductID: productID,
		Order: wireOrder{
			Sender:     signer.SubaccountHex(s.Order.Sender),
			PriceX18:   s.Order.PriceX18.String(),
			Amount:     s.Order.Amount.String(),
			Expiration: strconv.FormatUint(s.Order.Expiration, 10),
			Nonce:      strconv.FormatUint(s.Order.Nonce, 10),
			Appendix:   s.Order.Appendix.String(),
		},
		Signature: s.Signature,
	}}

	var data placeOrderData
	if err := c.execute(ctx, req, &data); err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			return "", rej
		}
		return "", errors.Wrap(err, "place_order")
	}
	if data.Digest == "" {
		return s.Digest, nil
	}
	return data.Digest, nil
}
