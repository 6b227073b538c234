package service

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"nado_bot/internal/signer"
)

// CancelOrders снимает ордера по digest одним подписанным запросом.
func (c *Client) CancelOrders(ctx context.Context, productID int64, digests []string) error {
	if len(digests) == 0 {
		return nil
	}
	endpoint, err := c.gw.Endpoint(ctx, c.network)
	if err != nil {
		return err
	}

	cancel := signer.Cancellation{Nonce: signer.Nonce(c.now())}
	for _, d := range digests {
		cancel.ProductIDs = append(cancel.ProductIDs, productID)
		cancel.Digests = append(cancel.Digests, common.HexToHash(d))
	}
	signed, err := c.signer.SignCancellation(endpoint, cancel)
	if err != nil {
		return errors.Wrap(err, "sign cancellation")
	}

	tx := wireCancellation{
		Sender:     signer.SubaccountHex(signed.Cancellation.Sender),
		ProductIDs: signed.Cancellation.ProductIDs,
		Nonce:      strconv.FormatUint(signed.Cancellation.Nonce, 10),
	}
	for _, d := range signed.Cancellation.Digests {
		tx.Digests = append(tx.Digests, d.Hex())
	}
	req := cancelOrdersRequest{CancelOrders: cancelOrdersBody{Tx: tx, Signature: signed.Signature}}
	if err := c.execute(ctx, req, nil); err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			return rej
		}
		return errors.Wrap(err, "cancel_orders")
	}
	return nil
}

// CancelAll снимает все висящие ордера по продукту, возвращает их число.
func (c *Client) CancelAll(ctx context.Context, productID int64) (int, error) {
	orders, err := c.OpenOrders(ctx, productID)
	if err != nil {
		return 0, err
	}
	digests := make([]string, 0, len(orders))
	for _, o := range orders {
		digests = append(digests, o.Digest)
	}
	if err := c.CancelOrders(ctx, productID, digests); err != nil {
		return 0, err
	}
	return len(digests), nil
}
