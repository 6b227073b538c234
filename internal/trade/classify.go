package trade

import (
	"github.com/pkg/errors"

	"nado_bot/internal/errkind"
	"nado_bot/internal/modules/nado_client/service"
)

// classify переводит ошибку клиента биржи в errkind: отказ — по тексту, остальное — сеть.
func classify(err error, fallback string) error {
	var rej *service.RejectError
	if errors.As(err, &rej) {
		return errkind.Classify(rej.Text)
	}
	if errkind.Of(err) != errkind.Generic {
		return err
	}
	return errkind.Wrap(errkind.TransientNetwork, fallback, err)
}
