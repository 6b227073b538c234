package signer

import (
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nado_bot/internal/models"
)

// Order — поля подписываемого ордера в том виде, в каком уходят на биржу.
type Order struct {
	Sender     [32]byte
	PriceX18   *big.Int
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
	Appendix   *big.Int
}

const (
	appendixVersion    = 1
	orderTypeShift     = 9
	reduceOnlyShift    = 11
	nonceRecvWindowMs  = 90_000
	nonceRandomBits    = 20
	IOCExpiration      = 10 * time.Second
	RestingExpiration  = time.Hour
	defaultSubaccount  = "default"
	subaccountNameSize = 12
)

// Appendix кодирует тип ордера и reduce-only в старшие биты поля appendix.
func Appendix(tif models.TimeInForce, reduceOnly bool) *big.Int {
	var ot int64
	switch tif {
	case models.IOC:
		ot = 1
	case models.FOK:
		ot = 2
	case models.PostOnly:
		ot = 3
	}
	v := big.NewInt(appendixVersion)
	v.Or(v, big.NewInt(ot<<orderTypeShift))
	if reduceOnly {
		v.Or(v, big.NewInt(1<<reduceOnlyShift))
	}
	return v
}

// Expiration — ~10с для IOC, час для лежащих ордеров.
func Expiration(now time.Time, tif models.TimeInForce) uint64 {
	ttl := RestingExpiration
	if tif.Aggressive() {
		ttl = IOCExpiration
	}
	return uint64(now.Add(ttl).Unix())
}

// Nonce: (unix ms + окно приёма) << 20 | случайные 20 бит. Свежий на каждую попытку.
func Nonce(now time.Time) uint64 {
	ms := uint64(now.UnixMilli()) + nonceRecvWindowMs
	return ms<<nonceRandomBits | rand.Uint64N(1<<nonceRandomBits)
}

// Subaccount — адрес (20 байт) + имя сабаккаунта, добитое нулями до 12 байт.
func Subaccount(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[:20], addr.Bytes())
	name := []byte(defaultSubaccount)
	if len(name) > subaccountNameSize {
		name = name[:subaccountNameSize]
	}
	copy(out[20:], name)
	return out
}

// VerifyingContract для ордера — id продукта, записанный в 20-байтный адрес.
func VerifyingContract(productID int64) common.Address {
	return common.BigToAddress(big.NewInt(productID))
}
