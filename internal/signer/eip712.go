// Package signer подписывает ордера EIP-712 приватным ключом аккаунта.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	domainName    = "Nado"
	domainVersion = "0.0.1"
)

var domainTypes = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Signer — непрозрачная возможность подписать ордер.
type Signer interface {
	Address() common.Address
	Subaccount() [32]byte
	SignOrder(productID int64, o Order) (Signed, error)
	SignCancellation(endpoint common.Address, c Cancellation) (SignedCancellation, error)
}

// Cancellation — отмена ордеров по digest.
type Cancellation struct {
	Sender     [32]byte
	ProductIDs []int64
	Digests    []common.Hash
	Nonce      uint64
}

type SignedCancellation struct {
	Cancellation Cancellation
	Signature    string
}

type Signed struct {
	Order     Order
	Digest    string // 0x-hex keccak typed data
	Signature string // 0x-hex r||s||v, v = 27/28
}

type EIP712 struct {
	key        *ecdsa.PrivateKey
	address    common.Address
	subaccount [32]byte
	chainID    int64
}

// NewEIP712 принимает ключ в hex (с 0x или без).
func NewEIP712(hexKey string, chainID int64) (*EIP712, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return &EIP712{
		key:        key,
		address:    addr,
		subaccount: Subaccount(addr),
		chainID:    chainID,
	}, nil
}

func (s *EIP712) Address() common.Address { return s.address }
func (s *EIP712) Subaccount() [32]byte    { return s.subaccount }

// SubaccountHex — bytes32 сабаккаунта в 0x-hex, как его ждут query-эндпоинты.
func SubaccountHex(sub [32]byte) string {
	return hexutil.Encode(sub[:])
}

func orderTypedData(chainID, productID int64, o Order) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes,
			"Order": {
				{Name: "sender", Type: "bytes32"},
				{Name: "priceX18", Type: "int128"},
				{Name: "amount", Type: "int128"},
				{Name: "expiration", Type: "uint64"},
				{Name: "nonce", Type: "uint64"},
				{Name: "appendix", Type: "uint128"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain(chainID, VerifyingContract(productID)),
		Message: apitypes.TypedDataMessage{
			"sender":     hexutil.Encode(o.Sender[:]),
			"priceX18":   new(big.Int).Set(o.PriceX18),
			"amount":     new(big.Int).Set(o.Amount),
			"expiration": new(big.Int).SetUint64(o.Expiration),
			"nonce":      new(big.Int).SetUint64(o.Nonce),
			"appendix":   new(big.Int).Set(o.Appendix),
		},
	}
}

// Digest — keccak256("\x19\x01" || domainSeparator || hashStruct(order)).
func Digest(chainID, productID int64, o Order) (common.Hash, error) {
	return hashTyped(orderTypedData(chainID, productID, o))
}

func domain(chainID int64, verifying common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              domainName,
		Version:           domainVersion,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: verifying.Hex(),
	}
}

func hashTyped(td apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash %s: %w", td.PrimaryType, err)
	}
	raw := []byte("\x19\x01")
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256Hash(raw), nil
}

func (s *EIP712) sign(digest common.Hash) (string, error) {
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func (s *EIP712) SignCancellation(endpoint common.Address, c Cancellation) (SignedCancellation, error) {
	c.Sender = s.subaccount
	productIDs := make([]interface{}, 0, len(c.ProductIDs))
	for _, id := range c.ProductIDs {
		productIDs = append(productIDs, big.NewInt(id))
	}
	digests := make([]interface{}, 0, len(c.Digests))
	for _, d := range c.Digests {
		digests = append(digests, d.Hex())
	}
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes,
			"Cancellation": {
				{Name: "sender", Type: "bytes32"},
				{Name: "productIds", Type: "uint32[]"},
				{Name: "digests", Type: "bytes32[]"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "Cancellation",
		Domain:      domain(s.chainID, endpoint),
		Message: apitypes.TypedDataMessage{
			"sender":     hexutil.Encode(c.Sender[:]),
			"productIds": productIDs,
			"digests":    digests,
			"nonce":      new(big.Int).SetUint64(c.Nonce),
		},
	}
	digest, err := hashTyped(td)
	if err != nil {
		return SignedCancellation{}, err
	}
	sig, err := s.sign(digest)
	if err != nil {
		return SignedCancellation{}, err
	}
	return SignedCancellation{Cancellation: c, Signature: sig}, nil
}

func (s *EIP712) SignOrder(productID int64, o Order) (Signed, error) {
	o.Sender = s.subaccount
	digest, err := Digest(s.chainID, productID, o)
	if err != nil {
		return Signed{}, err
	}
	sig, err := s.sign(digest)
	if err != nil {
		return Signed{}, err
	}
	return Signed{
		Order:     o,
		Digest:    digest.Hex(),
		Signature: sig,
	}, nil
}
