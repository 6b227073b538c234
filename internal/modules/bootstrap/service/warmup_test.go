package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nado_bot/internal/increments"
	"nado_bot/internal/models"
)

type source struct{}

func (source) AllProducts(_ context.Context, n models.Network) ([]increments.ProductMeta, error) {
	if n == models.Mainnet {
		return nil, errors.New("gateway down")
	}
	return []increments.ProductMeta{
		{ProductID: 2, PriceX18: big.NewInt(1e18), SizeX18: big.NewInt(1e15)},
		{ProductID: 4, PriceX18: big.NewInt(1e17), SizeX18: big.NewInt(1e16)},
	}, nil
}

func TestWarmupSurvivesFailedNetwork(t *testing.T) {
	reg := increments.NewRegistry(source{}, time.Second)
	wu := NewWarmuper(reg, []models.Network{models.Testnet, models.Mainnet})

	assert.Equal(t, 2, wu.Warmup(context.Background()))
	assert.Equal(t, "0.001", reg.Get(models.Testnet, 2).Size.String())
	assert.False(t, reg.Get(models.Mainnet, 2).Complete())
}
