package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nado_bot/internal/errkind"
	"nado_bot/internal/exchangetest"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/signer"
	"nado_bot/internal/store"
	"nado_bot/internal/trade"
)

func newDirectory(t *testing.T) (*Directory, *int) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Accounts = []config.Account{
		{ID: 7, Network: "mainnet", PrivateKey: exchangetest.TestKey, ChatID: 700},
		{ID: 3, Network: "testnet"},
	}
	built := 0
	d, err := New(&cfg, store.NewMemory(), func(network models.Network, _ signer.Signer) trade.Exchange {
		built++
		return exchangetest.NewStub(network)
	})
	require.NoError(t, err)
	return d, &built
}

func TestIDsAndChat(t *testing.T) {
	d, _ := newDirectory(t)
	assert.Equal(t, []int64{3, 7}, d.IDs())
	assert.Equal(t, int64(700), d.ChatID(7))
	assert.Zero(t, d.ChatID(99))

	id, ok := d.AccountByChat(700)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	_, ok = d.AccountByChat(0)
	assert.False(t, ok)
	_, ok = d.AccountByChat(701)
	assert.False(t, ok)
}

func TestActiveNetwork(t *testing.T) {
	ctx := context.Background()
	d, _ := newDirectory(t)

	n, err := d.ActiveNetwork(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.Mainnet, n)

	require.NoError(t, d.SetActiveNetwork(ctx, 7, models.Testnet))
	n, err = d.ActiveNetwork(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.Testnet, n)

	assert.True(t, errkind.Has(d.SetActiveNetwork(ctx, 7, "devnet"), errkind.Validation))
	_, err = d.ActiveNetwork(ctx, 99)
	assert.True(t, errkind.Has(err, errkind.FatalAccountState))
}

func TestExchangeCachedPerNetwork(t *testing.T) {
	d, built := newDirectory(t)

	a, err := d.Exchange(7, models.Mainnet)
	require.NoError(t, err)
	b, err := d.Exchange(7, models.Mainnet)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = d.Exchange(7, models.Testnet)
	require.NoError(t, err)
	assert.Equal(t, 2, *built)
}

func TestExchangeWithoutKey(t *testing.T) {
	d, _ := newDirectory(t)
	_, err := d.Exchange(3, models.Testnet)
	assert.True(t, errkind.Has(err, errkind.FatalAccountState))
}

func TestDuplicateAccount(t *testing.T) {
	cfg := config.Defaults()
	cfg.Accounts = []config.Account{{ID: 1}, {ID: 1}}
	_, err := New(&cfg, store.NewMemory(), nil)
	assert.Error(t, err)
}
