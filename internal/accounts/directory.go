// Package accounts — аккаунты из конфига: ключ, чат, активная сеть и клиенты биржи.
package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/modules/nado_client/service"
	"nado_bot/internal/signer"
	"nado_bot/internal/store"
	"nado_bot/internal/trade"
)

// NetworkKey — активная сеть аккаунта в KV; переключение останавливает боты другой сети.
func NetworkKey(accountID int64) string {
	return fmt.Sprintf("active_network:%d", accountID)
}

type account struct {
	id      int64
	chatID  int64
	network models.Network // сеть по умолчанию из конфига
	key     string
}

type clientKey struct {
	id      int64
	network models.Network
}

// ClientFactory строит клиента биржи для подписанта в сети.
type ClientFactory func(network models.Network, s signer.Signer) trade.Exchange

type Directory struct {
	store    store.Store
	chainIDs map[models.Network]int64
	factory  ClientFactory

	mu       sync.Mutex
	accounts map[int64]account
	clients  map[clientKey]trade.Exchange
}

func NewDirectory(cfg *config.Config, gw *service.Gateway, st store.Store) (*Directory, error) {
	return New(cfg, st, func(network models.Network, s signer.Signer) trade.Exchange {
		return service.NewClient(gw, network, s)
	})
}

func New(cfg *config.Config, st store.Store, factory ClientFactory) (*Directory, error) {
	d := &Directory{
		store:    st,
		chainIDs: make(map[models.Network]int64, len(cfg.Exchange.Networks)),
		factory:  factory,
		accounts: make(map[int64]account, len(cfg.Accounts)),
		clients:  make(map[clientKey]trade.Exchange),
	}
	for n, ep := range cfg.Exchange.Networks {
		d.chainIDs[n] = ep.ChainID
	}
	for _, a := range cfg.Accounts {
		network, ok := models.ParseNetwork(a.Network)
		if !ok {
			network = models.Testnet
		}
		if _, dup := d.accounts[a.ID]; dup {
			return nil, fmt.Errorf("accounts: duplicate account %d", a.ID)
		}
		d.accounts[a.ID] = account{id: a.ID, chatID: a.ChatID, network: network, key: a.Key()}
	}
	return d, nil
}

func (d *Directory) get(id int64) (account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return account{}, errkind.Newf(errkind.FatalAccountState, "Unknown account %d.", id)
	}
	return a, nil
}

// IDs — все аккаунты по возрастанию.
func (d *Directory) IDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, 0, len(d.accounts))
	for id := range d.accounts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Directory) ChatID(id int64) int64 {
	a, err := d.get(id)
	if err != nil {
		return 0
	}
	return a.chatID
}

// AccountByChat — аккаунт, привязанный к чату; команды из чужих чатов не принимаются.
func (d *Directory) AccountByChat(chatID int64) (int64, bool) {
	if chatID == 0 {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var (
		found int64
		ok    bool
	)
	for id, a := range d.accounts {
		if a.chatID == chatID && (!ok || id < found) {
			found, ok = id, true
		}
	}
	return found, ok
}

// ActiveNetwork — сохранённый выбор сети, иначе сеть из конфига.
func (d *Directory) ActiveNetwork(ctx context.Context, id int64) (models.Network, error) {
	a, err := d.get(id)
	if err != nil {
		return "", err
	}
	raw, err := d.store.Get(ctx, NetworkKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return a.network, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load active network")
	}
	network, ok := models.ParseNetwork(string(raw))
	if !ok {
		return a.network, nil
	}
	return network, nil
}

func (d *Directory) SetActiveNetwork(ctx context.Context, id int64, network models.Network) error {
	if _, err := d.get(id); err != nil {
		return err
	}
	if _, ok := d.chainIDs[network]; !ok {
		return errkind.Newf(errkind.Validation, "Network %s is not configured.", network)
	}
	return d.store.Put(ctx, NetworkKey(id), []byte(network))
}

// Exchange — клиент аккаунта в сети, один на пару.
func (d *Directory) Exchange(id int64, network models.Network) (trade.Exchange, error) {
	a, err := d.get(id)
	if err != nil {
		return nil, err
	}
	chainID, ok := d.chainIDs[network]
	if !ok {
		return nil, errkind.Newf(errkind.Validation, "Network %s is not configured.", network)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := clientKey{id: id, network: network}
	if ex, ok := d.clients[k]; ok {
		return ex, nil
	}
	if a.key == "" {
		return nil, errkind.Newf(errkind.FatalAccountState, "Account %d has no signing key.", id)
	}
	s, err := signer.NewEIP712(a.key, chainID)
	if err != nil {
		return nil, errkind.Wrap(errkind.FatalAccountState, fmt.Sprintf("Account %d has an invalid signing key.", id), err)
	}
	ex := d.factory(network, s)
	d.clients[k] = ex
	return ex, nil
}
