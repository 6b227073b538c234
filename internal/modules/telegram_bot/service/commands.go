package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"nado_bot/internal/errkind"
	"nado_bot/internal/models"
	"nado_bot/internal/runner"
	"nado_bot/internal/trade"
	"nado_bot/pkg/logger"
)

// Runtime — то, что команды делают с ботами стратегий.
type Runtime interface {
	Start(ctx context.Context, p runner.StartParams) (models.StrategyState, string, error)
	Stop(ctx context.Context, accountID int64, closePositions bool) (string, error)
	Status(ctx context.Context, accountID int64) (models.StrategyStatus, error)
}

type Accounts interface {
	AccountByChat(chatID int64) (int64, bool)
	ActiveNetwork(ctx context.Context, accountID int64) (models.Network, error)
	Exchange(accountID int64, network models.Network) (trade.Exchange, error)
}

// Funding — накопленный фандинг по продуктам сети.
type Funding interface {
	FundingRates(ctx context.Context, network models.Network) (map[int64]decimal.Decimal, error)
}

const helpText = `Commands:
/run <mm|grid|dn> <product> [leverage] [slippage%] - start strategy bot
/stop [close] - stop strategy bot, "close" also flattens positions
/status - strategy bot status
/positions - open positions
/buy <product> <size> [leverage] [price] - market or limit buy
/sell <product> <size> [leverage] [price] - market or limit sell
/close <product|all> - close position(s)
/cancel <product> - cancel open orders
/funding - cumulative funding per product`

// Commands — текстовые команды чата поверх рантайма и торгового сервиса.
type Commands struct {
	runtime  Runtime
	accounts Accounts
	trade    *trade.Service
	funding  Funding
}

func NewCommands(runtime Runtime, accounts Accounts, tradeSvc *trade.Service, funding Funding) *Commands {
	return &Commands{runtime: runtime, accounts: accounts, trade: tradeSvc, funding: funding}
}

// Handle возвращает текст ответа; пустая строка — отвечать нечего.
func (c *Commands) Handle(ctx context.Context, chatID int64, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	// "/status@my_bot" -> "status"
	cmd := strings.ToLower(strings.TrimPrefix(strings.SplitN(fields[0], "@", 2)[0], "/"))
	args := fields[1:]

	if cmd == "help" || cmd == "start" {
		return helpText
	}
	accountID, ok := c.accounts.AccountByChat(chatID)
	if !ok {
		return "This chat is not linked to any account."
	}

	var (
		reply string
		err   error
	)
	switch cmd {
	case "run":
		reply, err = c.run(ctx, accountID, args)
	case "stop":
		closePositions := len(args) > 0 && strings.EqualFold(args[0], "close")
		reply, err = c.runtime.Stop(ctx, accountID, closePositions)
	case "status":
		reply, err = c.status(ctx, accountID)
	case "positions":
		reply, err = c.positions(ctx, accountID)
	case "buy":
		reply, err = c.order(ctx, accountID, models.Buy, args)
	case "sell":
		reply, err = c.order(ctx, accountID, models.Sell, args)
	case "close":
		reply, err = c.close(ctx, accountID, args)
	case "cancel":
		reply, err = c.cancel(ctx, accountID, args)
	case "funding":
		reply, err = c.fundingRates(ctx, accountID)
	default:
		return "Unknown command. Send /help for the list."
	}
	if err != nil {
		logger.Warn("command /%s for account %d failed: %v", cmd, accountID, err)
		return "❌ " + userText(err)
	}
	return reply
}

// userText — классифицированные ошибки показываем как есть, прочие прячем.
func userText(err error) string {
	if errkind.Of(err) == errkind.Generic {
		return "Something went wrong, please try again later."
	}
	return err.Error()
}

func (c *Commands) exchange(ctx context.Context, accountID int64) (trade.Exchange, models.Network, error) {
	network, err := c.accounts.ActiveNetwork(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	ex, err := c.accounts.Exchange(accountID, network)
	if err != nil {
		return nil, "", err
	}
	return ex, network, nil
}

func (c *Commands) run(ctx context.Context, accountID int64, args []string) (string, error) {
	if len(args) < 2 {
		return "", errkind.New(errkind.Validation, "Usage: /run <mm|grid|dn> <product> [leverage] [slippage%]")
	}
	p := runner.StartParams{AccountID: accountID, Strategy: args[0], Product: args[1]}
	var err error
	if len(args) > 2 {
		if p.Leverage, err = parseFloat(args[2], "leverage"); err != nil {
			return "", err
		}
	}
	if len(args) > 3 {
		if p.Slippage, err = parseFloat(args[3], "slippage"); err != nil {
			return "", err
		}
	}
	_, msg, err := c.runtime.Start(ctx, p)
	if err != nil {
		return "", err
	}
	return "▶️ " + msg, nil
}

func (c *Commands) status(ctx context.Context, accountID int64) (string, error) {
	st, err := c.runtime.Status(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !st.Running && st.Strategy == "" {
		return fmt.Sprintf("No strategy bot on %s.", st.Network), nil
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s %s on %s-PERP (%s)\n", strings.ToUpper(string(st.Strategy)), state, st.Product, st.Network)
	fmt.Fprintf(&b, "Notional $%.2f | spread %.1f bp | every %ds\n", st.NotionalUSD, st.SpreadBp, st.IntervalSeconds)
	fmt.Fprintf(&b, "TP %.2f%% / SL %.2f%%\n", st.TakeProfitPct, st.StopLossPct)
	if st.StartedAt != nil {
		fmt.Fprintf(&b, "Started %s\n", st.StartedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "Cycles: %d", st.Runs)
	if st.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", st.LastError)
	}
	return b.String(), nil
}

func (c *Commands) positions(ctx context.Context, accountID int64) (string, error) {
	ex, network, err := c.exchange(ctx, accountID)
	if err != nil {
		return "", err
	}
	nets, err := c.trade.Positions(ctx, ex)
	if err != nil {
		return "", err
	}
	if len(nets) == 0 {
		return fmt.Sprintf("No open positions on %s.", network), nil
	}
	lines := make([]string, 0, len(nets)+1)
	lines = append(lines, fmt.Sprintf("Positions (%s):", network))
	for _, p := range nets {
		lines = append(lines, fmt.Sprintf("%s %s %s", models.ProductName(p.ProductID), p.Side(), p.Amount.Abs().String()))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Commands) order(ctx context.Context, accountID int64, side models.Side, args []string) (string, error) {
	if len(args) < 2 {
		return "", errkind.Newf(errkind.Validation, "Usage: /%s <product> <size> [leverage] [price]", side)
	}
	size, err := decimal.NewFromString(args[1])
	if err != nil {
		return "", errkind.Newf(errkind.Validation, "Invalid size '%s'.", args[1])
	}
	req := trade.Request{
		AccountID: accountID,
		Product:   args[0],
		Side:      side,
		Size:      size,
		Leverage:  1,
		Slippage:  1,
		Manual:    true,
	}
	if len(args) > 2 {
		if req.Leverage, err = parseFloat(args[2], "leverage"); err != nil {
			return "", err
		}
	}
	if len(args) > 3 {
		price, err := decimal.NewFromString(args[3])
		if err != nil || !price.IsPositive() {
			return "", errkind.Newf(errkind.Validation, "Invalid price '%s'.", args[3])
		}
		req.Price = optional.Some(price)
	}

	ex, network, err := c.exchange(ctx, accountID)
	if err != nil {
		return "", err
	}
	res := c.trade.Execute(ctx, ex, req)
	if !res.Success {
		return "", res.Err
	}
	kind := "Market"
	if req.Price.IsSome() {
		kind = "Limit"
	}
	return fmt.Sprintf("✅ %s %s %s %s @ %s (%s)", kind, side, res.Size.String(),
		models.ProductName(res.ProductID), res.FilledPrice.String(), network), nil
}

func (c *Commands) close(ctx context.Context, accountID int64, args []string) (string, error) {
	if len(args) < 1 {
		return "", errkind.New(errkind.Validation, "Usage: /close <product|all>")
	}
	ex, _, err := c.exchange(ctx, accountID)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(args[0], "all") {
		res, err := c.trade.CloseAll(ctx, ex, 1)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("✅ Closed %d position(s).", len(res.Closed))
		if len(res.Failed) > 0 {
			msg += fmt.Sprintf(" %d failed.", len(res.Failed))
		}
		return msg, nil
	}
	res := c.trade.ClosePosition(ctx, ex, args[0], 1)
	if !res.Success {
		return "", res.Err
	}
	return fmt.Sprintf("✅ Closed %s %s @ %s", models.ProductName(res.ProductID), res.Size.String(), res.FilledPrice.String()), nil
}

func (c *Commands) cancel(ctx context.Context, accountID int64, args []string) (string, error) {
	if len(args) < 1 {
		return "", errkind.New(errkind.Validation, "Usage: /cancel <product>")
	}
	product, ok := models.LookupProduct(args[0])
	if !ok {
		return "", errkind.Newf(errkind.Validation, "Unknown product '%s'.", args[0])
	}
	ex, _, err := c.exchange(ctx, accountID)
	if err != nil {
		return "", err
	}
	n, err := c.trade.CancelAll(ctx, ex, product.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Cancelled %d order(s) on %s.", n, product.Name), nil
}

func (c *Commands) fundingRates(ctx context.Context, accountID int64) (string, error) {
	network, err := c.accounts.ActiveNetwork(ctx, accountID)
	if err != nil {
		return "", err
	}
	rates, err := c.funding.FundingRates(ctx, network)
	if err != nil {
		return "", errkind.Wrap(errkind.TransientNetwork, "Could not fetch funding rates.", err)
	}
	ids := make([]int64, 0, len(rates))
	for id := range rates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	lines := []string{fmt.Sprintf("Cumulative funding (%s):", network)}
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%s %s", models.ProductName(id), rates[id].StringFixed(6)))
	}
	return strings.Join(lines, "\n"), nil
}

func parseFloat(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, errkind.Newf(errkind.Validation, "Invalid %s '%s'.", name, s)
	}
	return v, nil
}
