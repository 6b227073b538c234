// botctl — операторские команды поверх того же хранилища, что и бот.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"nado_bot/internal/accounts"
	"nado_bot/internal/increments"
	"nado_bot/internal/models"
	"nado_bot/internal/modules/config"
	"nado_bot/internal/modules/nado_client"
	"nado_bot/internal/modules/storage"
	"nado_bot/internal/runner"
	"nado_bot/internal/settings"
	"nado_bot/internal/store"
)

// withStore открывает хранилище из конфига на время одной команды.
func withStore(ctx context.Context, fn func(*config.Config, store.Store) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	s, closeFn, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(cfg, s)
}

func statesAction(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, func(_ *config.Config, s store.Store) error {
		rows, err := s.Scan(ctx, runner.StatePrefix)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(rows))
		for k := range rows {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tNETWORK\tRUNNING\tSTRATEGY\tPRODUCT\tRUNS\tLAST ERROR")
		for _, k := range keys {
			key, ok := runner.ParseStateKey(k)
			if !ok {
				continue
			}
			var st models.StrategyState
			if err := store.GetJSON(ctx, s, k, &st); err != nil {
				fmt.Fprintf(w, "%d\t%s\t?\t\t\t\t%v\n", key.AccountID, key.Network, err)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\t%d\t%s\n",
				key.AccountID, key.Network, st.Running, st.Strategy, st.Product, st.Runs, st.LastError)
		}
		return w.Flush()
	})
}

func stateAction(ctx context.Context, cmd *cli.Command) error {
	network, ok := models.ParseNetwork(cmd.String("network"))
	if !ok {
		return fmt.Errorf("unknown network %q", cmd.String("network"))
	}
	key := runner.Key{AccountID: cmd.Int64("account"), Network: network}
	return withStore(ctx, func(_ *config.Config, s store.Store) error {
		raw, err := s.Get(ctx, runner.StateKey(key))
		if err != nil {
			return fmt.Errorf("%s: %w", runner.StateKey(key), err)
		}
		fmt.Println(string(raw))
		return nil
	})
}

func pauseAction(paused bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return withStore(ctx, func(_ *config.Config, s store.Store) error {
			if err := settings.NewService(s).SetPaused(ctx, paused); err != nil {
				return err
			}
			fmt.Printf("%s = %t\n", settings.PauseKey, paused)
			return nil
		})
	}
}

// networkAction переключает активную сеть; запущенный бот старой сети остановится на ближайшем цикле.
func networkAction(ctx context.Context, cmd *cli.Command) error {
	network, ok := models.ParseNetwork(cmd.String("set"))
	if !ok {
		return fmt.Errorf("unknown network %q", cmd.String("set"))
	}
	return withStore(ctx, func(cfg *config.Config, s store.Store) error {
		dir, err := accounts.NewDirectory(cfg, nil, s)
		if err != nil {
			return err
		}
		if err := dir.SetActiveNetwork(ctx, cmd.Int64("account"), network); err != nil {
			return err
		}
		fmt.Printf("account %d -> %s\n", cmd.Int64("account"), network)
		return nil
	})
}

func incrementsAction(ctx context.Context, cmd *cli.Command) error {
	network, ok := models.ParseNetwork(cmd.String("network"))
	if !ok {
		return fmt.Errorf("unknown network %q", cmd.String("network"))
	}
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	gw, err := nado_client.NewGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	reg := increments.NewRegistry(gw, cmd.Duration("timeout"))
	if err := reg.WarmNetwork(ctx, network); err != nil {
		return err
	}
	snap := reg.Snapshot()
	keys := make([]increments.Key, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ProductID < keys[j].ProductID })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tPRICE INCREMENT\tSIZE INCREMENT")
	for _, k := range keys {
		inc := snap[k]
		fmt.Fprintf(w, "%s\t%s\t%s\n", models.ProductName(k.ProductID), inc.Price.String(), inc.Size.String())
	}
	return w.Flush()
}

func main() {
	accountFlag := &cli.Int64Flag{Name: "account", Aliases: []string{"a"}, Usage: "account id", Required: true}
	networkFlag := &cli.StringFlag{Name: "network", Aliases: []string{"n"}, Usage: "testnet | mainnet", Value: string(models.Testnet)}

	cmd := &cli.Command{
		Name:  "botctl",
		Usage: "Operator commands for the strategy runtime",
		Commands: []*cli.Command{
			{
				Name:   "states",
				Usage:  "List persisted strategy states",
				Action: statesAction,
			},
			{
				Name:   "state",
				Usage:  "Print one persisted strategy state as JSON",
				Flags:  []cli.Flag{accountFlag, networkFlag},
				Action: stateAction,
			},
			{
				Name:   "pause",
				Usage:  "Pause trading for every strategy loop",
				Action: pauseAction(true),
			},
			{
				Name:   "resume",
				Usage:  "Resume trading",
				Action: pauseAction(false),
			},
			{
				Name:  "network",
				Usage: "Switch the active network of an account",
				Flags: []cli.Flag{
					accountFlag,
					&cli.StringFlag{Name: "set", Usage: "testnet | mainnet", Required: true},
				},
				Action: networkAction,
			},
			{
				Name:  "increments",
				Usage: "Warm and print price/size increments from exchange metadata",
				Flags: []cli.Flag{
					networkFlag,
					&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second},
				},
				Action: incrementsAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(strings.TrimSpace(err.Error()))
	}
}
