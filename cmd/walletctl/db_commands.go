package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/congo-pay/wallet_ledger/internal/infra"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the embedded schema to the database",
		Action: func(c *cli.Context) error {
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := infra.Migrate(c.Context, pool); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			names, _ := infra.Migrations()
			fmt.Fprintf(c.App.Writer, "applied %d migration file(s)\n", len(names))
			return nil
		},
	}
}

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List all wallets",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			wallets, err := wallet.NewPostgresRepository(pool).FindAll(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, wallets)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCURRENCY\tBALANCE\tVERSION\tUPDATED")
			for _, wl := range wallets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					wl.ID, wl.Currency, wl.Balance.StringFixed(money.Scale), wl.Version, wl.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a wallet and its recent transactions",
		ArgsUsage: "<wallet-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of transactions to show",
				Value:   ledger.DefaultLimit,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet id is required")
			}
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := wallet.NewService(wallet.NewPostgresRepository(pool), ledger.NewPostgresLog(pool))
			details, err := svc.Details(c.Context, c.Args().First(), wallet.DetailsQuery{Limit: c.Int("limit")})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, details)
			}

			fmt.Fprintf(c.App.Writer, "Wallet %s (%s) balance %s version %d, %d transaction(s)\n\n",
				details.Wallet.ID, details.Wallet.Currency, details.Wallet.Balance.StringFixed(money.Scale),
				details.Wallet.Version, details.TotalCount)
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REFERENCE\tTYPE\tSTATUS\tAMOUNT\tSOURCE\tTARGET\tCREATED")
			for _, tx := range details.Transactions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					tx.Reference, tx.Type, tx.Status, tx.Amount.StringFixed(money.Scale),
					orDash(tx.SourceWalletID), tx.TargetWalletID, tx.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func getPool(c *cli.Context) (*pgxpool.Pool, error) {
	url := c.String("database-url")
	if url == "" {
		return nil, fmt.Errorf("database URL is required (set DATABASE_URL or use --database-url)")
	}
	return infra.NewPostgresPool(c.Context, url)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
