package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/wallet_ledger/internal/idempotency"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/reference"
	"github.com/congo-pay/wallet_ledger/internal/retry"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// simulation drives concurrent transfers against in-memory stores. Every
// worker owns one source wallet and pays into a shared pool of sinks, so sink
// updates race while compensating rollbacks on sources always succeed.
type simulation struct {
	Workers        int
	Sinks          int
	TransfersEach  int
	InitialBalance decimal.Decimal
	MaxAmount      decimal.Decimal
	Policy         retry.Policy
}

type simulationReport struct {
	Attempted     int            `json:"attempted"`
	Completed     int            `json:"completed"`
	Rejected      map[string]int `json:"rejected"`
	ExpectedTotal string         `json:"expected_total"`
	ActualTotal   string         `json:"actual_total"`
	Conserved     bool           `json:"conserved"`
	HistoryMatch  bool           `json:"history_match"`
	Duration      time.Duration  `json:"duration"`
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run concurrent in-process transfers and verify money conservation",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Value: 8, Usage: "Concurrent senders, each with its own source wallet"},
			&cli.IntFlag{Name: "sinks", Value: 2, Usage: "Shared target wallets"},
			&cli.IntFlag{Name: "transfers", Value: 50, Usage: "Transfers per worker"},
			&cli.StringFlag{Name: "initial-balance", Value: "1000.00", Usage: "Opening balance of every source wallet"},
			&cli.StringFlag{Name: "max-amount", Value: "25.00", Usage: "Upper bound of each random transfer amount"},
			&cli.IntFlag{Name: "max-attempts", Value: 5, Usage: "Optimistic-locking attempts per transfer"},
			&cli.DurationFlag{Name: "backoff", Value: time.Millisecond, Usage: "Linear retry backoff base"},
		},
		Action: func(c *cli.Context) error {
			initial, err := money.Parse(c.String("initial-balance"))
			if err != nil {
				return err
			}
			maxAmount, err := money.Parse(c.String("max-amount"))
			if err != nil {
				return err
			}
			sim := simulation{
				Workers:        c.Int("workers"),
				Sinks:          c.Int("sinks"),
				TransfersEach:  c.Int("transfers"),
				InitialBalance: initial,
				MaxAmount:      maxAmount,
				Policy:         retry.Policy{MaxAttempts: c.Int("max-attempts"), Base: c.Duration("backoff")},
			}

			report, err := sim.Run(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				if err := outputJSON(c.App.Writer, report); err != nil {
					return err
				}
			} else {
				printReport(c, report)
			}
			if !report.Conserved || !report.HistoryMatch {
				return cli.Exit("ledger invariants violated", 1)
			}
			return nil
		},
	}
}

func printReport(c *cli.Context, r simulationReport) {
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "attempted\t%d\n", r.Attempted)
	fmt.Fprintf(w, "completed\t%d\n", r.Completed)
	for code, n := range r.Rejected {
		fmt.Fprintf(w, "rejected %s\t%d\n", code, n)
	}
	fmt.Fprintf(w, "expected total\t%s\n", r.ExpectedTotal)
	fmt.Fprintf(w, "actual total\t%s\n", r.ActualTotal)
	fmt.Fprintf(w, "conserved\t%t\n", r.Conserved)
	fmt.Fprintf(w, "history matches balances\t%t\n", r.HistoryMatch)
	fmt.Fprintf(w, "duration\t%s\n", r.Duration)
	_ = w.Flush()
}

// Run executes the simulation and checks two invariants: the sum of balances
// is unchanged and every balance equals its opening balance replayed through
// the completed transactions.
func (s simulation) Run(ctx context.Context) (simulationReport, error) {
	if s.Workers < 1 || s.Sinks < 1 || s.TransfersEach < 0 {
		return simulationReport{}, fmt.Errorf("workers and sinks must be positive")
	}
	if err := money.ValidateAmount(s.MaxAmount, decimal.Zero); err != nil {
		return simulationReport{}, fmt.Errorf("max amount: %w", err)
	}

	repo := wallet.NewMemoryRepository()
	txLog := ledger.NewInMemory()
	walletSvc := wallet.NewService(repo, txLog)
	svc := payments.NewService(repo, txLog, idempotency.NewGuard(idempotency.NewMemoryStore()),
		reference.New("SIM"), nil, payments.WithRetryPolicy(s.Policy))

	opening := make(map[string]decimal.Decimal)
	sources := make([]wallet.Wallet, s.Workers)
	sinks := make([]wallet.Wallet, s.Sinks)
	for i := range sources {
		w, err := walletSvc.Create(ctx, wallet.CreateInput{InitialBalance: s.InitialBalance})
		if err != nil {
			return simulationReport{}, err
		}
		sources[i] = w
		opening[w.ID] = w.Balance
	}
	for i := range sinks {
		w, err := walletSvc.Create(ctx, wallet.CreateInput{})
		if err != nil {
			return simulationReport{}, err
		}
		sinks[i] = w
		opening[w.ID] = w.Balance
	}

	var (
		mu     sync.Mutex
		report = simulationReport{Rejected: make(map[string]int)}
	)
	cents := s.MaxAmount.Shift(money.Scale).IntPart()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			for n := 0; n < s.TransfersEach; n++ {
				amount := decimal.New(rand.Int64N(cents)+1, -money.Scale)
				target := sinks[rand.IntN(len(sinks))]
				_, err := svc.Transfer(gctx, payments.TransferInput{
					SourceWalletID: src.ID,
					TargetWalletID: target.ID,
					Amount:         amount,
					IdempotencyKey: fmt.Sprintf("sim-%d-%d", i, n),
				})

				mu.Lock()
				report.Attempted++
				if err == nil {
					report.Completed++
				} else if code, ok := ledger.CodeOf(err); ok {
					report.Rejected[string(code)]++
				} else {
					mu.Unlock()
					return err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return simulationReport{}, err
	}
	report.Duration = time.Since(start)

	expected := s.InitialBalance.Mul(decimal.NewFromInt(int64(s.Workers)))
	actual := decimal.Zero
	report.HistoryMatch = true
	for id, open := range opening {
		w, err := walletSvc.Get(ctx, id)
		if err != nil {
			return simulationReport{}, err
		}
		actual = actual.Add(w.Balance)

		replayed, err := replay(ctx, txLog, id, open)
		if err != nil {
			return simulationReport{}, err
		}
		if !replayed.Equal(w.Balance) {
			report.HistoryMatch = false
		}
	}
	report.ExpectedTotal = expected.StringFixed(money.Scale)
	report.ActualTotal = actual.StringFixed(money.Scale)
	report.Conserved = expected.Equal(actual)
	return report, nil
}

// replay applies every completed transaction touching walletID to its opening balance.
func replay(ctx context.Context, log ledger.Log, walletID string, opening decimal.Decimal) (decimal.Decimal, error) {
	balance := opening
	opts := ledger.ListOptions{Limit: ledger.MaxLimit, Order: ledger.OrderAsc}
	for {
		page, err := log.FindByWallet(ctx, walletID, opts)
		if err != nil {
			return decimal.Zero, err
		}
		for _, tx := range page {
			if tx.Status != ledger.StatusCompleted {
				continue
			}
			if tx.SourceWalletID == walletID {
				balance = balance.Sub(tx.Amount)
			}
			if tx.TargetWalletID == walletID {
				balance = balance.Add(tx.Amount)
			}
		}
		if len(page) < opts.Limit {
			return balance, nil
		}
		opts.Offset += len(page)
	}
}
