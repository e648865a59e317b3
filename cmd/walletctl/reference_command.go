package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/congo-pay/wallet_ledger/internal/reference"
)

func referenceCommand() *cli.Command {
	return &cli.Command{
		Name:  "reference",
		Usage: "Print freshly generated transaction references",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "prefix",
				Usage:   "Reference prefix",
				EnvVars: []string{"REFERENCE_PREFIX"},
				Value:   "TXN",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   1,
			},
		},
		Action: func(c *cli.Context) error {
			gen := reference.New(c.String("prefix"))
			for i := 0; i < c.Int("count"); i++ {
				fmt.Fprintln(c.App.Writer, gen.Next())
			}
			return nil
		},
	}
}
