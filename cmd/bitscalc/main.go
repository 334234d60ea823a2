// Package main implements bitscalc, which turns a block interval and an
// expected network hashrate into the compact bits, target and difficulty a
// new chain should start with.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/satoshiware/genesis/internal/bitcoin"
	"github.com/satoshiware/genesis/internal/config"
	"github.com/satoshiware/genesis/pkg/jsonx"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bitscalc: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	defaults := config.DefaultCalculator()

	return &cli.App{
		Name:      "bitscalc",
		Usage:     "compute genesis bits from a block interval and a hashrate",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "time", Aliases: []string{"t"}, Usage: "time between blocks in seconds", Value: strconv.FormatUint(uint64(defaults.TimeBetweenBlocks), 10)},
			&cli.Float64Flag{Name: "hashrate", Aliases: []string{"r"}, Usage: "expected network hashrate in H/s", Value: defaults.Hashrate},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
		},
		Action: func(c *cli.Context) error {
			seconds, err := config.ParseUint32("time", c.String("time"))
			if err != nil {
				return err
			}
			cfg := config.CalculatorConfig{
				TimeBetweenBlocks: seconds,
				Hashrate:          c.Float64("hashrate"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			calc, err := bitcoin.Calculate(cfg.TimeBetweenBlocks, cfg.Hashrate)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(stdout, calc)
			}
			return writeText(stdout, calc)
		},
	}
}

func writeText(w io.Writer, calc *bitcoin.Calculation) error {
	_, err := fmt.Fprintf(w, "\n"+
		"time: %d seconds (time between blocks)\n"+
		"bits: 0x%08x\n"+
		"target: 0x%064x\n"+
		"difficulty: %s\n"+
		"hashrate: %s Gh/s\n\n",
		calc.TimeBetweenBlocks,
		calc.Bits,
		calc.Target,
		formatFloat(calc.Difficulty),
		formatFloat(calc.RequestedHashrate/1e9),
	)
	return err
}

type calculationJSON struct {
	Time              uint32  `json:"time"`
	Bits              string  `json:"bits"`
	Target            string  `json:"target"`
	Difficulty        float64 `json:"difficulty"`
	Hashrate          float64 `json:"hashrate"`
	RequestedHashrate float64 `json:"requested_hashrate"`
}

func writeJSON(w io.Writer, calc *bitcoin.Calculation) error {
	data, err := jsonx.Marshal(calculationJSON{
		Time:              calc.TimeBetweenBlocks,
		Bits:              fmt.Sprintf("0x%08x", calc.Bits),
		Target:            fmt.Sprintf("0x%064x", calc.Target),
		Difficulty:        calc.Difficulty,
		Hashrate:          calc.Hashrate,
		RequestedHashrate: calc.RequestedHashrate,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// formatFloat prints the shortest exact decimal and keeps a ".0" on whole
// numbers.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
