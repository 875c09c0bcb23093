package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-kit/kit/log/term"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"

	"ldpos_chain/cryptoclient"
)

var logger = log.NewNopLogger()

func main() {
	var durationInt, txsRate, connections int
	var verbose bool
	var outputFormat, seed, networkSymbol, amount, fee string

	flagSet := flag.NewFlagSet("ldpos-bench", flag.ExitOnError)
	flagSet.IntVar(&connections, "c", 1, "Connections to keep open per endpoint")
	flagSet.IntVar(&durationInt, "T", 10, "Exit after the specified amount of time in seconds")
	flagSet.IntVar(&txsRate, "r", 50, "Txs per second to send in a connection")
	flagSet.StringVar(&seed, "seed", "", "Passphrase of a funded wallet the transfers are sent from")
	flagSet.StringVar(&networkSymbol, "symbol", "ldpos", "Network symbol of the target chain")
	flagSet.StringVar(&amount, "amount", "1", "Transfer amount per transaction")
	flagSet.StringVar(&fee, "fee", "10000000", "Fee per transaction, must cover the chain's transfer min fee")
	flagSet.StringVar(&outputFormat, "output-format", "plain", "Output format: plain or json")
	flagSet.BoolVar(&verbose, "v", false, "Verbose output")

	flagSet.Usage = func() {
		fmt.Println(`LDPoS blockchain benchmarking tool.

Sends signed transfer transactions from one funded wallet to random fresh
addresses and measures how many of them the chain actually commits.

Usage:
	ldpos-bench [-c 1] [-T 10] [-r 50] -seed <passphrase> [host:port,host:port...]

Examples:
	ldpos-bench -seed "$BENCH_WALLET_SEED" localhost:26657`)
		fmt.Println("Flags:")
		flagSet.PrintDefaults()
	}

	flagSet.Parse(os.Args[1:])

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		os.Exit(1)
	}
	if seed == "" {
		fmt.Fprintln(os.Stderr, "-seed is required, transfers have to come from a funded wallet")
		os.Exit(1)
	}

	if verbose {
		if outputFormat == "json" {
			fmt.Fprintln(os.Stderr, "Verbose mode not supported with json output.")
			os.Exit(1)
		}
		// Color errors red
		colorFn := func(keyvals ...interface{}) term.FgBgColor {
			for i := 1; i < len(keyvals); i += 2 {
				if _, ok := keyvals[i].(error); ok {
					return term.FgBgColor{Fg: term.White, Bg: term.Red}
				}
			}
			return term.FgBgColor{}
		}
		logger = log.NewTMLoggerWithColorFn(log.NewSyncWriter(os.Stdout), colorFn)

		fmt.Printf("Running %ds test @ %s\n", durationInt, flagSet.Arg(0))
	}

	endpoints := strings.Split(flagSet.Arg(0), ",")

	factory := &txFactory{
		client: cryptoclient.NewClient(networkSymbol, seed),
		symbol: networkSymbol,
		amount: amount,
		fee:    fee,
	}
	logger.Info("Sending transfers", "from", factory.client.Address())

	// 压测开始前的链高，统计时只看这之后的区块
	minHeight, err := fetchMaxBlockHeight(endpoints[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	timeStart := time.Now()
	logger.Info("Time started", "t", timeStart)

	transacters, err := startTransacters(endpoints, connections, txsRate, factory)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	select {
	case <-time.After(time.Duration(durationInt) * time.Second):
		for _, t := range transacters {
			t.Stop()
		}
		timeStop := time.Now()
		logger.Info("Time stopped", "t", timeStop)

		// 等一个slot，让最后一批交易有机会进块
		time.Sleep(2 * time.Second)

		stats, err := calculateStatistics(endpoints[0], minHeight, timeStart, durationInt)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		printStatistics(stats, outputFormat)

		return
	}
}

func startTransacters(
	endpoints []string,
	connections, txsRate int,
	factory *txFactory,
) ([]*transacter, error) {
	transacters := make([]*transacter, len(endpoints))

	var g errgroup.Group
	for i, e := range endpoints {
		t := newTransacter(e, connections, txsRate, factory)
		t.SetLogger(logger)
		transacters[i] = t
		g.Go(t.Start)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return transacters, nil
}
