package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/urfave/cli/v2"
)

const (
	URLFlag         = "url"
	ConfigFlag      = "config"
	LogLevelFlag    = "log-level"
	MetricsAddrFlag = "metrics-addr"
	TagFlag         = "tag"
	CountFlag       = "count"
	ConcurrencyFlag = "concurrency"
)

func main() {
	app := &cli.App{
		Name:  "rpc-cli",
		Usage: "Talk to an Ethereum JSON-RPC node over http, websocket or ipc",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    URLFlag,
				Aliases: []string{"u"},
				Usage:   "Node `URL` (http(s)://, ws(s):// or an ipc path)",
				EnvVars: []string{"RPC_URL"},
			},
			&cli.StringFlag{
				Name:    ConfigFlag,
				Aliases: []string{"c"},
				Usage:   "JSON client config `FILE`",
			},
			&cli.StringFlag{
				Name:  LogLevelFlag,
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  MetricsAddrFlag,
				Usage: "Serve prometheus metrics on `ADDR` while the command runs",
			},
			&cli.StringFlag{
				Name:  TagFlag,
				Usage: "Tag attached to the call counters",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "call",
				Usage:     "Send a single request and print the result",
				ArgsUsage: "<method> [params-json]",
				Action:    callAction,
			},
			{
				Name:      "batch",
				Aliases:   []string{"b"},
				Usage:     "Send several requests in one batch",
				ArgsUsage: "<method[=params-json]>...",
				Action:    batchAction,
			},
			{
				Name:      "subscribe",
				Aliases:   []string{"sub"},
				Usage:     "Subscribe and print notifications until interrupted",
				ArgsUsage: "<method> [params-json]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  CountFlag,
						Usage: "Stop after `N` notifications, 0 means never",
					},
				},
				Action: subscribeAction,
			},
			{
				Name:      "stats",
				Usage:     "Call a method repeatedly and print the call counters",
				ArgsUsage: "<method> [params-json]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  CountFlag,
						Value: 10,
						Usage: "Number of calls",
					},
					&cli.IntFlag{
						Name:  ConcurrencyFlag,
						Value: 1,
						Usage: "Number of calls in flight at once",
					},
				},
				Action: statsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.S().Fatal(err)
	}
}
