package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/obscura-mint/api/clients"
	"github.com/ruteri/obscura-mint/cmd/flags"
	"github.com/ruteri/obscura-mint/cryptoutils"
	"github.com/ruteri/obscura-mint/registry"
	"github.com/urfave/cli/v2"
)

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Value:   "http://127.0.0.1:8080",
		EnvVars: []string{"OBSCURA_SERVER"},
		Usage:   "obscura node API address",
	}
	contractFlag = &cli.StringFlag{
		Name:    "contract",
		EnvVars: []string{"OBSCURA_CONTRACT"},
		Usage:   "deployed contract address, used with --rpc-addr",
	}
	coprocessorFlag = &cli.StringFlag{
		Name:    "coprocessor",
		EnvVars: []string{"OBSCURA_COPROCESSOR"},
		Usage:   "obscura node serving the coprocessor for a chain deployment, used with --rpc-addr",
	}
	keyFlag = &cli.StringFlag{
		Name:    "key",
		EnvVars: []string{"OBSCURA_PRIVATE_KEY"},
		Usage:   "hex secp256k1 private key of the caller",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Value: 30 * time.Second,
		Usage: "timeout of each request",
	}
	idFlag = &cli.Uint64Flag{
		Name:     "id",
		Required: true,
		Usage:    "series id",
	}
)

func main() {
	app := &cli.App{
		Name:  "obscura",
		Usage: "Interact with ObscuraMint through a node or a deployed contract",
		Flags: append([]cli.Flag{
			serverFlag,
			flags.RpcAddrFlag,
			contractFlag,
			coprocessorFlag,
			keyFlag,
			timeoutFlag,
		}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "address",
				Usage: "Print the caller and contract addresses",
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					a.showAddress()
					return nil
				}),
			},
			{
				Name:  "owner",
				Usage: "Print the contract owner",
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					return a.showOwner(ctx)
				}),
			},
			{
				Name:  "transfer-ownership",
				Usage: "Transfer contract ownership",
				Flags: []cli.Flag{&cli.StringFlag{Name: "new-owner", Required: true, Usage: "address of the new owner"}},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					newOwner, err := parseAddressFlag("new-owner", cCtx.String("new-owner"))
					if err != nil {
						return err
					}
					return a.transferOwnership(ctx, newOwner)
				}),
			},
			{
				Name:  "create-series",
				Usage: "Create a new series",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "series name"},
					&cli.Int64Flag{Name: "max", Required: true, Usage: "maximum supply"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					name, err := validateSeriesName(cCtx.String("name"))
					if err != nil {
						return err
					}
					maxSupply, err := positiveUint32("max", cCtx.Int64("max"))
					if err != nil {
						return err
					}
					return a.createSeries(ctx, name, maxSupply)
				}),
			},
			{
				Name:  "mint",
				Usage: "Mint units of a series to the caller",
				Flags: []cli.Flag{
					idFlag,
					&cli.Int64Flag{Name: "amount", Value: 1, Usage: "units to mint"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					amount, err := positiveUint32("amount", cCtx.Int64("amount"))
					if err != nil {
						return err
					}
					return a.mintSeries(ctx, cCtx.Uint64("id"), amount)
				}),
			},
			{
				Name:  "series",
				Usage: "Show one series, or all of them",
				Flags: []cli.Flag{&cli.Uint64Flag{Name: "id", Usage: "series id"}},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					if cCtx.IsSet("id") {
						id := cCtx.Uint64("id")
						return a.showSeries(ctx, &id)
					}
					return a.showSeries(ctx, nil)
				}),
			},
			{
				Name:  "balance",
				Usage: "Show an account's balance of a series",
				Flags: []cli.Flag{
					idFlag,
					&cli.StringFlag{Name: "account", Usage: "account address (defaults to the caller)"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					account := a.caller
					if v := cCtx.String("account"); v != "" {
						var err error
						account, err = parseAddressFlag("account", v)
						if err != nil {
							return err
						}
					}
					return a.showBalance(ctx, cCtx.Uint64("id"), account)
				}),
			},
			{
				Name:  "set-owner",
				Usage: "Encrypt an address and set it as the series' confidential owner",
				Flags: []cli.Flag{
					idFlag,
					&cli.StringFlag{Name: "owner", Required: true, Usage: "address to encrypt"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					owner, err := parseAddressFlag("owner", cCtx.String("owner"))
					if err != nil {
						return err
					}
					return a.setObscuraOwner(ctx, cCtx.Uint64("id"), owner)
				}),
			},
			{
				Name:  "decrypt-owner",
				Usage: "Decrypt the series' confidential owner",
				Flags: []cli.Flag{
					idFlag,
					&cli.Int64Flag{Name: "days", Value: 1, Usage: "validity of the decryption authorization in days"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					return a.decryptObscuraOwner(ctx, cCtx.Uint64("id"), cCtx.Int64("days"))
				}),
			},
			{
				Name:  "events",
				Usage: "List contract events",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "from", Usage: "first event sequence number, or first block in chain mode"},
					&cli.Uint64Flag{Name: "limit", Value: 100, Usage: "maximum number of events"},
					&cli.BoolFlag{Name: "follow", Usage: "keep streaming new events"},
				},
				Action: withApp(func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error {
					return a.showEvents(ctx, cCtx.Uint64("from"), cCtx.Uint64("limit"), cCtx.Bool("follow"))
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withApp(fn func(ctx context.Context, cCtx *cli.Context, a *obscuraApp) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := connect(ctx, cCtx)
		if err != nil {
			return err
		}
		return fn(ctx, cCtx, a)
	}
}

func connect(ctx context.Context, cCtx *cli.Context) (*obscuraApp, error) {
	logger := flags.SetupLogger(cCtx)
	timeout := cCtx.Duration(timeoutFlag.Name)

	var key *ecdsa.PrivateKey
	if v := cCtx.String(keyFlag.Name); v != "" {
		var err error
		key, err = cryptoutils.ParsePrivateKeyHex(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
	}

	a := &obscuraApp{out: os.Stdout}
	if key != nil {
		a.caller = crypto.PubkeyToAddress(key.PublicKey)
	}

	rpcAddr := cCtx.String(flags.RpcAddrFlag.Name)
	if rpcAddr == "" {
		node, err := clients.NewObscuraClient(ctx, cCtx.String(serverFlag.Name), key, timeout)
		if err != nil {
			return nil, err
		}
		logger.Debug("Connected to node", "server", cCtx.String(serverFlag.Name), "contract", node.ContractAddress())
		a.mint = node
		a.node = node
		return a, nil
	}

	if !common.IsHexAddress(cCtx.String(contractFlag.Name)) {
		return nil, fmt.Errorf("--contract is required with --rpc-addr")
	}
	chain, err := registry.Dial(ctx, rpcAddr, common.HexToAddress(cCtx.String(contractFlag.Name)), key)
	if err != nil {
		return nil, err
	}
	logger.Debug("Connected to chain", "rpc", rpcAddr, "contract", chain.ContractAddress())
	a.mint = chain
	a.chain = chain

	if v := cCtx.String(coprocessorFlag.Name); v != "" {
		a.node, err = clients.NewObscuraClient(ctx, v, key, timeout)
		if err != nil {
			return nil, fmt.Errorf("could not reach coprocessor: %w", err)
		}
	}
	return a, nil
}
