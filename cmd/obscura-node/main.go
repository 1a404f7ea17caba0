package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/cmd/flags"
	"github.com/ruteri/obscura-mint/coprocessor"
	"github.com/ruteri/obscura-mint/httpserver"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/ruteri/obscura-mint/kms"
	"github.com/ruteri/obscura-mint/ledger"
	"github.com/ruteri/obscura-mint/registry"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

var listenAddrFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: []string{"OBSCURA_LISTEN_ADDR"},
	Usage:   "address to listen on for API",
})

var contractFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "contract-address",
	EnvVars: []string{"OBSCURA_CONTRACT_ADDRESS"},
	Usage:   "address the ledger's handles are bound to",
})

var deployerFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "deployer",
	EnvVars: []string{"OBSCURA_DEPLOYER"},
	Usage:   "initial owner of a fresh ledger",
})

var chainIDFlag = altsrc.NewInt64Flag(&cli.Int64Flag{
	Name:    "chain-id",
	Value:   31337,
	EnvVars: []string{"OBSCURA_CHAIN_ID"},
	Usage:   "chain id of the EIP-712 domain decryption requests are signed under",
})

var verifyingContractFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "verifying-contract",
	EnvVars: []string{"OBSCURA_VERIFYING_CONTRACT"},
	Usage:   "verifying contract of the EIP-712 domain (defaults to the contract address)",
})

var dataDirFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "data-dir",
	EnvVars: []string{"OBSCURA_DATA_DIR"},
	Usage:   "badger database directory for ledger state; in-memory if empty",
})

var seedFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "seed",
	EnvVars: []string{"OBSCURA_SEED"},
	Usage:   "hex-encoded master seed of at least 32 bytes",
})

var shareFileFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:  "share-file",
	Usage: "file holding one Shamir share of the master seed, repeat for each share",
})

var shareKeyFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "share-key",
	Usage: "PEM private key the share files were sealed to",
})

var storageFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:    "storage",
	Value:   cli.NewStringSlice("memory://default"),
	EnvVars: []string{"OBSCURA_STORAGE"},
	Usage:   "ciphertext storage location URI (file, s3, ipfs, vault, memory), repeat for replicas",
})

var followRPCFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "follow-rpc",
	EnvVars: []string{"OBSCURA_FOLLOW_RPC"},
	Usage:   "Ethereum JSON-RPC endpoint of the deployed contract; grants its on-chain confidential owners decryption rights",
})

var followFromBlockFlag = altsrc.NewUint64Flag(&cli.Uint64Flag{
	Name:    "follow-from-block",
	EnvVars: []string{"OBSCURA_FOLLOW_FROM_BLOCK"},
	Usage:   "first block to read contract events from",
})

var followIntervalFlag = altsrc.NewDurationFlag(&cli.DurationFlag{
	Name:    "follow-interval",
	Value:   12 * time.Second,
	EnvVars: []string{"OBSCURA_FOLLOW_INTERVAL"},
	Usage:   "how often to poll the contract for new events",
})

var nodeFlags = append([]cli.Flag{
	flags.ConfigFileFlag,
	listenAddrFlag,
	contractFlag,
	deployerFlag,
	chainIDFlag,
	verifyingContractFlag,
	dataDirFlag,
	seedFlag,
	shareFileFlag,
	shareKeyFlag,
	storageFlag,
	followRPCFlag,
	followFromBlockFlag,
	followIntervalFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "obscura-node",
		Usage:  "Serve the ObscuraMint ledger and confidential coprocessor",
		Flags:  nodeFlags,
		Before: flags.WithConfigFile(nodeFlags),
		Action: runNode,
		Commands: []*cli.Command{
			keygenCommand,
			exportCommand,
			importCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func runNode(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	contract, err := parseAddress(contractFlag.Name, cCtx.String(contractFlag.Name))
	if err != nil {
		return err
	}

	verifyingContract := contract
	if v := cCtx.String(verifyingContractFlag.Name); v != "" {
		verifyingContract, err = parseAddress(verifyingContractFlag.Name, v)
		if err != nil {
			return err
		}
	}

	var deployer common.Address
	if v := cCtx.String(deployerFlag.Name); v != "" {
		deployer, err = parseAddress(deployerFlag.Name, v)
		if err != nil {
			return err
		}
	}

	keyManager, err := loadKMS(cCtx.String(seedFlag.Name), cCtx.StringSlice(shareFileFlag.Name), cCtx.String(shareKeyFlag.Name))
	if err != nil {
		logger.Error("Failed to initialize KMS", "err", err)
		return err
	}

	backend, err := openStorage(cCtx.StringSlice(storageFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to initialize ciphertext storage", "err", err)
		return err
	}

	cop, err := coprocessor.New(&coprocessor.Config{
		KMS:               keyManager,
		Storage:           backend,
		ChainID:           cCtx.Int64(chainIDFlag.Name),
		VerifyingContract: verifyingContract,
		Log:               logger,
	})
	if err != nil {
		logger.Error("Failed to create coprocessor", "err", err)
		return err
	}
	logger.Info("Coprocessor initialized", "signer", cop.Info().Signer, "storage", backend.Name())

	store, err := openStore(cCtx.String(dataDirFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to open state store", "err", err)
		return err
	}

	l, err := ledger.New(cCtx.Context, &ledger.Config{
		ContractAddress: contract,
		Deployer:        deployer,
		Runtime:         cop,
		Store:           store,
		Log:             logger,
	})
	if err != nil {
		store.Close()
		logger.Error("Failed to open ledger", "err", err)
		return err
	}
	defer l.Close()

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))
	server, err := httpserver.New(cfg, httpserver.NewHandler(l, cop, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(cCtx.Context)
	defer cancel()

	if rpcURL := cCtx.String(followRPCFlag.Name); rpcURL != "" {
		chain, err := registry.Dial(ctx, rpcURL, contract, nil)
		if err != nil {
			logger.Error("Failed to connect to contract", "rpc", rpcURL, "err", err)
			return err
		}
		follower := registry.NewACLFollower(chain, cop, cCtx.Uint64(followFromBlockFlag.Name), cCtx.Duration(followIntervalFlag.Name), logger)
		go follower.Run(ctx)
		logger.Info("Following contract events", "rpc", rpcURL, "from", follower.NextBlock())
	}

	logger.Info("Starting server", "listen", cfg.ListenAddr, "contract", contract, "owner", l.Owner())
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "Generate a master seed, optionally split into Shamir shares",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "shares",
			Usage: "number of shares to split the seed into; prints the seed when 0",
		},
		&cli.IntFlag{
			Name:  "threshold",
			Value: 2,
			Usage: "number of shares needed to recover the seed",
		},
		&cli.StringSliceFlag{
			Name:  "seal-to",
			Usage: "PEM public key file to seal a share to, one per share in order",
		},
		&cli.StringFlag{
			Name:  "out-dir",
			Value: ".",
			Usage: "directory share files are written to",
		},
	},
	Action: func(cCtx *cli.Context) error {
		seed, err := newSeed()
		if err != nil {
			return err
		}

		keyManager, err := kms.NewSimpleKMS(seed)
		if err != nil {
			return err
		}
		signer, err := keyManager.SignerAddress()
		if err != nil {
			return err
		}
		fmt.Printf("Coprocessor signer: %s\n", signer.Hex())

		shareCount := cCtx.Int("shares")
		if shareCount == 0 {
			fmt.Printf("Seed: %s\n", hex.EncodeToString(seed))
			return nil
		}

		paths, err := writeShares(seed, shareCount, cCtx.Int("threshold"), cCtx.StringSlice("seal-to"), cCtx.String("out-dir"))
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Printf("Wrote %s\n", p)
		}
		return nil
	},
}

// writeShares splits seed and writes one hex share file per share, sealed
// to the matching public key when sealTo is given.
func writeShares(seed []byte, shareCount, threshold int, sealTo []string, outDir string) ([]string, error) {
	if len(sealTo) > 0 && len(sealTo) != shareCount {
		return nil, fmt.Errorf("got %d --seal-to keys for %d shares", len(sealTo), shareCount)
	}

	shares, err := kms.SplitSeed(seed, shareCount, threshold)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(shares))
	for i, share := range shares {
		if len(sealTo) > 0 {
			pub, err := os.ReadFile(sealTo[i])
			if err != nil {
				return nil, fmt.Errorf("could not read %s: %w", sealTo[i], err)
			}
			share, err = kms.SealShare(pub, share)
			if err != nil {
				return nil, fmt.Errorf("could not seal share %d: %w", i, err)
			}
		}

		path := filepath.Join(outDir, fmt.Sprintf("share-%d.hex", i))
		if err := os.WriteFile(path, []byte(kms.EncodeShare(share)+"\n"), 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "Write a snapshot of the ledger state to ciphertext storage",
	Flags: []cli.Flag{dataDirFlag, storageFlag},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		id, err := exportState(cCtx.Context, cCtx.String(dataDirFlag.Name), cCtx.StringSlice(storageFlag.Name), logger)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot: %s\n", id.String())
		return nil
	},
}

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "Restore an exported snapshot into an empty data directory",
	ArgsUsage: "<snapshot-id>",
	Flags:     []cli.Flag{dataDirFlag, storageFlag},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)

		id, err := interfaces.ParseContentID(cCtx.Args().First())
		if err != nil {
			return err
		}
		if cCtx.String(dataDirFlag.Name) == "" {
			return errors.New("--data-dir is required")
		}

		return importState(cCtx.Context, cCtx.String(dataDirFlag.Name), id, cCtx.StringSlice(storageFlag.Name), logger)
	},
}
