package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/obscura-mint/api"
	"github.com/ruteri/obscura-mint/common"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		MaxRequestSkew:           cCtx.Duration(MaxRequestSkewFlag.Name),
		NonceCacheSize:           cCtx.Int(NonceCacheSizeFlag.Name),
	}
}

// ConfigFileFlag names a TOML file other flags are read from. Command-line
// values and environment variables take precedence over the file.
var ConfigFileFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: []string{"OBSCURA_CONFIG"},
	Usage:   "load flag values from a TOML file",
}

// WithConfigFile returns a Before hook that fills flags from the file named
// by ConfigFileFlag, if one is given.
func WithConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return func(cCtx *cli.Context) error {
		if cCtx.String(ConfigFileFlag.Name) == "" {
			return nil
		}
		return altsrc.InitInputSourceWithContext(flags, altsrc.NewTomlSourceFromFlagFunc(ConfigFileFlag.Name))(cCtx)
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	EnvVars: []string{"OBSCURA_RPC_ADDR"},
	Usage:   "Ethereum JSON-RPC endpoint of the chain the contract is deployed on",
}

var LogJsonFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	EnvVars: []string{"OBSCURA_LOG_JSON"},
	Usage:   "log in JSON format",
})
var LogDebugFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	EnvVars: []string{"OBSCURA_LOG_DEBUG"},
	Usage:   "log debug messages",
})
var LogUidFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
})
var LogServiceFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "log-service",
	Value: "obscura-node",
	Usage: "add 'service' tag to logs",
})

var PprofFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
})
var DrainSecondsFlag = altsrc.NewInt64Flag(&cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
})
var MetricsAddrFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	EnvVars: []string{"OBSCURA_METRICS_ADDR"},
	Usage:   "address to listen on for Prometheus metrics",
})
var MaxRequestSkewFlag = altsrc.NewDurationFlag(&cli.DurationFlag{
	Name:  "max-request-skew",
	Value: api.DefaultMaxRequestSkew,
	Usage: "maximum difference between a signed request's timestamp and the server clock",
})
var NonceCacheSizeFlag = altsrc.NewIntFlag(&cli.IntFlag{
	Name:  "nonce-cache-size",
	Value: api.DefaultNonceCacheSize,
	Usage: "number of recent request nonces remembered for replay protection",
})

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var CommonFlags = append(LogFlags,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	MaxRequestSkewFlag,
	NonceCacheSizeFlag,
)
