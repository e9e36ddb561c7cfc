package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"contractkit/internal/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML configuration file, environment variables take precedence",
		EnvVars: []string{"CONTRACTKIT_CONFIG"},
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Usage: "JSON-RPC endpoint (overrides RPC_URL)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error (overrides LOG_LEVEL)",
	}
	devnodeFlag = &cli.BoolFlag{
		Name:  "devnode",
		Usage: "run against an in-process dev node with a generated key",
	}
)

func main() {
	app := &cli.App{
		Name:     "contractkit",
		Usage:    "deploy, call and exercise EVM contracts over JSON-RPC",
		Flags:    []cli.Flag{configFlag, rpcFlag, logLevelFlag},
		Metadata: map[string]interface{}{},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), 2)
			}
			setupLogging(cfg)
			c.App.Metadata["config"] = cfg
			return nil
		},
		Commands: []*cli.Command{
			deployCommand,
			callCommand,
			sendCommand,
			scenarioCommand,
			crossCallCommand,
			contractsCommand,
			serveCommand,
			devnodeCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the optional TOML file and the environment, then
// applies global flags
func loadConfig(c *cli.Context) (*config.Config, error) {
	_ = godotenv.Load()

	cfg := config.Load()
	if file := c.String(configFlag.Name); file != "" {
		var err error
		if cfg, err = config.LoadFile(file); err != nil {
			return nil, err
		}
	}
	if rpc := c.String(rpcFlag.Name); rpc != "" {
		cfg.RPCURL = rpc
	}
	if level := c.String(logLevelFlag.Name); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

// setupLogging installs the default slog logger. Logs go to stderr and,
// when LOG_FILE is set, to a rotating file as well.
func setupLogging(cfg *config.Config) {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}
