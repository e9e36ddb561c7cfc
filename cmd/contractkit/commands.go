package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"contractkit/fixtures"
	"contractkit/internal/abicodec"
	"contractkit/internal/api"
	"contractkit/internal/debug"
	"contractkit/internal/devnode"
	"contractkit/internal/scenario"
	"contractkit/internal/storage"
)

var deployCommand = &cli.Command{
	Name:      "deploy",
	Usage:     "deploy a contract and wait for its receipt",
	ArgsUsage: "<contract> [constructor args...]",
	Flags:     []cli.Flag{devnodeFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("contract name is required", 2)
		}
		ctx := c.Context
		e, err := newEnv(ctx, configFrom(c), c.Bool(devnodeFlag.Name))
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer e.Close()

		d, err := e.registry.Get(c.Args().First())
		if err != nil {
			return cli.Exit(err, 1)
		}
		var args []abicodec.TypedValue
		if c.NArg() > 1 {
			if args, err = abicodec.ParseAll(d.Constructor().Tags, c.Args().Tail()); err != nil {
				return cli.Exit(err, 2)
			}
		}
		inst, err := e.session.Deploy(ctx, d, args...)
		if err != nil {
			return cli.Exit(err, 1)
		}
		printDeployment(inst.Descriptor().Name(), inst.Address(), inst.DeploymentTx(), inst.DeploymentBlock())
		return nil
	},
}

var callCommand = &cli.Command{
	Name:      "call",
	Usage:     "execute a function with eth_call and print its outputs",
	ArgsUsage: "<contract> <address> <function> [args...]",
	Action: func(c *cli.Context) error {
		return invoke(c, false)
	},
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "send a function as a signed transaction and wait for its receipt",
	ArgsUsage: "<contract> <address> <function> [args...]",
	Action: func(c *cli.Context) error {
		return invoke(c, true)
	},
}

func invoke(c *cli.Context, transact bool) error {
	if c.NArg() < 3 {
		return cli.Exit("contract, address and function are required", 2)
	}
	args := c.Args().Slice()
	if !common.IsHexAddress(args[1]) {
		return cli.Exit(fmt.Sprintf("invalid address %q", args[1]), 2)
	}

	ctx := c.Context
	e, err := newEnv(ctx, configFrom(c), false)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer e.Close()

	d, err := e.registry.Get(args[0])
	if err != nil {
		return cli.Exit(err, 1)
	}
	f, err := d.Function(args[2])
	if err != nil {
		return cli.Exit(err, 2)
	}
	values, err := abicodec.ParseAll(f.Input.Tags, args[3:])
	if err != nil {
		return cli.Exit(err, 2)
	}

	inst := e.session.Bind(d, common.HexToAddress(args[1]))
	if !transact {
		out, err := inst.Call(ctx, f.Sig, values...)
		if err != nil {
			return cli.Exit(err, 1)
		}
		printValues(f.Sig, out)
		return nil
	}
	receipt, err := inst.Transact(ctx, f.Sig, values...)
	if receipt != nil {
		printReceipt(f.Sig, receipt)
	}
	if err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

var scenarioCommand = &cli.Command{
	Name:      "scenario",
	Usage:     "run fixture scenarios and the cross-call checks",
	ArgsUsage: "[scenario names...]",
	Flags: []cli.Flag{
		devnodeFlag,
		&cli.StringFlag{
			Name:  "dir",
			Usage: "directory of YAML fixtures instead of the built-in ones",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "scenarios run at once (overrides SCENARIO_PARALLELISM)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)

		var loaded []*scenario.Fixture
		var err error
		if dir := c.String("dir"); dir != "" {
			loaded, err = scenario.LoadFixtures(os.DirFS(dir), ".")
		} else {
			loaded, err = scenario.LoadFixtures(fixtures.FS, ".")
		}
		if err != nil {
			return cli.Exit(err, 2)
		}

		all := make([]scenario.Scenario, 0, len(loaded)+len(scenario.CallModes))
		for _, f := range loaded {
			all = append(all, f.AsScenario())
		}
		for _, m := range scenario.CallModes {
			all = append(all, scenario.CrossCall(m))
		}
		selected, err := selectScenarios(all, c.Args().Slice())
		if err != nil {
			return cli.Exit(err, 2)
		}

		ctx := c.Context
		e, err := newEnv(ctx, cfg, c.Bool(devnodeFlag.Name))
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer e.Close()

		parallel := cfg.ScenarioParallelism
		if n := c.Int("parallel"); n > 0 {
			parallel = n
		}
		runs, err := scenario.NewSuite(e.session, e.registry, parallel).WithSink(e.repository).Run(ctx, selected)
		for _, run := range runs {
			if run != nil {
				debug.PrintScenarioRun(run)
			}
		}
		printScenarioRuns(runs)
		if err != nil {
			return cli.Exit(err, 1)
		}
		if !scenario.Passed(runs) {
			return cli.Exit("some scenarios failed", 1)
		}
		return nil
	},
}

func selectScenarios(all []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]scenario.Scenario, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}
	selected := make([]scenario.Scenario, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

var crossCallCommand = &cli.Command{
	Name:  "crosscall",
	Usage: "show which storage CALL, CALLCODE and DELEGATECALL mutate",
	Flags: []cli.Flag{
		devnodeFlag,
		&cli.StringSliceFlag{
			Name:  "mode",
			Usage: "CALL, CALLCODE or DELEGATECALL, repeatable (default all)",
		},
	},
	Action: func(c *cli.Context) error {
		modes := scenario.CallModes
		if names := c.StringSlice("mode"); len(names) > 0 {
			modes = nil
			for _, n := range names {
				m, err := scenario.ParseCallMode(n)
				if err != nil {
					return cli.Exit(err, 2)
				}
				modes = append(modes, m)
			}
		}

		ctx := c.Context
		e, err := newEnv(ctx, configFrom(c), c.Bool(devnodeFlag.Name))
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer e.Close()

		results := make([]*scenario.CrossCallResult, 0, len(modes))
		for _, m := range modes {
			r, err := scenario.RunCrossCall(ctx, e.session, m)
			if err != nil {
				return cli.Exit(fmt.Errorf("%s: %w", m, err), 1)
			}
			results = append(results, r)
		}
		printCrossCalls(results)
		for _, r := range results {
			if !r.Passed() {
				return cli.Exit("unexpected storage mutation", 1)
			}
		}
		return nil
	},
}

var contractsCommand = &cli.Command{
	Name:  "contracts",
	Usage: "list known contracts and their functions",
	Action: func(c *cli.Context) error {
		e, err := newEnv(c.Context, configFrom(c), false)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer e.Close()

		rows := make([][]string, 0)
		for _, name := range e.registry.Names() {
			d, err := e.registry.Get(name)
			if err != nil {
				return cli.Exit(err, 1)
			}
			rows = append(rows, []string{name, strings.Join(d.Functions(), "\n")})
		}
		printTable([]string{"Contract", "Functions"}, rows)
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve recorded deployments, invocations and scenario runs over HTTP",
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		ctx := c.Context

		var repo storage.Repository
		if cfg.DatabaseURL != "" {
			pg, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to connect to database: %v", err), 1)
			}
			repo = pg
		} else {
			slog.Warn("DATABASE_URL not set, serving an empty in-memory store")
			repo = storage.NewMemoryRepository()
		}
		defer repo.Close()

		server := api.NewServer(cfg.APIPort, repo)
		if err := server.Start(); err != nil {
			return cli.Exit(err, 1)
		}
		waitForSignal()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var devnodeCommand = &cli.Command{
	Name:  "devnode",
	Usage: "run the in-process development chain over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8545", Usage: "listen address"},
		&cli.Uint64Flag{Name: "chain-id", Value: devnode.DefaultChainID, Usage: "chain id"},
		&cli.DurationFlag{Name: "mine-delay", Usage: "delay before a submitted transaction is mined"},
	},
	Action: func(c *cli.Context) error {
		node, err := devnode.New(devnode.Options{
			ChainID:   new(big.Int).SetUint64(c.Uint64("chain-id")),
			MineDelay: c.Duration("mine-delay"),
		})
		if err != nil {
			return cli.Exit(err, 1)
		}
		url, err := node.Start(c.String("addr"))
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer node.Close()

		printTable([]string{"Dev node", ""}, [][]string{
			{"RPC URL", url},
			{"Chain ID", node.ChainID().String()},
		})
		waitForSignal()
		slog.Info("Dev node stopped", "requests", node.Requests(), "blocks", node.BlockNumber())
		return nil
	},
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")
}
