package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"contractkit/contracts"
	"contractkit/internal/config"
	"contractkit/internal/contract"
	"contractkit/internal/descriptor"
	"contractkit/internal/devnode"
	"contractkit/internal/orchestrator"
	"contractkit/internal/retry"
	"contractkit/internal/services"
	"contractkit/internal/signer"
	"contractkit/internal/storage"
	"contractkit/internal/transport"
)

// env is everything a command needs to talk to a chain
type env struct {
	cfg        *config.Config
	session    *contract.Session
	registry   *descriptor.Registry
	repository storage.Repository
	client     *transport.Client
	node       *devnode.Node
}

// newEnv wires transport, signer, registry, storage and the recording
// services into a session. With useDevnode an in-process chain and a
// generated key replace RPC_URL and the configured key.
func newEnv(ctx context.Context, cfg *config.Config, useDevnode bool) (*env, error) {
	e := &env{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	reg, err := contracts.Load()
	if err != nil {
		return nil, err
	}
	if cfg.ArtifactsDir != "" {
		if err := reg.LoadDir(cfg.ArtifactsDir); err != nil {
			return nil, fmt.Errorf("failed to load artifacts: %w", err)
		}
	}
	e.registry = reg

	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		e.repository = pg
		slog.Info("Database connected successfully")
	} else {
		e.repository = storage.NewMemoryRepository()
	}

	rpcURL := cfg.RPCURL
	var key signer.Signer
	if useDevnode {
		if e.node, err = devnode.New(devnode.Options{}); err != nil {
			return nil, err
		}
		if rpcURL, err = e.node.Start("127.0.0.1:0"); err != nil {
			return nil, err
		}
		if key, err = signer.Generate(); err != nil {
			return nil, err
		}
		slog.Info("Dev node started", "url", rpcURL, "account", key.Address().Hex())
	} else if key, err = loadSigner(cfg); err != nil {
		return nil, err
	}

	e.client = transport.NewClient(rpcURL, transport.Options{
		HTTPClient: http.DefaultClient,
		Retry:      retry.NewStrategy(cfg.Retry),
		RateLimit:  cfg.RPCRateLimit,
		Timeout:    cfg.RPCTimeout,
	})

	price, err := cfg.GasPrice()
	if err != nil {
		return nil, err
	}
	var chainID *big.Int
	if cfg.ChainID != 0 && !useDevnode {
		chainID = new(big.Int).SetUint64(cfg.ChainID)
	}

	orch := orchestrator.New([]services.Service{
		services.NewRecorderService(e.repository),
		services.NewDebugService(),
	})
	e.session, err = contract.NewSession(contract.Options{
		Transport: e.client,
		Signer:    key,
		ChainID:   chainID,
		Gas: contract.GasPolicy{
			Limit:  cfg.GasLimit,
			Price:  price,
			Margin: cfg.GasMarginPercent,
		},
		PollInterval:      cfg.PollInterval,
		MaxWait:           cfg.MaxWait,
		MaxNetworkRetries: cfg.MaxNetworkRetries,
		Observer:          orch,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return e, nil
}

// loadSigner returns nil without a configured key; read-only commands
// work without one
func loadSigner(cfg *config.Config) (signer.Signer, error) {
	switch {
	case cfg.PrivateKey != "":
		return signer.FromHex(cfg.PrivateKey)
	case cfg.KeystoreFile != "":
		return signer.FromKeystore(cfg.KeystoreFile, cfg.KeystorePassphrase)
	}
	return nil, nil
}

func (e *env) Close() {
	if e.client != nil {
		e.client.Close()
	}
	if e.node != nil {
		e.node.Close()
	}
	if e.repository != nil {
		e.repository.Close()
	}
}
