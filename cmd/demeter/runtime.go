package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/valens-carpentier/demeter-sub000/internal/adapters/cache"
	"github.com/valens-carpentier/demeter-sub000/internal/adapters/chain"
	"github.com/valens-carpentier/demeter-sub000/internal/adapters/indexer"
	"github.com/valens-carpentier/demeter-sub000/internal/adapters/safe"
	"github.com/valens-carpentier/demeter-sub000/internal/config"
	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/core/service"
	"github.com/valens-carpentier/demeter-sub000/pkg/journal"
	"github.com/valens-carpentier/demeter-sub000/pkg/passkey"
	"github.com/valens-carpentier/demeter-sub000/pkg/signer"
)

// runtime wires adapters into the core services for one CLI invocation.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	eth       *ethclient.Client
	contracts *chain.FarmContracts
	closers   []func()

	credentials *passkey.Store
	journal     *journal.Journal
	poller      *service.ReceiptPoller
	registry    *service.FarmRegistry
	holdings    *service.HoldingsAggregator
	history     *service.HistoryReconciler
	sessions    *service.SessionManager
	deployer    *service.Deployer
	trader      *service.TradeOrchestrator
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	rt := &runtime{
		cfg:         cfg,
		logger:      logger,
		credentials: passkey.NewStore(cfg.Credentials.Path),
		journal:     journal.New(cfg.Journal.Dir),
	}

	eth, contracts, err := chain.Dial(ctx, cfg.Chain.RPCURL, common.HexToAddress(cfg.Contracts.FarmFactory))
	if err != nil {
		return nil, err
	}
	rt.eth, rt.contracts = eth, contracts
	rt.closers = append(rt.closers, eth.Close)

	var source domain.FarmSource = contracts
	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.Cache.RedisURL)
		if err != nil {
			logger.Warn("farm cache disabled", slog.Any("error", err))
		} else {
			rt.closers = append(rt.closers, func() { rdb.Close() })
			source = cache.NewCachedFarmSource(contracts, rdb, contracts.Factory(), cfg.Cache.TTL, logger)
		}
	}

	idx, err := indexer.New(indexer.Config{
		BaseURL:  cfg.Indexer.BaseURL,
		APIKey:   cfg.Indexer.APIKey,
		Timeout:  cfg.Indexer.Timeout,
		MaxPages: cfg.Indexer.MaxPages,
	}, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	addrs := safeAddresses(cfg)
	bundler, err := safe.DialBundler(ctx, cfg.Bundler.URL, addrs.EntryPoint)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, bundler.Close)

	kitOpts := []safe.Option{
		safe.WithAddresses(addrs),
		safe.WithSaltNonce(big.NewInt(cfg.Safe.SaltNonce)),
		safe.WithValidity(cfg.Safe.ValidFor),
		safe.WithLogger(logger),
	}
	if cfg.Paymaster.URL != "" {
		pm, err := safe.DialPaymaster(ctx, cfg.Paymaster.URL, addrs.EntryPoint, cfg.Paymaster.SponsorshipPolicyID)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pm.Close)
		kitOpts = append(kitOpts, safe.WithSponsor(pm))
	}
	kit := safe.NewKit(eth, bundler, big.NewInt(cfg.Chain.ChainID), kitOpts...)

	resolver, err := rt.signerResolver()
	if err != nil {
		rt.Close()
		return nil, err
	}

	minBalance, err := cfg.MinNativeBalance()
	if err != nil {
		rt.Close()
		return nil, err
	}

	poller := service.NewReceiptPoller(cfg.Settlement.PollInterval, cfg.Settlement.Timeout, logger)
	rt.poller = poller
	rt.registry = service.NewFarmRegistry(source, cfg.Registry.Concurrency, logger,
		service.WithMaxFarms(cfg.Registry.MaxFarms))
	rt.holdings = service.NewHoldingsAggregator(rt.registry, contracts, logger)
	rt.history = service.NewHistoryReconciler(idx, rt.registry, contracts, logger)
	rt.sessions = service.NewSessionManager(kit, resolver, logger)
	rt.deployer = service.NewDeployer(poller, logger, service.WithMinNativeBalance(contracts, minBalance))
	rt.trader = service.NewTradeOrchestrator(contracts, service.Stablecoin{
		Address:  common.HexToAddress(cfg.Contracts.USDC),
		Decimals: cfg.Contracts.USDCDecimals,
	}, poller, logger, service.WithTransitionHook(func(from, to service.TradeState) {
		logger.Debug("trade state", slog.String("from", string(from)), slog.String("to", string(to)))
	}))
	return rt, nil
}

// signerResolver serves DEMETER_SIGNER_KEY as the local credential and
// stored passkeys as read-only signers.
func (rt *runtime) signerResolver() (domain.SignerResolver, error) {
	var key *signer.KeySigner
	if hex := os.Getenv("DEMETER_SIGNER_KEY"); hex != "" {
		var err error
		if key, err = signer.NewKeySigner(hex); err != nil {
			return nil, fmt.Errorf("DEMETER_SIGNER_KEY: %w", err)
		}
	}
	verifiers := passkey.Verifiers(rt.cfg.Safe.WebAuthnPrecompile, common.HexToAddress(rt.cfg.Safe.WebAuthnVerifier))
	passkeys := passkey.NewResolver(rt.credentials, rt.eth, common.HexToAddress(rt.cfg.Safe.WebAuthnSignerFactory), verifiers, nil)
	return signer.NewResolver(key, passkeys), nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func safeAddresses(cfg *config.Config) safe.Addresses {
	return safe.Addresses{
		EntryPoint:        common.HexToAddress(cfg.Safe.EntryPoint),
		Module:            common.HexToAddress(cfg.Safe.Module),
		ModuleSetup:       common.HexToAddress(cfg.Safe.ModuleSetup),
		Singleton:         common.HexToAddress(cfg.Safe.Singleton),
		ProxyFactory:      common.HexToAddress(cfg.Safe.ProxyFactory),
		MultiSend:         common.HexToAddress(cfg.Safe.MultiSend),
		MultiSendCallOnly: common.HexToAddress(cfg.Safe.MultiSendCallOnly),
	}
}
