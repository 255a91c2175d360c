// Package app wires the strategy loop and its dependencies together and
// owns their fx.Lifecycle start/stop, replacing the teacher's standalone
// HTTP-only Application with the full event-stream -> strategy -> dispatch
// pipeline, grounded on original_source/src/main.rs's wiring of streams,
// pools, and run_sandwich_strategy into one tokio::select! loop.
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mev-engine/sandwich-bot/internal/api"
	"github.com/mev-engine/sandwich-bot/internal/config"
	"github.com/mev-engine/sandwich-bot/pkg/alert"
	"github.com/mev-engine/sandwich-bot/pkg/dispatcher"
	"github.com/mev-engine/sandwich-bot/pkg/eventbus"
	"github.com/mev-engine/sandwich-bot/pkg/extractor"
	"github.com/mev-engine/sandwich-bot/pkg/metrics"
	"github.com/mev-engine/sandwich-bot/pkg/registry"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/simulation"
	"github.com/mev-engine/sandwich-bot/pkg/streams"
	"github.com/mev-engine/sandwich-bot/pkg/strategy"
)

// defaultFromBlock is the block the registry's cold-start PairCreated scan
// starts from.
const defaultFromBlock = registry.DefaultLookback

// Application owns every long-lived component the engine starts with the
// process and tears down on shutdown.
type Application struct {
	cfg *config.Config
	log *zap.Logger

	httpsClient *ethclient.Client
	wssClient   *ethclient.Client
	rpcClient   *rpc.Client

	bus           *eventbus.Bus
	loop          *strategy.Loop
	apiServer     *api.Server
	metricsServer *metrics.PrometheusServer

	cancel context.CancelFunc
}

// New dials the chain, loads the pool/token registry, and assembles the
// strategy loop and its API surface, matching original_source/src/main.rs's
// top-of-main setup sequence (env -> clients -> pools -> executor -> bot).
func New(cfg *config.Config, log *zap.Logger) (*Application, error) {
	ctx := context.Background()

	httpsClient, err := ethclient.DialContext(ctx, cfg.HTTPSURL)
	if err != nil {
		return nil, fmt.Errorf("dial https rpc: %w", err)
	}

	wssClient, err := ethclient.DialContext(ctx, cfg.WSSURL)
	if err != nil {
		return nil, fmt.Errorf("dial wss rpc: %w", err)
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.WSSURL)
	if err != nil {
		return nil, fmt.Errorf("dial wss rpc for subscriptions: %w", err)
	}

	botAddress := cfg.BotAddressHex()

	reg, err := registry.Load(ctx, httpsClient, cfg.CacheDir, defaultFromBlock)
	if err != nil {
		return nil, fmt.Errorf("load pool registry: %w", err)
	}
	log.Info("registry loaded", zap.Int("pools", reg.PoolCount()), zap.Int("tokens", reg.TokenCount()))

	head, err := httpsClient.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get head block number: %w", err)
	}

	pool := simulation.NewPool(ctx, httpsClient, new(big.Int).SetUint64(head), botAddress)
	ext := extractor.New(rpcClient, reg)

	ownerKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID, err := httpsClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	disp := dispatcher.New(ownerKey, botAddress, chainID, httpsClient)
	alertSink := alert.New(cfg.UseAlert, cfg.TelegramToken, cfg.TelegramChatID)
	collector := metrics.NewCollector()
	bus := eventbus.New(eventbus.DefaultCapacity)

	botBytecode := cfg.BotBytecodeBytes()
	if len(botBytecode) == 0 {
		log.Warn("no bot bytecode configured, probe/optimizer simulations will deploy an empty contract")
	}

	loop := strategy.New(strategy.Config{
		Client:     wssClient,
		Extractor:  ext,
		Pool:       pool,
		Bot:        sandwich.Bot{Owner: crypto.PubkeyToAddress(ownerKey.PublicKey), BotAddress: botAddress},
		ProbeBot:   sandwich.Bot{Bytecode: botBytecode},
		BotAddress: botAddress,
		Dispatcher: disp,
		Alert:      alertSink,
		Metrics:    collector,
		Logger:     log,
		Debug:      cfg.Debug,
	})

	apiServer, generatedKey := api.NewServer(cfg.ServerPort, "", loop, loop, log)
	if generatedKey != "" {
		log.Warn("no API key configured, generated one for this run", zap.String("api_key", generatedKey))
	}

	metricsServer := metrics.NewPrometheusServer(fmt.Sprintf(":%d", cfg.MetricsPort))

	return &Application{
		cfg:           cfg,
		log:           log,
		httpsClient:   httpsClient,
		wssClient:     wssClient,
		rpcClient:     rpcClient,
		bus:           bus,
		loop:          loop,
		apiServer:     apiServer,
		metricsServer: metricsServer,
	}, nil
}

// Start launches the block/pending-tx stream readers, the strategy loop,
// and the HTTP/WebSocket API, and blocks until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.apiServer.Start(runCtx); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	a.metricsServer.Start(func(err error) {
		a.log.Warn("metrics server error", zap.Error(err))
	})
	a.log.Info("metrics server started", zap.Int("port", a.cfg.MetricsPort))

	go func() {
		if err := streams.StreamBlocks(runCtx, a.wssClient, a.bus); err != nil && runCtx.Err() == nil {
			a.log.Error("block stream stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := streams.StreamPendingTxs(runCtx, a.rpcClient, a.wssClient, a.bus); err != nil && runCtx.Err() == nil {
			a.log.Error("pending tx stream stopped", zap.Error(err))
		}
	}()

	a.log.Info("strategy engine started")
	if err := a.loop.Run(runCtx, a.bus); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("strategy loop stopped: %w", err)
	}
	return nil
}

// Stop cancels the run context and shuts the API server down.
func (a *Application) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.metricsServer.Stop(ctx); err != nil {
		a.log.Warn("metrics server shutdown error", zap.Error(err))
	}
	if err := a.apiServer.Stop(ctx); err != nil {
		return fmt.Errorf("stop api server: %w", err)
	}
	return nil
}

// Module provides Application for fx-based dependency injection.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func() *zap.Logger {
		logger, _ := zap.NewProduction()
		return logger
	}),
)
