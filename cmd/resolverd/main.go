// Command resolverd is the Resolver Service daemon (spec.md §4.7): it
// loads configuration, dials every configured chain adapter, wires the
// Orchestrator and its collaborators, and serves the Order Intake and
// status/metrics HTTP surfaces until terminated, following
// stellar-query-api/go/main.go's flag-config-then-signal-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/evm"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter/stellar"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/config"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/ingest"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/intake"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/orchestrator"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/resolver"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/secretstore"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/swap"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/timelock"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the resolver config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("resolverd exiting", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swapRepo, secretStore, checkpoints, closeStores, err := openStores(ctx, cfg.Service.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer closeStores()

	adapters := make(map[chainmodel.ChainID]chainadapter.ChainAdapter, len(cfg.Chains))
	latestHeight := make(map[chainmodel.ChainID]resolver.HeightProbe, len(cfg.Chains))
	var supportedChains []chainmodel.ChainID

	for _, cc := range cfg.Chains {
		chainID := chainmodel.ChainID(cc.ID)
		adapter, err := dialAdapter(ctx, cc, logger)
		if err != nil {
			return fmt.Errorf("dial chain %s: %w", cc.ID, err)
		}
		adapters[chainID] = adapter
		latestHeight[chainID] = adapter.LatestHeight
		supportedChains = append(supportedChains, chainID)
	}

	// metrics and orch are assigned below; the sinks only run once
	// svc.Start launches the scheduler and ingestors.
	var metrics *resolver.Metrics
	var orch *orchestrator.Orchestrator

	sched := timelock.New(logger, func(e timelock.Expired) {
		metrics.ObserveStageExpired(e.Stage.String())
		orch.HandleExpired(e)
	})
	orch = orchestrator.New(swapRepo, secretStore, sched, adapters, logger)

	ingestors := make(map[chainmodel.ChainID]*ingest.Ingestor, len(cfg.Chains))
	for _, cc := range cfg.Chains {
		chainID := chainmodel.ChainID(cc.ID)
		icfg := ingest.Config{
			WindowSize:        cc.IngestWindowSize,
			PollInterval:      cc.PollInterval(),
			ConfirmationDepth: cc.ConfirmationDepth,
		}
		sink := func(ctx context.Context, e events.EscrowEvent) error {
			metrics.ObserveEvent(string(e.Chain), e.Kind.String())
			return orch.HandleEvent(ctx, e)
		}
		ingestors[chainID] = ingest.New(chainID, adapters[chainID], checkpoints, sink, icfg, logger)
	}

	svc := resolver.New(swapRepo, secretStore, sched, orch, ingestors, latestHeight, resolver.Config{
		RetentionHorizon: cfg.Service.RetentionHorizon(),
		GCInterval:       cfg.Service.GCInterval(),
	}, logger)
	metrics = svc.Metrics()

	intakeSvc := intake.New(orch, swapRepo, supportedChains, logger)
	intakeRouter := intake.NewRouter(intakeSvc, logger)
	intakeServer := &http.Server{Addr: cfg.Service.ListenAddress, Handler: intakeRouter}

	statusRouter := resolver.NewStatusRouter(svc)
	statusServer := &http.Server{Addr: cfg.Service.MetricsAddress, Handler: statusRouter}

	grpcServer, healthSrv := resolver.NewGRPCServer(svc)
	grpcListener, err := net.Listen("tcp", grpcAddr(cfg.Service.ListenAddress))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		logger.Info("order intake listening", zap.String("addr", cfg.Service.ListenAddress))
		if err := intakeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("intake server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("status/metrics listening", zap.String("addr", cfg.Service.MetricsAddress))
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("grpc health listening", zap.String("addr", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("grpc server error", zap.Error(err))
		}
	}()
	go svc.WatchHealth(ctx, healthSrv)

	go svc.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = intakeServer.Shutdown(shutdownCtx)
	_ = statusServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()

	logger.Info("shutdown complete")
	return nil
}

// grpcAddr derives a distinct port for the gRPC listener from the
// intake listen address, so both can share one configured host without
// a dedicated config field.
func grpcAddr(listenAddress string) string {
	host, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return ":50061"
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return net.JoinHostPort(host, fmt.Sprintf("%d", p+1000))
}

func dialAdapter(ctx context.Context, cc config.ChainConfig, logger *zap.Logger) (chainadapter.ChainAdapter, error) {
	switch cc.Family {
	case "evm":
		return evm.Dial(ctx, evm.Config{
			ChainID:           chainmodel.ChainID(cc.ID),
			RPCEndpoint:       cc.RPCEndpoint,
			FactoryAddress:    common.HexToAddress(cc.FactoryAddress),
			PrivateKeyHex:     cc.SigningKey,
			ConfirmationDepth: cc.ConfirmationDepth,
			RetryConfig:       chainadapter.DefaultRetryConfig(),
		}, logger)
	case "stellar":
		return stellar.Dial(stellar.Config{
			RPCEndpoint:       cc.RPCEndpoint,
			NetworkPassphrase: cc.NetworkPassphrase,
			FactoryContractID: cc.FactoryAddress,
			SigningSeed:       cc.SigningKey,
			ConfirmationDepth: uint32(cc.ConfirmationDepth),
			RetryConfig:       chainadapter.DefaultRetryConfig(),
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported chain family %q", cc.Family)
	}
}

func openStores(ctx context.Context, dsn string, logger *zap.Logger) (swap.Repository, secretstore.Store, ingest.CheckpointStore, func(), error) {
	if dsn == "" {
		logger.Warn("no database_dsn configured, using in-memory stores (not durable across restarts)")
		return swap.NewMemoryRepository(), secretstore.NewMemory(), ingest.NewMemoryCheckpointStore(), func() {}, nil
	}

	swapRepo, err := swap.NewPostgresRepository(ctx, dsn)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("swap repository: %w", err)
	}
	if err := swapRepo.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("swap schema: %w", err)
	}

	secretStore, err := secretstore.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("secret store: %w", err)
	}
	if err := secretStore.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("secret schema: %w", err)
	}

	pool := swapRepo.Pool()
	checkpoints := ingest.NewPostgresCheckpointStore(pool)
	if err := checkpoints.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("checkpoint schema: %w", err)
	}

	closeFn := func() {
		swapRepo.Close()
		secretStore.Close()
	}
	return swapRepo, secretStore, checkpoints, closeFn, nil
}
