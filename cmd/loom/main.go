package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gaon3/loom/internal/blockchain"
	"github.com/Gaon3/loom/internal/compose"
	"github.com/Gaon3/loom/internal/engine"
	"github.com/Gaon3/loom/internal/events"
	"github.com/Gaon3/loom/internal/market"
	"github.com/Gaon3/loom/internal/money"
	"github.com/Gaon3/loom/internal/monitor"
	"github.com/Gaon3/loom/internal/notification"
	"github.com/Gaon3/loom/internal/platform/aws"
	"github.com/Gaon3/loom/internal/platform/cache"
	"github.com/Gaon3/loom/internal/platform/config"
	"github.com/Gaon3/loom/internal/platform/observability"
	"github.com/Gaon3/loom/internal/platform/resilience"
	"github.com/Gaon3/loom/internal/platform/worker"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("loom", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "loom", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	// Caches: in-process LRU in front of Redis, shared by the encoder's
	// dedupe window.
	redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.LogError(ctx, "failed to create Redis cache", err)
		log.Fatalf("Failed to create Redis cache: %v", err)
	}
	defer redisCache.Close()

	memCache := cache.NewMemoryCache(cfg.Cache.L1MaxSize)
	defer memCache.Close()

	dedupeCache := cache.NewLayeredCache(memCache, redisCache)

	// Market state.
	mkt := market.NewMarket(logger)
	if err := seedMarket(mkt, cfg.Market); err != nil {
		log.Fatalf("Failed to seed market: %v", err)
	}
	logger.Info("market seeded", "pools", mkt.PoolCount())

	// Ethereum connectivity.
	logger.Info("connecting to Ethereum...")
	clientPool, err := blockchain.NewClientPool(ctx, blockchain.ClientPoolConfig{
		URLs:    cfg.Ethereum.RPCURLs,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create client pool", err)
		log.Fatalf("Failed to create client pool: %v", err)
	}
	defer clientPool.Close()

	// Event buses. Pipeline actors share one compose bus and filter on
	// stage, so a new stage can be spliced in without rewiring.
	blockBus := events.NewBus[events.BlockEvent]()
	healthBus := events.NewBus[events.HealthEvent]()
	composeBus := events.NewBus[compose.TxCompose]()
	buffer := cfg.Engine.BusBuffer

	headSub, err := blockchain.NewHeadSubscriber(blockchain.HeadSubscriberConfig{
		WebSocketURLs: cfg.Ethereum.WebSocketURLs,
		Bus:           blockBus,
		ClientPool:    clientPool,
		Logger:        logger,
		Metrics:       metrics,
		Reconnect: blockchain.ReconnectConfig{
			BaseDelay: cfg.Ethereum.Reconnect.BaseDelay,
			MaxDelay:  cfg.Ethereum.Reconnect.MaxBackoff,
			Jitter:    cfg.Ethereum.Reconnect.Jitter,
		},
		PollInterval: cfg.Ethereum.PollInterval,
	})
	if err != nil {
		log.Fatalf("Failed to create head subscriber: %v", err)
	}

	healthMonitor := monitor.NewPoolHealthMonitor(monitor.Config{
		Market:    mkt,
		Sub:       healthBus.Subscribe(buffer),
		Logger:    logger,
		Metrics:   metrics,
		Threshold: cfg.Monitor.DisableThreshold,
	})

	// Pipeline actors.
	encoder := engine.NewEncoder(engine.EncoderConfig{
		Sub:       composeBus.Subscribe(buffer),
		Out:       composeBus,
		Dedupe:    dedupeCache,
		Logger:    logger,
		Metrics:   metrics,
		DedupeTTL: cfg.Engine.DedupeTTL,
	})

	estimator := engine.NewEstimator(engine.EstimatorConfig{
		Sub:         composeBus.Subscribe(buffer),
		Blocks:      blockBus.Subscribe(buffer),
		Out:         composeBus,
		Gas:         engine.NewRPCGasEstimator(clientPool),
		Logger:      logger,
		Metrics:     metrics,
		Tolerance:   money.NewBPSFromInt(cfg.Engine.ToleranceBPS),
		MaxInflight: cfg.Engine.EstimateConcurrency,
	})

	if cfg.Signer.PrivateKey == "" {
		log.Fatalf("SIGNER_PRIVATE_KEY is required")
	}
	signerBackend, err := engine.NewLocalSigner(cfg.Signer.PrivateKey, big.NewInt(cfg.Ethereum.ChainID))
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}
	logger.Info("signer ready", "address", signerBackend.Address().Hex())

	signer := engine.NewSigner(engine.SignerConfig{
		Sub:     composeBus.Subscribe(buffer),
		Out:     composeBus,
		Backend: signerBackend,
		Logger:  logger,
		Metrics: metrics,
	})

	relayClient, err := clientPool.GetClient()
	if err != nil {
		log.Fatalf("Failed to get relay client: %v", err)
	}

	encodePool := worker.NewPool(ctx, cfg.Engine.EncodeWorkers, cfg.Engine.EncodeWorkers*4)
	defer encodePool.Close()

	broadcaster := engine.NewBroadcaster(engine.BroadcasterConfig{
		Sub:   composeBus.Subscribe(buffer),
		Relay: engine.NewEthSendRelay(relayClient, logger),
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "relay",
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("relay circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
		Encoders: encodePool,
		Notifier: buildNotifier(ctx, cfg, logger, metrics),
		Logger:   logger,
		Metrics:  metrics,
	})

	go startHTTPServer(cfg.HTTP.Port, metrics, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("starting execution pipeline...")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return headSub.Run(groupCtx) })
	group.Go(func() error { return healthMonitor.Run(groupCtx) })
	group.Go(func() error { return encoder.Run(groupCtx) })
	group.Go(func() error { return estimator.Run(groupCtx) })
	group.Go(func() error { return signer.Run(groupCtx) })
	group.Go(func() error { return broadcaster.Run(groupCtx) })

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-groupCtx.Done():
		logger.Info("pipeline stopped, shutting down...")
	}

	cancel()
	blockBus.Close()
	healthBus.Close()
	composeBus.Close()

	if err := group.Wait(); err != nil {
		logger.LogError(context.Background(), "pipeline exited with error", err)
	}
	logger.Info("application stopped")
}

// seedMarket loads the configured tokens and pools into the market.
func seedMarket(mkt *market.Market, cfg config.MarketConfig) error {
	for _, tok := range cfg.Tokens {
		addr := common.HexToAddress(tok.Address)
		if tok.ETHPriceWei == "" {
			mkt.AddToken(market.NewToken(addr, tok.Symbol, tok.Decimals))
			continue
		}
		price, err := uint256.FromDecimal(tok.ETHPriceWei)
		if err != nil {
			return fmt.Errorf("token %s: invalid eth_price_wei: %w", tok.Symbol, err)
		}
		mkt.AddToken(market.NewTokenWithPrice(addr, tok.Symbol, tok.Decimals, price))
	}

	for _, pool := range cfg.Pools {
		mkt.AddPool(market.NewPool(
			common.HexToAddress(pool.Address),
			market.Protocol(pool.Protocol),
			common.HexToAddress(pool.Token0),
			common.HexToAddress(pool.Token1),
		))
	}

	return nil
}

// buildNotifier returns the SNS publisher when AWS is enabled, otherwise a
// logging noop.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) notification.Publisher {
	if !cfg.AWS.Enabled {
		return notification.NewNoopPublisher(logger)
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, aws.Options{Region: cfg.AWS.Region})
	if err != nil {
		logger.LogError(ctx, "failed to load AWS config", err)
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	snsClient := aws.NewSNSClient(aws.SNSClientConfig{
		AWSConfig: awsCfg,
		Logger:    logger,
		Metrics:   metrics,
	})

	publisher, err := notification.NewSNSPublisher(notification.SNSPublisherConfig{
		SNSClient: snsClient,
		TopicARN:  cfg.AWS.SNSTopicARN,
		Logger:    logger,
		Tracer:    observability.NewTracer("notification"),
	})
	if err != nil {
		log.Fatalf("Failed to create SNS publisher: %v", err)
	}
	return publisher
}

// startHTTPServer serves health checks and the metrics endpoint.
func startHTTPServer(port int, metrics *observability.Metrics, logger *observability.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "address", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.LogError(context.Background(), "HTTP server error", err)
	}
}
