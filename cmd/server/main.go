package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/olyamironova/perp-engine/internal/adapter/cache"
	"github.com/olyamironova/perp-engine/internal/adapter/in_memory"
	"github.com/olyamironova/perp-engine/internal/adapter/kafka"
	"github.com/olyamironova/perp-engine/internal/adapter/natsbus"
	"github.com/olyamironova/perp-engine/internal/adapter/pebble"
	"github.com/olyamironova/perp-engine/internal/adapter/pg"
	apigrpc "github.com/olyamironova/perp-engine/internal/api/grpc"
	apihttp "github.com/olyamironova/perp-engine/internal/api/http"
	"github.com/olyamironova/perp-engine/internal/config"
	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/liquidation"
	"github.com/olyamironova/perp-engine/internal/logging"
	"github.com/olyamironova/perp-engine/internal/port"
	"github.com/olyamironova/perp-engine/internal/position"
	"github.com/olyamironova/perp-engine/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, "perp-engine", cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	grpcSrv := apigrpc.NewGRPCServer(log)

	var (
		repo   port.Repository = in_memory.NewMemoryRepo()
		ledger port.Ledger
		fund   port.InsuranceFund
	)
	if cfg.DatabaseURL != "" {
		pgRepo, err := pg.NewPgRepo(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgRepo.Close()
		pgFund := pg.NewInsuranceFund(pgRepo.Pool())
		if err := pgFund.Seed(ctx, cfg.Parsed.InsuranceFund); err != nil {
			return err
		}
		repo, ledger, fund = pgRepo, pg.NewLedger(pgRepo.Pool()), pgFund
		log.Info("using postgres persistence")
	} else {
		mem := in_memory.NewLedger()
		for i, b := range cfg.SeedBalances {
			mem.Deposit(b.Account, b.Asset, cfg.Parsed.SeedBalances[i])
		}
		ledger, fund = mem, in_memory.NewInsuranceFund(cfg.Parsed.InsuranceFund)
		log.Warn("DATABASE_URL not set, balances and trades are kept in memory")
	}

	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	var notifier port.Notifier = in_memory.NewNotifier()
	if cfg.NATSURL != "" {
		nc, err := natsbus.Connect(cfg.NATSURL, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		notifier = nc
	}

	var results port.ResultStore
	if cfg.PebbleDir != "" {
		ps, err := pebble.Open(cfg.PebbleDir)
		if err != nil {
			return err
		}
		defer ps.Close()
		results = ps
	} else {
		ps, err := pebble.OpenInMemory()
		if err != nil {
			return err
		}
		defer ps.Close()
		results = ps
	}

	engineOpts := []core.Option{
		core.WithAlerter(grpcSrv),
		core.WithFees(cfg.Parsed.Fees),
		core.WithDepthLevels(cfg.DepthLevels),
	}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, "", 0, time.Minute)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, depth served from the book")
		} else {
			engineOpts = append(engineOpts, core.WithCache(rc))
		}
	}

	dispatcher := core.NewDispatcher(repo, publisher, log, cfg.EventBuffer)
	engineOpts = append(engineOpts, core.WithEvents(dispatcher))

	registry := core.NewRegistry(cfg.Specs()...)
	positions := position.NewManager(cfg.Parsed.Positions, ledger, log)
	engine := core.NewEngine(registry, positions, ledger, log, engineOpts...)
	processor := liquidation.NewProcessor(liquidation.Deps{
		Engine:         engine,
		Positions:      positions,
		Fund:           fund,
		Counterparties: positions,
		Notifier:       notifier,
		Store:          results,
		Alerter:        grpcSrv,
	}, liquidation.Config{MarketTimeout: cfg.Parsed.LiquidationTimeout}, log)

	if err := engine.ResetDepthCache(ctx); err != nil {
		log.WithError(err).Warn("depth cache reset failed")
	}

	httpSrv := apihttp.NewHTTPServer(engine, positions, processor, repo, log, cfg.Parsed.RateLimit)
	router := httpSrv.Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(dispatcher.Run(gctx)) })
	g.Go(func() error {
		expireLoop(gctx, engine, registry, cfg.Parsed.ExpiryInterval, log)
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", cfg.GRPCAddr).Info("starting gRPC health server")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.Stop()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}

// expireLoop retires GTD orders on every symbol each interval.
func expireLoop(ctx context.Context, engine *core.Engine, registry *core.Registry, every time.Duration, log logrus.FieldLogger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range registry.Symbols() {
				ids, err := engine.ExpireOrders(ctx, symbol)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.WithError(err).WithField("symbol", symbol).Warn("expire orders failed")
					}
					continue
				}
				if len(ids) > 0 {
					log.WithFields(logrus.Fields{"symbol": symbol, "expired": len(ids)}).Info("expired GTD orders")
				}
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
