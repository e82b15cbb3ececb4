package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/senyabanana/auction-service/internal/cache"
	"github.com/senyabanana/auction-service/internal/config"
	"github.com/senyabanana/auction-service/internal/db"
	"github.com/senyabanana/auction-service/internal/gateway"
	"github.com/senyabanana/auction-service/internal/handlers"
	"github.com/senyabanana/auction-service/internal/notify"
	"github.com/senyabanana/auction-service/internal/repository"
	"github.com/senyabanana/auction-service/internal/router"
	"github.com/senyabanana/auction-service/internal/scheduler"
	"github.com/senyabanana/auction-service/internal/services"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const handlerTimeout = 5 * time.Second

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	runDBMigration(cfg.MigrationURL, cfg.PostgresConn)

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		log.Fatalf("error initializing database: %v", err)
	}
	defer dbPool.Close()

	logger := log.New(os.Stdout, "INFO: ", log.LstdFlags)

	emitter := initEmitter(cfg, logger)
	prices := initPriceCache(cfg, logger)

	productRepo := repository.NewPostgresProductRepository(dbPool)
	inspectionRepo := repository.NewPostgresInspectionRepository(dbPool)
	auctionRepo := repository.NewPostgresAuctionRepository(dbPool)
	bidRepo := repository.NewPostgresBidRepository(dbPool)
	proxyRepo := repository.NewPostgresProxyBidRepository(dbPool)
	paymentRepo := repository.NewPostgresPaymentRepository(dbPool)
	deliveryRepo := repository.NewPostgresDeliveryRepository(dbPool)

	locks := services.NewAuctionLocks()
	productService := services.NewProductService(productRepo, inspectionRepo, emitter)
	auctionService := services.NewAuctionService(auctionRepo, productRepo, bidRepo, locks, emitter)
	bidService := services.NewBidService(auctionRepo, bidRepo, proxyRepo, locks, emitter, prices, logger)
	settlementService := services.NewSettlementService(paymentRepo, deliveryRepo, auctionRepo, productRepo, gateway.NewStripeGateway(cfg.StripeSecretKey), emitter, logger)

	productHandler := handlers.NewProductHandler(productService, logger, handlerTimeout)
	auctionHandler := handlers.NewAuctionHandler(auctionService, logger, handlerTimeout)
	bidHandler := handlers.NewBidHandler(bidService, logger, handlerTimeout)
	settlementHandler := handlers.NewSettlementHandler(settlementService, logger, handlerTimeout)

	bidLimiter := rate.NewLimiter(rate.Limit(cfg.BidRatePerSecond), cfg.BidRateBurst)
	routes := router.InitRoutes(productHandler, auctionHandler, bidHandler, settlementHandler, bidLimiter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval, err := time.ParseDuration(cfg.SchedulerInterval)
	if err != nil {
		log.Fatalf("invalid SCHEDULER_INTERVAL: %v", err)
	}
	go scheduler.NewScheduler(auctionRepo, auctionService, interval, logger).Run(ctx)

	server := &http.Server{Addr: cfg.ServerAddress, Handler: routes}
	go func() {
		log.Printf("server is listening on %s...", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

// initEmitter подключается к NATS; без NATS_URL события идут в лог.
func initEmitter(cfg config.Config, logger *log.Logger) notify.Emitter {
	if cfg.NatsURL == "" {
		logger.Println("NATS_URL is not set, events will be logged only")
		return &notify.LogEmitter{Logger: logger}
	}
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatalf("error connecting to NATS: %v", err)
	}
	return notify.NewNatsEmitter(conn, logger)
}

// initPriceCache подключается к Redis; без REDIS_ADDR снапшоты цен не публикуются.
func initPriceCache(cfg config.Config, logger *log.Logger) *cache.PriceCache {
	if cfg.RedisAddr == "" {
		logger.Println("REDIS_ADDR is not set, price snapshots are disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return cache.NewPriceCache(client, time.Minute)
}

func runDBMigration(migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		log.Fatal("cannot create a new migrate instance", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("failed to run migrate up:", err)
	}
	log.Println("db migrated successfully")
}
