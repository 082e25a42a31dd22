package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-reservation/internal/adapter/handler"
	"github.com/rl1809/stock-reservation/internal/adapter/messaging"
	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/config"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
	"github.com/rl1809/stock-reservation/internal/pkg/logger"
	"github.com/rl1809/stock-reservation/internal/pkg/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const (
	demoTenant = "demo"
	demoStock  = 100
)

type ledgerStore interface {
	port.LedgerRepository
	port.BalanceReader
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Service, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store   ledgerStore
		catalog port.CatalogRepository
		db      *sql.DB
	)
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err = sql.Open("mysql", cfg.Storage.MySQL.DSN)
		if err != nil {
			log.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(cfg.Storage.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Storage.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping mysql", zap.Error(err))
		}
		log.Info("connected to mysql")

		mysqlAdapter := storage.NewMySQLAdapter(db, cfg.Lock.Timeout)
		if cfg.Storage.Migrate {
			if err := mysqlAdapter.Migrate(ctx); err != nil {
				log.Fatal("failed to migrate", zap.Error(err))
			}
			log.Info("schema migrated")
		}
		gormCatalog, err := storage.NewGormCatalog(db)
		if err != nil {
			log.Fatal("failed to open catalog", zap.Error(err))
		}
		store, catalog = mysqlAdapter, gormCatalog

	default:
		ledger := storage.NewMemoryLedger(cfg.Lock.Timeout)
		memCatalog := storage.NewMemoryCatalog()
		if err := seedDemo(ledger, memCatalog); err != nil {
			log.Fatal("failed to seed demo stock", zap.Error(err))
		}
		log.Info("memory ledger seeded", zap.String("tenant_id", demoTenant), zap.Int("stock", demoStock))
		store, catalog = ledger, memCatalog
	}

	var ledger port.LedgerRepository = store
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		log.Info("connected to redis, item leases enabled")
		ledger = storage.NewLeasedLedger(store, storage.NewRedisAdapter(rdb), cfg.Redis.LeaseTTL, cfg.Lock.Timeout, log)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	stockService := service.NewStockService(ledger, catalog, log, m, cfg.Events.QueueSize)
	summaryService := service.NewSummaryService(store, catalog)

	// Start event workers
	var publisher port.EventPublisher = messaging.NewLogPublisher(log)
	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = kafkaPublisher
	}
	workers := messaging.StartWorkers(cfg.Events.Workers, stockService.GetEventQueue(), publisher, cfg.Events.PublishTimeout, log)
	log.Info("started event workers", zap.Int("workers", cfg.Events.Workers), zap.Bool("kafka", kafkaPublisher != nil))

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterStockServiceServer(grpcServer, handler.NewGRPCHandler(stockService, summaryService, log))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	var serveWg sync.WaitGroup
	serveWg.Add(2)
	go func() {
		defer serveWg.Done()
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(stockService, summaryService, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpHandler.Routes(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		defer serveWg.Done()
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.GRPC.ShutdownTimeout):
		grpcServer.Stop()
	}
	log.Info("gRPC server stopped")
	serveWg.Wait()

	// No more mutations can arrive; flush queued events
	stockService.Close()
	workers.Wait()
	log.Info("event workers stopped")

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("kafka writer close", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	log.Info("connections closed")
}

// seedDemo gives the memory driver something to reserve against.
func seedDemo(ledger *storage.MemoryLedger, catalog *storage.MemoryCatalog) error {
	catalog.AddItem(domain.Item{ID: "iphone-15", TenantID: demoTenant, Code: "IPHONE-15", Name: "iPhone 15", UOM: "pcs"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh-main", TenantID: demoTenant, Code: "MAIN", Name: "Main warehouse"})
	catalog.AddWarehouse(domain.Warehouse{ID: "wh-overflow", TenantID: demoTenant, Code: "OVERFLOW", Name: "Overflow"})

	now := time.Now()
	rows := []domain.BalanceRow{
		{TenantID: demoTenant, ItemID: "iphone-15", WarehouseID: "wh-main", ActualQty: demoStock * 3 / 4, CreatedAt: now.Add(-time.Hour)},
		{TenantID: demoTenant, ItemID: "iphone-15", WarehouseID: "wh-overflow", ActualQty: demoStock / 4, CreatedAt: now},
	}
	for _, r := range rows {
		if _, err := ledger.Upsert(r); err != nil {
			return err
		}
	}
	return nil
}
