package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/config"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/stock-trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/logging"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/quote"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/server"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage/pebblestore"
	"github.com/sheikh-saqib/stock-trading-ledger/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()
	logger.Info("ledger store ready", zap.String("driver", cfg.StoreDriver))

	yahoo := quote.NewYahooClient(
		quote.WithBaseURL(cfg.QuoteBaseURL),
		quote.WithRateLimit(cfg.QuoteRateLimit),
		quote.WithClientLogger(logger.Named("yahoo")),
	)
	gateway, err := quote.NewGateway(yahoo,
		quote.WithTimeout(cfg.QuoteTimeout),
		quote.WithMaxStaleness(cfg.QuoteMaxStaleness),
		quote.WithLogger(logger.Named("quote")),
	)
	if err != nil {
		return err
	}
	defer gateway.Close()

	var publisher interfaces.EventPublisher = kafka.NopPublisher{}
	if cfg.KafkaEnabled() {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer p.Close()
		publisher = p
		logger.Info("publishing trade events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	ledgerService := ledger.NewLedger(store, gateway,
		ledger.WithPublisher(publisher),
		ledger.WithLogger(logger.Named("ledger")),
	)

	cash, err := cfg.Cash()
	if err != nil {
		return err
	}
	srv := server.NewServer(ledgerService, cash,
		server.WithLogger(logger.Named("http")),
		server.WithCORSOrigins(cfg.CORSOrigins),
	)

	err = srv.ListenAndServe(ctx, ":"+cfg.Port)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore picks the ledger store from STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config) (interfaces.LedgerStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewPostgresLedgerStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case config.DriverPebble:
		store, err := pebblestore.Open(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.DriverMemory:
		return memory.NewMemoryLedgerStore(), closerFunc(func() error { return nil }), nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
