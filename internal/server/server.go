// Package server exposes the trading ledger over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/stock-trading-ledger/internal/ledger"
)

// AccountHeader carries the authenticated account id, set by the identity
// provider in front of this service.
const AccountHeader = "X-Account-ID"

type Server struct {
	ledger       *ledger.Ledger
	router       *mux.Router
	logger       *zap.Logger
	startingCash decimal.Decimal
	corsOrigins  []string
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the allowed browser origins. Defaults to "*".
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// NewServer routes requests to l. startingCash funds accounts opened through
// the API.
func NewServer(l *ledger.Ledger, startingCash decimal.Decimal, opts ...Option) *Server {
	s := &Server{
		ledger:       l,
		router:       mux.NewRouter(),
		logger:       zap.NewNop(),
		startingCash: startingCash,
		corsOrigins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts", s.handleOpenAccount).Methods(http.MethodPost)
	api.HandleFunc("/quotes/{symbol}", s.handleQuote).Methods(http.MethodGet)

	portfolio := api.PathPrefix("/portfolio").Subrouter()
	portfolio.Use(s.requireAccount)
	portfolio.HandleFunc("/buy", s.handleBuy).Methods(http.MethodPost)
	portfolio.HandleFunc("/sell", s.handleSell).Methods(http.MethodPost)
	portfolio.HandleFunc("/holdings", s.handleHoldings).Methods(http.MethodGet)
	portfolio.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	portfolio.HandleFunc("/cash", s.handleCash).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", AccountHeader},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains for up to
// ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}
