package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/warmleadnetwork/voice-call-service/internal/config"
	"github.com/warmleadnetwork/voice-call-service/internal/handler"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Server represents the voice call service server
type Server struct {
	config         *config.Config
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

// NewServer creates a new voice call service server
func NewServer(cfg *config.Config) (*Server, error) {
	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		return nil, err
	}

	handlerManager.SetupRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}, nil
}

// Start starts the server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("starting server",
		zap.String("addr", addr),
		zap.String("environment", s.config.Environment),
		zap.String("public_base_url", s.config.PublicBaseURL))
	return server.ListenAndServe()
}

// Close releases server resources.
func (s *Server) Close() {
	s.handlerManager.Close()
}

func main() {
	// .env is optional; real deployments configure the environment directly.
	if err := godotenv.Load(); err != nil {
		logger.Base().Debug("no .env file loaded", zap.Error(err))
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("failed to initialize zap logger, falling back to std log")
	}
	defer logger.Sync()

	cfg := config.Load()

	server, err := NewServer(cfg)
	if err != nil {
		logger.Base().Fatal("failed to initialize server", zap.Error(err))
	}
	defer server.Close()

	// Shut down cleanly on SIGINT/SIGTERM.
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		logger.Base().Info("shutting down", zap.String("signal", sig.String()))
		server.Close()
		logger.Sync()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		logger.Base().Fatal("server exited", zap.Error(err))
	}
}
