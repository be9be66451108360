package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"
	"github.com/warmleadnetwork/voice-call-service/internal/ai"
	"github.com/warmleadnetwork/voice-call-service/internal/broadcast"
	"github.com/warmleadnetwork/voice-call-service/internal/cache"
	"github.com/warmleadnetwork/voice-call-service/internal/carrier"
	"github.com/warmleadnetwork/voice-call-service/internal/config"
	"github.com/warmleadnetwork/voice-call-service/internal/repository"
	"github.com/warmleadnetwork/voice-call-service/internal/services/call"
	"github.com/warmleadnetwork/voice-call-service/internal/tts"
	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// HandlerManager wires repositories, carrier clients, the state machine, and
// all HTTP handlers.
type HandlerManager struct {
	cfg   *config.Config
	repos repository.RepositoryManager
	hub   *broadcast.Hub

	service *call.Service
	sm      *call.StateMachine

	webhookHandler *WebhookHandler
	callHandler    *CallHandler
	streamHandler  *StreamHandler
	wsHandler      *WSHandler

	rateLimiter *RateLimiter
	mirrorStop  context.CancelFunc
}

// NewHandlerManager creates and initializes all handlers and services.
func NewHandlerManager(cfg *config.Config) (*HandlerManager, error) {
	// Storage: postgres when configured, in-memory otherwise. Production
	// refuses to run without a database.
	var repos repository.RepositoryManager
	if repository.IsDatabaseConfigured() {
		manager, err := repository.NewRepositoryManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		repos = manager
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("DB_HOST is required in production")
		}
		logger.Base().Warn("no database configured, using in-memory storage")
		repos = repository.NewMemoryRepositoryManager()
	}

	// Broadcast hub, mirrored through redis when configured so every
	// instance sees every event.
	var hub *broadcast.Hub
	var mirrorStop context.CancelFunc
	if cfg.RedisConfigured() {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		hub = broadcast.NewHubWithRedis(client, cfg.BroadcastChannel)
		var mirrorCtx context.Context
		mirrorCtx, mirrorStop = context.WithCancel(context.Background())
		hub.StartMirror(mirrorCtx)
		logger.Base().Info("broadcast hub mirroring through redis",
			zap.String("channel", cfg.BroadcastChannel))
	} else {
		hub = broadcast.NewHub()
	}

	agents := cache.NewAgentCache(repos.Agent(), 0)
	resolver := carrier.NewResolver(repos.CarrierConfig(), cfg.IsProduction())

	var responder ai.Responder
	if os.Getenv("OPENAI_API_KEY") != "" {
		responder = ai.NewChatClientFromEnv()
	} else {
		logger.Base().Warn("OPENAI_API_KEY not set, gather replies degrade to apologies")
	}

	var synthesizer tts.Synthesizer
	if client := tts.NewElevenLabsClientFromEnv(); client != nil {
		synthesizer = client
	}

	sm := call.NewStateMachine(repos, agents, responder, hub)
	service := call.NewService(repos, agents, resolver, sm, hub, carrier.NewRealClock(), call.Config{
		Production:    cfg.IsProduction(),
		PublicBaseURL: cfg.PublicBaseURL,
	})

	return &HandlerManager{
		cfg:            cfg,
		repos:          repos,
		hub:            hub,
		service:        service,
		sm:             sm,
		webhookHandler: NewWebhookHandler(sm),
		callHandler:    NewCallHandler(service, repos),
		streamHandler:  NewStreamHandler(agents, synthesizer),
		wsHandler:      NewWSHandler(hub),
		rateLimiter:    NewRateLimiter(1, 5),
		mirrorStop:     mirrorStop,
	}, nil
}

// SetupRoutes registers every route on the router.
func (hm *HandlerManager) SetupRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(LoggingMiddleware)

	// Carrier webhooks: form-encoded in, text/xml out, always 200.
	tw := router.PathPrefix("/api/twilio").Subrouter()
	tw.HandleFunc("/voice", hm.webhookHandler.HandleVoice).Methods("POST")
	tw.HandleFunc("/outbound-voice", hm.webhookHandler.HandleOutboundVoice).Methods("POST")
	tw.HandleFunc("/gather", hm.webhookHandler.HandleGather).Methods("POST")
	tw.HandleFunc("/outbound-status", hm.webhookHandler.HandleOutboundStatus).Methods("POST")
	tw.HandleFunc("/recording", hm.webhookHandler.HandleRecording).Methods("POST")
	tw.HandleFunc("/recording-status", hm.webhookHandler.HandleRecordingStatus).Methods("POST")
	tw.HandleFunc("/stream-response", hm.streamHandler.StreamResponse).Methods("GET")

	// Call-control API, JSON.
	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/calls", hm.rateLimiter.Middleware(http.HandlerFunc(hm.callHandler.InitiateCall))).Methods("POST")
	api.HandleFunc("/calls/{callId}/end", hm.callHandler.EndCall).Methods("POST")
	api.HandleFunc("/calls/{callId}/transcript", hm.callHandler.GetTranscript).Methods("GET")
	api.HandleFunc("/numbers", hm.callHandler.ListNumbers).Methods("GET")
	api.HandleFunc("/numbers/purchase", hm.callHandler.PurchaseNumber).Methods("POST")
	api.HandleFunc("/agents/{agentId}/calls", hm.callHandler.GetCallHistory).Methods("GET")
	api.HandleFunc("/messages", hm.callHandler.SendMessage).Methods("POST")

	router.HandleFunc("/ws/calls", hm.wsHandler.Subscribe).Methods("GET")
	router.HandleFunc("/health", hm.callHandler.Health).Methods("GET")
}

// Service exposes the call service for the composition root.
func (hm *HandlerManager) Service() *call.Service {
	return hm.service
}

// Close releases storage and mirror resources.
func (hm *HandlerManager) Close() {
	if hm.mirrorStop != nil {
		hm.mirrorStop()
	}
	if err := hm.repos.Close(); err != nil {
		logger.Base().Warn("failed to close repositories", zap.Error(err))
	}
}
