package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/voxwork/voxwork/internal/api/http"
	"github.com/voxwork/voxwork/internal/api/middleware"
	"github.com/voxwork/voxwork/internal/domain/session"
	"github.com/voxwork/voxwork/internal/domain/timer"
	"github.com/voxwork/voxwork/internal/domain/workspace"
	"github.com/voxwork/voxwork/internal/events"
	"github.com/voxwork/voxwork/internal/infrastructure/config"
	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/infrastructure/monitoring"
	"github.com/voxwork/voxwork/internal/prefs"
	"github.com/voxwork/voxwork/internal/store"
	"github.com/voxwork/voxwork/internal/suite"
	"github.com/voxwork/voxwork/internal/transcript"
	"github.com/voxwork/voxwork/internal/transport"
	"github.com/voxwork/voxwork/internal/ws"
)

// Server wires the managers and the HTTP surface together.
type Server struct {
	cfg    *config.Config
	log    *logging.Logger
	router *gin.Engine
	http   *http.Server

	sessions  *session.Manager
	workspace *workspace.Engine
	timers    *timer.Manager

	pollCancel context.CancelFunc
}

// New builds the full service from configuration.
func New(cfg *config.Config) (*Server, error) {
	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	bus := events.NewBus()
	transcripts := transcript.NewStore()

	settings, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		return nil, err
	}

	suites := suite.NewCatalog()
	if err := suites.LoadDir(cfg.Suites.Dir); err != nil {
		return nil, err
	}

	storeClient := store.NewClient(cfg.Store.BaseURL, cfg.Store.Timeout, log)
	beacon := store.NewBeacon(cfg.Store.BaseURL, log)
	realtime := transport.NewRealtime(cfg.Transport.GatewayURL, cfg.Transport.HandshakeTimeout, log)

	engine := workspace.NewEngine(storeClient, bus, log).
		WithConfig(workspace.Config{
			GraceWindow:  cfg.Autosave.GraceWindow,
			Debounce:     cfg.Autosave.Debounce,
			SavedDisplay: cfg.Autosave.SavedDisplay,
			WriteTimeout: cfg.Autosave.WriteTimeout,
		}).
		WithBeacon(beacon).
		WithMetrics(metrics)

	sessions := session.NewManager(realtime, storeClient, transcripts, settings, suites, engine, bus, log).
		WithConfig(session.Config{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			FinalSaveTimeout: cfg.Transport.FinalSaveTimeout,
			Guardrails:       session.DefaultConfig().Guardrails,
		}).
		WithMetrics(metrics)

	relay := timer.NewRelay(realtime, transcripts, log)
	timers := timer.NewManager(relay, bus, log).
		WithPollInterval(cfg.Timer.PollInterval).
		WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.FromConfig(cfg.RateLimit)))
	}

	handlers := apihttp.NewHandlers(sessions, engine, timers, transcripts, settings, suites, storeClient, log)
	wsHandler := ws.NewHandler(bus, log).WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Session lifecycle
	router.GET("/connection", handlers.GetConnection)
	router.POST("/connect", handlers.Connect)
	router.POST("/disconnect", handlers.Disconnect)
	router.POST("/mute", handlers.SetMuted)
	router.PATCH("/flags", handlers.SetFlags)

	// Projects and workspace
	router.POST("/projects/activate", handlers.ActivateProject)
	router.GET("/tabs", handlers.ListTabs)
	router.POST("/tabs", handlers.AddTab)
	router.PATCH("/tabs/:id/name", handlers.RenameTab)
	router.PATCH("/tabs/:id/content", handlers.SetTabContent)
	router.POST("/tabs/:id/select", handlers.SelectTab)
	router.DELETE("/tabs/:id", handlers.DeleteTab)
	router.POST("/tabs/reorder", handlers.ReorderTabs)
	router.POST("/workspace/save", handlers.ForceSave)
	router.POST("/workspace/beacon", handlers.Beacon)

	// Timer
	router.POST("/timer", handlers.StartTimer)
	router.POST("/timer/pause", handlers.PauseTimer)
	router.POST("/timer/resume", handlers.ResumeTimer)
	router.DELETE("/timer", handlers.StopTimer)
	router.GET("/timer", handlers.GetTimer)

	// Conversation
	router.GET("/transcript", handlers.ListTranscript)
	router.GET("/transcript/export", handlers.ExportTranscript)
	router.POST("/conversation/save", handlers.SaveConversation)
	router.POST("/conversation/new", handlers.NewConversation)

	// Settings
	router.GET("/settings", handlers.GetSettings)
	router.PATCH("/settings", handlers.UpdateSettings)
	router.GET("/suites", handlers.ListSuites)

	// Status stream
	router.GET("/stream", wsHandler.HandleStatus)

	return &Server{
		cfg:       cfg,
		log:       log,
		router:    router,
		sessions:  sessions,
		workspace: engine,
		timers:    timers,
	}, nil
}

// Run starts the milestone poll and serves HTTP until Shutdown.
func (s *Server) Run() error {
	pollCtx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	go s.timers.Run(pollCtx)

	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("server starting", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, disconnects the transport, and gives
// the workspace one last synchronous save.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.pollCancel != nil {
		s.pollCancel()
	}

	if err := s.sessions.Disconnect(ctx); err != nil {
		s.log.Warn("disconnect on shutdown failed", zap.Error(err))
	}
	if err := s.workspace.ForceSave(ctx); err != nil {
		s.log.Warn("final workspace save failed", zap.Error(err))
	}

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.log.Info("server stopped")
	return nil
}
