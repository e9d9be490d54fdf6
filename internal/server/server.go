package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"

	"pulsebridge/internal/config"
	"pulsebridge/internal/domain"
	"pulsebridge/internal/verify"
	"pulsebridge/internal/websocket"
)

// fanoutEngine triggers one broadcast cycle (used by the manual trigger route).
type fanoutEngine interface {
	Fanout(ctx context.Context, payload string) (domain.FanoutResult, error)
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	verifier  *verify.Verifier
	publisher domain.Publisher
	registry  domain.ConnectionRegistry
	hub       *websocket.Hub
	engine    fanoutEngine
	redis     *goredis.Client
	limits    *ConnectionLimits
	upgrader  ws.Upgrader
	startTime time.Time
}

func NewServer(
	cfg *config.Config,
	verifier *verify.Verifier,
	publisher domain.Publisher,
	registry domain.ConnectionRegistry,
	hub *websocket.Hub,
	engine fanoutEngine,
	redisClient *goredis.Client,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		verifier:  verifier,
		publisher: publisher,
		registry:  registry,
		hub:       hub,
		engine:    engine,
		redis:     redisClient,
		limits: NewConnectionLimits(
			cfg.MaxConnections,
			cfg.ConnectionRatePerIP,
			cfg.ConnectionBurstPerIP,
		),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.AppEnv == "development"),
		},
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
