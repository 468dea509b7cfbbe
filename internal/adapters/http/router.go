package http

import (
	"context"

	"github.com/dkeye/Campus/internal/adapters/signal"
	"github.com/dkeye/Campus/internal/app/orch"
	"github.com/dkeye/Campus/internal/config"
	"github.com/dkeye/Campus/internal/core"
	handlers "github.com/dkeye/Campus/internal/transport/http"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, auth core.AuthGateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && cfg.Mode != "debug" {
		corsConfig.AllowOriginFunc = OriginAllowed(cfg.AllowedOrigins)
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	r.Use(cors.New(corsConfig))

	checkOrigin := CheckOrigin(cfg.AllowedOrigins)
	if cfg.Mode == "debug" {
		checkOrigin = nil
	}
	ctrl := signal.NewSignalWSController(o, auth, signal.Settings{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.Signal.SendBuffer,
		PositionRate: cfg.Presence.PositionRate,
	}, checkOrigin)
	h := &handlers.Handlers{Orch: o, Auth: auth}

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/chat/rooms/:roomId/messages", h.RequireIdentity(), h.History)

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowedOrigins).Msg("router setup")
	return r
}
