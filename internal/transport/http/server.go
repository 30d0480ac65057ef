package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/roomsync/internal/auth"
	"github.com/vovakirdan/roomsync/internal/config"
	"github.com/vovakirdan/roomsync/internal/core"
	"github.com/vovakirdan/roomsync/internal/metrics"
	"github.com/vovakirdan/roomsync/internal/store"
)

// authRateLimit throttles register, login and guest requests per client IP.
const (
	authRateLimit = rate.Limit(1)
	authRateBurst = 5
)

// NewServer builds the HTTP server: health probes, metrics, REST API and the websocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(metrics.GinMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/ready", readyHandler(st, cfg, logger))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(hub, st, logger)

	api := router.Group("/api")
	{
		public := api.Group("")
		public.Use(IPRateLimit(authRateLimit, authRateBurst))
		public.POST("/register", apiHandlers.Register)
		public.POST("/login", apiHandlers.Login)
		public.POST("/guest", apiHandlers.GuestLogin)

		api.GET("/rooms/:name/messages", roomHandlers.ListMessages)
		api.GET("/rooms/:name/presence", roomHandlers.Presence)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		protected.GET("/rooms", roomHandlers.ListRooms)
		protected.POST("/rooms", roomHandlers.CreateRoom)
	}

	// The websocket upgrade is served by the mux directly; gin's response
	// writer must not wrap the hijacked connection.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// readyHandler reports 503 while the store does not answer a ping.
func readyHandler(st store.Store, cfg *config.Config, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.ProbeTimeout)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("readiness probe failed")
			c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
			return
		}
		c.String(stdhttp.StatusOK, "ready")
	}
}
