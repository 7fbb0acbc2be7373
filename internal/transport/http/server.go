package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
)

// NewServer builds the HTTP server hosting the WebSocket transport,
// the REST publish API and, when configured, the static web UI.
func NewServer(router *core.Router, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewEngine(router, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewEngine registers all routes on a fresh gin engine.
func NewEngine(router *core.Router, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	r.GET("/health", healthHandler)
	r.GET("/ws", gin.WrapH(NewWSHandler(router, cfg, logger)))

	rooms := NewRoomHandlers(router, logger)
	api := r.Group("/api")
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:room/users", rooms.ListUsers)
	api.POST("/rooms/:room/messages", rooms.Publish)
	api.POST("/broadcast", rooms.Broadcast)

	if cfg.StaticDir != "" {
		r.NoRoute(staticHandler(cfg.StaticDir))
		logger.Info().Str("static_dir", cfg.StaticDir).Msg("serving static files")
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// staticHandler answers every GET no other route claimed from dir.
func staticHandler(dir string) gin.HandlerFunc {
	files := stdhttp.FileServer(stdhttp.Dir(dir))
	return func(c *gin.Context) {
		if c.Request.Method != stdhttp.MethodGet && c.Request.Method != stdhttp.MethodHead {
			c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}
