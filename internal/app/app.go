package app

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
	pslog "github.com/vovakirdan/pubsubcore/internal/log"
	transporthttp "github.com/vovakirdan/pubsubcore/internal/transport/http"
	"github.com/vovakirdan/pubsubcore/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	router          *core.Router
	server          *stdhttp.Server
	tcp             *tcp.Server
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := core.NewDirectory(pslog.Module(logger, "core.directory"))
	router := core.NewRouter(dir, core.NewTable(), pslog.Module(logger, "core.router"))
	router.RegisterDefaults()

	a := &App{
		router:          router,
		server:          transporthttp.NewServer(router, cfg, pslog.Module(logger, "transport.http")),
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
	if cfg.TCPAddr != "" {
		a.tcp = tcp.NewServer(router, cfg, pslog.Module(logger, "transport.tcp"))
	}
	return a
}

// Router exposes the message router, e.g. for server-side publishing.
func (a *App) Router() *core.Router { return a.router }

// Run starts the HTTP server and the TCP listener and blocks until ctx
// is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http transport listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	if a.tcp != nil {
		g.Go(func() error {
			return a.tcp.ListenAndServe(gctx)
		})
	}

	return g.Wait()
}
