package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/specialistvlad/eventgrid/internal/api"
	"github.com/specialistvlad/eventgrid/internal/connector"
	"github.com/specialistvlad/eventgrid/internal/ctxlog"
	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/internal/loader"
	"github.com/specialistvlad/eventgrid/internal/pipeline"
	"github.com/specialistvlad/eventgrid/internal/world"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

// App encapsulates the application's dependencies, settings, and lifecycle.
type App struct {
	outW     io.Writer
	settings Settings
	version  string
	logger   *slog.Logger
	handlers *handlers.Handlers

	ready   chan struct{}
	apiAddr string
}

// New validates settings and builds an App with its own logger and connector
// registry. With no modules, every core module is registered.
func New(outW io.Writer, settings Settings, version string, modules ...handlers.Module) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(settings.LogLevel, settings.LogFormat, outW)
	if err != nil {
		return nil, err
	}
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	h := handlers.NewWith(modules...)
	logger.Debug("All connector modules registered.", "count", len(modules), "types", h.Types())

	return &App{
		outW:     outW,
		settings: settings,
		version:  version,
		logger:   logger,
		handlers: h,
		ready:    make(chan struct{}),
	}, nil
}

// Handlers returns the application's connector registry. This is primarily
// for testing.
func (a *App) Handlers() *handlers.Handlers {
	return a.handlers
}

// Ready is closed once the startup files are loaded and the API listens.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// APIAddr returns the address the API listens on. Only valid after Ready.
func (a *App) APIAddr() string {
	return a.apiAddr
}

// Run starts the world, applies the startup files and serves the API until
// ctx is cancelled, then shuts everything down in order: API, world.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger

	if !a.settings.NoBanner {
		printBanner(a.outW, a.version, a.settings, a.handlers.Types())
	}
	if a.settings.PIDFile != "" {
		if err := writePIDFile(a.settings.PIDFile); err != nil {
			return err
		}
		defer func() {
			if err := os.Remove(a.settings.PIDFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to remove pid file.", "path", a.settings.PIDFile, "error", err)
			}
		}()
	}

	pipelines := pipeline.NewFactory(a.settings.InboxSize)
	w, err := world.Start(ctx, world.Options{
		MailboxCapacity: a.settings.MailboxCapacity,
		Factories:       connector.Factories(a.handlers, pipelines, a.settings.InboxSize),
	})
	if err != nil {
		return fmt.Errorf("failed to start world: %w", err)
	}

	if err := loader.Load(ctx, w, a.settings.Artefacts...); err != nil {
		a.stopWorld(w)
		return err
	}

	var srv *http.Server
	var ln net.Listener
	if !a.settings.NoAPI {
		ln, err = net.Listen("tcp", a.settings.APIHost)
		if err != nil {
			a.stopWorld(w)
			return fmt.Errorf("failed to listen on %s: %w", a.settings.APIHost, err)
		}
		a.apiAddr = ln.Addr().String()
		srv = &http.Server{
			Handler:           api.New(w, a.version, logger.With("component", "api")),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			logger.Info("🌐 Management API listening.", "address", "http://"+a.apiAddr)
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("management API failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("🛑 Shutting down...")
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.settings.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Management API shutdown failed.", "error", err)
			}
		}
		a.stopWorld(w)
		return nil
	})

	close(a.ready)
	logger.Info("🚀 eventgrid is running.")
	err = g.Wait()
	logger.Info("🏁 eventgrid stopped.")
	return err
}

// stopWorld stops w and waits for it. Errors are logged, not returned: the
// process exits either way.
func (a *App) stopWorld(w *world.World) {
	ctx, cancel := context.WithTimeout(ctxlog.WithLogger(context.Background(), a.logger), a.settings.ShutdownTimeout)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		a.logger.Error("World stop failed.", "error", err)
		return
	}
	if err := w.Wait(); err != nil {
		a.logger.Error("World shut down with errors.", "error", err)
	}
}
