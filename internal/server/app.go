// Package server initializes and runs the main application server.
// It wires the storage backend, crypto, session, vault and progress layers
// together, handles graceful shutdown, and starts the HTTP endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/threadcraft/threadcraft/internal/cryptox"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/config"
	"github.com/threadcraft/threadcraft/internal/server/httpapi"
	"github.com/threadcraft/threadcraft/internal/server/orchestrator"
	"github.com/threadcraft/threadcraft/internal/server/platform"
	"github.com/threadcraft/threadcraft/internal/server/progress"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
	"github.com/threadcraft/threadcraft/internal/server/shared/db"
	"github.com/threadcraft/threadcraft/internal/server/vault"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager db.RepositoryManager
	engine  *echo.Echo
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	manager, err := db.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	cipher, err := cryptox.NewCipher([]byte(c.MasterSecret))
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	var journal *progress.Journal
	if c.JournalDir != "" {
		journal, err = progress.NewJournal(c.JournalDir)
		if err != nil {
			return nil, fmt.Errorf("journal init error: %w", err)
		}
	}

	repo := manager.Records()
	registry := sessions.NewRegistry(repo, logger, c.IdentifierSalt, c.SessionValidityDuration)
	if journal != nil {
		registry.AddCleaner(journal)
	}
	vlt := vault.NewService(repo, cipher, registry, logger)
	client := platform.NewTwitterClient(c.PlatformBaseEndpoint)
	tracker := progress.NewTracker(repo, cipher, registry, vlt, client, journal, logger)
	orch := orchestrator.NewService(registry, vlt, tracker, client, logger)

	engine := httpapi.EchoEngine(httpapi.IOC{Orchestrator: orch, Logger: logger})

	return &App{config: c, logger: logger, manager: manager, engine: engine}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.engine.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, err.Error())
		}
	}()

	app.logger.Info(ctx, "starting HTTP server", "addr", app.config.EndpointAddrHTTP)
	if err := app.engine.Start(app.config.EndpointAddrHTTP); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if conn := app.manager.Conn(); conn != nil {
		if err := conn.Close(); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}
}
