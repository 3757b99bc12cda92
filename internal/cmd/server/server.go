// Package server parses server configuration and composes the process:
// storage, domain services, transition fanout, realtime, and HTTP transport.
package server

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gigboard/gigboard/internal/api"
	"github.com/gigboard/gigboard/internal/app"
	"github.com/gigboard/gigboard/internal/auth"
	chatdomain "github.com/gigboard/gigboard/internal/chat/domain"
	chatsqlite "github.com/gigboard/gigboard/internal/chat/storage/sqlite"
	notificationdomain "github.com/gigboard/gigboard/internal/notification/domain"
	notificationsqlite "github.com/gigboard/gigboard/internal/notification/storage/sqlite"
	"github.com/gigboard/gigboard/internal/platform/config"
	"github.com/gigboard/gigboard/internal/platform/otel"
	"github.com/gigboard/gigboard/internal/platform/timeouts"
	"github.com/gigboard/gigboard/internal/realtime"
	"github.com/gigboard/gigboard/internal/sidechannel"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
	tasksqlite "github.com/gigboard/gigboard/internal/task/storage/sqlite"
	_ "modernc.org/sqlite"
)

// Config holds server command configuration.
type Config struct {
	HTTPAddr     string `env:"GIGBOARD_HTTP_ADDR"     envDefault:":8080"`
	DBPath       string `env:"GIGBOARD_DB_PATH"       envDefault:"gigboard.db"`
	AuthSecret   string `env:"GIGBOARD_AUTH_SECRET"`
	OTLPEndpoint string `env:"GIGBOARD_OTLP_ENDPOINT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "JWT signing secret")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", cfg.OTLPEndpoint, "OTLP trace endpoint (empty disables tracing)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return fmt.Errorf("auth secret is required (GIGBOARD_AUTH_SECRET)")
	}
	verifier, err := auth.NewVerifier(cfg.AuthSecret)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}

	shutdownTracing, err := otel.Setup(ctx, "gigboard", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	sqlDB, err := openDatabase(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	taskStore, err := tasksqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	chatStore, err := chatsqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	notificationStore, err := notificationsqlite.OpenDB(sqlDB)
	if err != nil {
		return fmt.Errorf("open notification store: %w", err)
	}

	notificationSvc := notificationdomain.NewService(notificationStore, nil, nil)

	registry := realtime.NewMemoryRegistry()
	broadcaster := realtime.NewBroadcaster(registry)
	fanout := app.NewFanout(
		notificationSvc,
		broadcaster,
		sidechannel.LogEmailSender{},
		sidechannel.LogSMSSender{},
	)

	taskSvc := taskdomain.NewService(taskStore, sidechannel.NullGeocoder{}, fanout, nil, nil)
	chatSvc := chatdomain.NewService(chatStore, taskSvc, nil, nil)

	wsHandler := realtime.NewHandler(registry, verifier)
	handler := api.NewServer(taskSvc, chatSvc, notificationSvc, verifier, broadcaster, wsHandler).Handler()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func openDatabase(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return sqlDB, nil
}
