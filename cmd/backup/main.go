// Command backup takes a one-shot snapshot of the records table and uploads
// it to the configured S3-compatible storage.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/backup"
	"github.com/threadcraft/threadcraft/internal/server/config"
	"github.com/threadcraft/threadcraft/internal/server/shared/db"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	manager, err := db.NewPostgresRepositoryManager(cfg.DatabaseDSN)
	if err != nil {
		log.Printf("db init error: %v", err)
		os.Exit(1)
	}
	defer manager.Conn().Close()

	svc := backup.NewService(manager.ConsistentRecords(), backup.Settings{
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
	}, logger)

	key, err := svc.Snapshot(ctx)
	if err != nil {
		logger.Error(ctx, "snapshot failed", "error", err.Error())
		os.Exit(1)
	}

	logger.Info(ctx, "snapshot complete", "key", key)
}
