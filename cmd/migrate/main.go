package main

import (
	"context"
	"time"

	mongoMigration "slotguard/internal/migrations/mongo"
	postgresMigration "slotguard/internal/migrations/postgres"
	"slotguard/pkg/config"
)

const JobName = "slotguard-migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting migration job", "storage_backend", cfg.StorageBackend)

	var err error
	switch cfg.StorageBackend {
	case config.StorageMongo:
		cfg.SetMongo()
		err = mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)
	case config.StoragePostgres:
		cfg.SetPostgres()
		err = postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
	default:
		cfg.Log.Info("Storage backend has no schema, nothing to migrate")
		return
	}
	if err != nil {
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	cfg.Log.Info("Migration completed successfully")
}
