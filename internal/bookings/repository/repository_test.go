package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"slotguard/internal/bookings/repository"
	"slotguard/internal/bookings/repository/contracttest"
	mongomigrations "slotguard/internal/migrations/mongo"
	pgmigrations "slotguard/internal/migrations/postgres"
	"slotguard/pkg/client"
	"slotguard/pkg/config"
	"slotguard/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	envTestMongoURI    = "TEST_MONGO_URI"
	envTestPostgresDSN = "TEST_POSTGRES_DSN"
)

func TestMemoryRepository(t *testing.T) {
	contracttest.Run(t, contracttest.Backend{
		New: func(*testing.T) repository.BookingRepository {
			return repository.NewMemoryBookingRepository()
		},
		MissingID: uuid.NewString,
	})
}

// TestMongoRepository needs a replica set member: transactions are part of the contract.
func TestMongoRepository(t *testing.T) {
	uri := os.Getenv(envTestMongoURI)
	if uri == "" {
		t.Skipf("%s not set", envTestMongoURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Disconnect(context.Background()) })
	require.NoError(t, mc.Ping(ctx, nil))

	contracttest.Run(t, contracttest.Backend{
		New: func(t *testing.T) repository.BookingRepository {
			dbName := "slotguard_test_" + uuid.NewString()[:8]
			require.NoError(t, mongomigrations.RunMigration(context.Background(), mc, dbName, logger.Discard()))
			t.Cleanup(func() { _ = mc.Database(dbName).Drop(context.Background()) })

			return repository.NewMongoBookingRepository(&config.Config{
				MongoDatabaseName: dbName,
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      5 * time.Second,
				Client:            &client.Client{Mongo: mc},
			})
		},
		MissingID: func() string { return primitive.NewObjectID().Hex() },
	})
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv(envTestPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", envTestPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pgmigrations.RunMigration(ctx, pool, logger.Discard()))

	contracttest.Run(t, contracttest.Backend{
		New: func(t *testing.T) repository.BookingRepository {
			_, err := pool.Exec(context.Background(), `TRUNCATE bookings`)
			require.NoError(t, err)
			return repository.NewPostgresBookingRepository(pool, 5*time.Second, 5*time.Second)
		},
		MissingID: uuid.NewString,
	})
}
