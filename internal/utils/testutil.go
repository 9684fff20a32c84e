package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testMongoURI  string
	testRedisAddr string
	loadOnce      sync.Once
)

// loadTestEnv loads the project .env once so MONGO_URI and TEST_REDIS_ADDR can come from there.
func loadTestEnv() {
	loadOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
			godotenv.Load()
		}
		testMongoURI = os.Getenv("MONGO_URI")
		testRedisAddr = os.Getenv("TEST_REDIS_ADDR")
	})
}

// SetupTestDB connects to the MongoDB named by MONGO_URI and drops the given collections.
// The test is skipped when no database is configured.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	loadTestEnv()
	if testMongoURI == "" {
		t.Skip("MONGO_URI not set; skipping MongoDB-backed test")
	}

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	database := client.Database(dbName)

	for _, collection := range collections {
		_ = database.Collection(collection).Drop(context.Background())
	}
	return database
}

// GetTestMongoURI returns the configured test MongoDB URI, or "" when there is none.
func GetTestMongoURI() string {
	loadTestEnv()
	return testMongoURI
}

// SetupTestRedis connects to the Redis at TEST_REDIS_ADDR and flushes the selected DB.
// The test is skipped when no Redis is configured.
func SetupTestRedis(t *testing.T, db int) *redis.Client {
	t.Helper()
	loadTestEnv()
	if testRedisAddr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis-backed test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: testRedisAddr, DB: db})
	require.NoError(t, rdb.Ping(context.Background()).Err(), "Failed to connect to Redis")
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return rdb
}
