package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"dropp/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConnect_SQLite(t *testing.T) {
	cfg := &config.Config{
		DatastoreDriver: config.DriverSQLite,
		SQLitePath:      filepath.Join(t.TempDir(), "dropp.db"),
	}

	db, err := Connect(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	assert.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	d, err := Dialector(&config.Config{DatastoreDriver: config.DriverPostgres, DBHost: "db", DBName: "dropp"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = Dialector(&config.Config{DatastoreDriver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = Dialector(&config.Config{DatastoreDriver: config.DriverRedis})
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"host=db port=5432 user=dropp password=secret dbname=dropp sslmode=require",
		postgresDSN(&config.Config{
			DBHost: "db", DBPort: "5432", DBUser: "dropp", DBPassword: "secret",
			DBName: "dropp", DBSSLMode: "require",
		}))
	assert.Equal(t, "host=db dbname=dropp sslmode=disable",
		postgresDSN(&config.Config{DBHost: "db", DBName: "dropp"}))
}

func TestGormLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Contains(t, buf.String(), "GORM query error")

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), "GORM slow query")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Empty(t, buf.String())
}
