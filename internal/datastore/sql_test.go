package datastore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := NewSQLStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLStore_Contract(t *testing.T) {
	runContract(t, newTestSQLStore(t))
}

func TestSQLStore_DeleteEscapesLike(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "users/a_b/followers", Record{"x": "x"}))
	require.NoError(t, store.Update(ctx, "users/axb/followers", Record{"x": "x"}))

	require.NoError(t, store.Delete(ctx, "users/a_b"))

	rec, err := store.Get(ctx, "users/axb/followers")
	require.NoError(t, err)
	assert.Equal(t, Record{"x": "x"}, rec)
}

func TestSQLStore_Ping(t *testing.T) {
	store := newTestSQLStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func TestSQLStore_GetFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewSQLStore(db)
	cause := errors.New("connection reset by peer")

	mock.ExpectQuery(`SELECT \* FROM "datastore_nodes" WHERE path = \$1`).
		WithArgs("users/amy/follows").
		WillReturnError(cause)

	rec, err := store.Get(context.Background(), "users/amy/follows")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetRows(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewSQLStore(db)

	rows := sqlmock.NewRows([]string{"path", "field", "value"}).
		AddRow("users/amy/follows", "bob", "bob").
		AddRow("users/amy/follows", "cyd", "cyd")
	mock.ExpectQuery(`SELECT \* FROM "datastore_nodes" WHERE path = \$1`).
		WithArgs("users/amy/follows").
		WillReturnRows(rows)

	rec, err := store.Get(context.Background(), "users/amy/follows")
	require.NoError(t, err)
	assert.Equal(t, Record{"bob": "bob", "cyd": "cyd"}, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}
