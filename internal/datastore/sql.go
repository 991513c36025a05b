package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dropp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Node is one leaf of one datastore node.
type Node struct {
	Path      string    `gorm:"primaryKey;size:512"`
	Field     string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Node) TableName() string {
	return "datastore_nodes"
}

// SQLStore implements Datastore on a relational database through GORM.
type SQLStore struct {
	db  *gorm.DB
	log *observability.StoreLogger
}

// NewSQLStore returns a SQLStore bound to db. Call Migrate before first use
// against a fresh database.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, log: observability.NewStoreLogger("sql")}
}

// Migrate creates the node table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Node{}); err != nil {
		return fmt.Errorf("migrate datastore_nodes: %w", err)
	}
	return nil
}

// Get returns the leaves at path, or nil if the node does not exist.
func (s *SQLStore) Get(ctx context.Context, path string) (rec Record, err error) {
	if !validPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	defer observability.ObserveStoreOp("sql", "get", time.Now(), &err)

	var nodes []Node
	if err = s.db.WithContext(ctx).Where("path = ?", path).Find(&nodes).Error; err != nil {
		s.log.LogError(ctx, err, "get", path)
		return nil, fmt.Errorf("select %s: %w", path, err)
	}
	s.log.LogRead(ctx, path, len(nodes))
	if len(nodes) == 0 {
		return nil, nil
	}
	rec = make(Record, len(nodes))
	for _, n := range nodes {
		rec[n.Field] = n.Value
	}
	return rec, nil
}

// Update upserts every leaf of rec at path.
func (s *SQLStore) Update(ctx context.Context, path string, rec Record) (err error) {
	if !validPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if len(rec) == 0 {
		return nil
	}
	defer observability.ObserveStoreOp("sql", "update", time.Now(), &err)

	nodes := make([]Node, 0, len(rec))
	for k, v := range rec {
		nodes = append(nodes, Node{Path: path, Field: k, Value: v})
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}, {Name: "field"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&nodes).Error
	if err != nil {
		s.log.LogError(ctx, err, "update", path)
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	s.log.LogWrite(ctx, path, len(rec))
	return nil
}

// Delete removes the node, its descendants and its leaf in the parent in a
// single transaction.
func (s *SQLStore) Delete(ctx context.Context, path string) (err error) {
	if !validPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	defer observability.ObserveStoreOp("sql", "delete", time.Now(), &err)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path = ? OR path LIKE ? ESCAPE '\\'", path, escapeLike(path)+"/%").
			Delete(&Node{}).Error; err != nil {
			return err
		}
		if parent, leaf := Split(path); parent != "" {
			if err := tx.Where("path = ? AND field = ?", parent, leaf).Delete(&Node{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.LogError(ctx, err, "delete", path)
		return fmt.Errorf("delete %s: %w", path, err)
	}
	s.log.LogDelete(ctx, path)
	return nil
}

// Add stores rec under a generated, time-ordered key below path.
func (s *SQLStore) Add(ctx context.Context, path string, rec Record) (string, error) {
	if !validPath(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	id := newKey()
	if err := s.Update(ctx, path+"/"+id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}

var (
	_ Datastore = (*SQLStore)(nil)
	_ Pinger    = (*SQLStore)(nil)
)
