// Package store persists the controller's access log and the scene to
// detection class mapping in SQLite through gorm.
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = "file::memory:"

// Store wraps the controller database.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the SQLite database at path, migrates the schema
// and seeds the scene table when it is empty. An empty path opens an
// in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql interface: %w", err)
	}
	// one connection: in-memory databases are per connection, and SQLite
	// has a single writer anyway
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.setup(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("Using SQLite database")
	return s, nil
}

func (s *Store) setup() error {
	if err := s.db.AutoMigrate(&AccessLog{}, &SceneContext{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var count int64
	if err := s.db.Model(&SceneContext{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count scenes: %w", err)
	}
	if count == 0 {
		n, err := insertScenes(s.db, FallbackScenes())
		if err != nil {
			return fmt.Errorf("seed scenes: %w", err)
		}
		s.log.Info().Int64("scenes", n).Msg("Seeded scene contexts")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("access sql interface: %w", err)
	}
	return sqlDB.Close()
}
