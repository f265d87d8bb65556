package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// Pass notes tables only when the relational store holds voice notes.
func OpenSQLite(path string, withNotes bool, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := []interface{}{&users.Identity{}, &migrationRecord{}}
	if withNotes {
		models = append(models, &notes.VoiceNoteRecord{})
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	if withNotes {
		if err := applyMigrations(db, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("database initialized", zap.String("path", path), zap.Bool("voice_notes", withNotes))
	return db, nil
}
