package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

const migrationNormalizeVoiceNoteLists = "2026-10-01_normalize_voice_note_lists"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeVoiceNoteLists, apply: normalizeVoiceNoteLists},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// normalizeVoiceNoteLists rewrites absent list columns to empty JSON arrays
// and clears lists on topics that never carry next steps.
func normalizeVoiceNoteLists(db *gorm.DB) error {
	for _, column := range []string{"next_steps_json", "references_json"} {
		if err := db.Model(&notes.VoiceNoteRecord{}).
			Where(column+" IS NULL OR "+column+" = '' OR "+column+" = 'null'").
			Update(column, gorm.Expr("'[]'")).Error; err != nil {
			return err
		}
	}
	return db.Model(&notes.VoiceNoteRecord{}).
		Where("topic NOT IN ?", []string{notes.TopicStudy.String(), notes.TopicWork.String()}).
		Updates(map[string]interface{}{
			"next_steps_json": gorm.Expr("'[]'"),
			"references_json": gorm.Expr("'[]'"),
		}).Error
}
