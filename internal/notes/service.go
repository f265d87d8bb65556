package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	errMissingNoteID   = errors.New("note identifier is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "notes.service.new"
	opCreateNote  = "notes.create"
	opListNotes   = "notes.list"
	opGetNote     = "notes.get"
	opDeleteNote  = "notes.delete"
	fieldUserID   = "user_id"
	fieldNoteID   = "note_id"
	queryUserID   = fieldUserID + " = ?"
	queryUserNote = fieldUserID + " = ? AND " + fieldNoteID + " = ?"
	orderNewest   = "created_at_ms DESC, note_id DESC"

	reasonMissingDatabase = "missing_database"
	reasonMissingUserID   = "missing_user_id"
	reasonMissingNoteID   = "missing_note_id"
	reasonInvalidNote     = "invalid_note"
	reasonClockLookup     = "clock_lookup_failed"
	reasonInsertFailed    = "insert_failed"
	reasonQueryFailed     = "query_failed"
	reasonNotFound        = "not_found"
	reasonDeleteFailed    = "delete_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Store persists voice notes per owner.
type Store interface {
	Create(ctx context.Context, request NewNote) (Note, error)
	List(ctx context.Context, userID UserID) ([]Note, error)
	Get(ctx context.Context, userID UserID, noteID NoteID) (Note, error)
	Delete(ctx context.Context, userID UserID, noteID NoteID) error
}

// VoiceNoteRecord is the relational row backing a Note.
type VoiceNoteRecord struct {
	UserID          string   `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_voice_notes_user_created,priority:1"`
	NoteID          string   `gorm:"column:note_id;primaryKey;size:190;not null"`
	CreatedAtMillis int64    `gorm:"column:created_at_ms;not null;index:idx_voice_notes_user_created,priority:2"`
	AudioURL        string   `gorm:"column:audio_url;type:text;not null;default:''"`
	Transcription   string   `gorm:"column:transcription;type:text;not null"`
	Summary         string   `gorm:"column:summary;type:text;not null"`
	Topic           string   `gorm:"column:topic;size:16;not null"`
	Confidence      float64  `gorm:"column:confidence;not null;default:0"`
	NextSteps       []string `gorm:"column:next_steps_json;type:text;serializer:json"`
	References      []string `gorm:"column:references_json;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (VoiceNoteRecord) TableName() string {
	return "voice_notes"
}

func (record VoiceNoteRecord) toNote() Note {
	return Note{
		ID:            NoteID(record.NoteID),
		UserID:        UserID(record.UserID),
		CreatedAt:     time.UnixMilli(record.CreatedAtMillis).UTC(),
		AudioURL:      record.AudioURL,
		Transcription: record.Transcription,
		Summary:       record.Summary,
		Topic:         Topic(record.Topic),
		Confidence:    record.Confidence,
		NextSteps:     nonNilStrings(record.NextSteps),
		References:    nonNilStrings(record.References),
	}
}

// ServiceConfig wires the relational note store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the gorm-backed Store.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the relational note store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// Create inserts the note and assigns its creation time. Creation times are
// strictly increasing per owner so newest-first ordering is total.
func (s *Service) Create(ctx context.Context, request NewNote) (Note, error) {
	if s.db == nil {
		s.logError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
	}
	if request.UserID == "" {
		s.logError(opCreateNote, reasonMissingUserID, errMissingUserID)
		return Note{}, newServiceError(opCreateNote, reasonMissingUserID, errMissingUserID)
	}
	if request.NoteID == "" {
		s.logError(opCreateNote, reasonMissingNoteID, errMissingNoteID)
		return Note{}, newServiceError(opCreateNote, reasonMissingNoteID, errMissingNoteID)
	}
	processed, err := request.Processed.Validate()
	if err != nil {
		s.logError(opCreateNote, reasonInvalidNote, err,
			zap.String(fieldUserID, request.UserID.String()),
			zap.String(fieldNoteID, request.NoteID.String()))
		return Note{}, newServiceError(opCreateNote, reasonInvalidNote, err)
	}
	request.Processed = processed

	var created Note
	transactionErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latestMillis int64
		if err := tx.Model(&VoiceNoteRecord{}).
			Where(queryUserID, request.UserID.String()).
			Select("COALESCE(MAX(created_at_ms), 0)").
			Scan(&latestMillis).Error; err != nil {
			s.logError(opCreateNote, reasonClockLookup, err,
				zap.String(fieldUserID, request.UserID.String()))
			return newServiceError(opCreateNote, reasonClockLookup, err)
		}

		createdAtMillis := s.clock().UTC().UnixMilli()
		if createdAtMillis <= latestMillis {
			createdAtMillis = latestMillis + 1
		}

		record := VoiceNoteRecord{
			UserID:          request.UserID.String(),
			NoteID:          request.NoteID.String(),
			CreatedAtMillis: createdAtMillis,
			AudioURL:        request.AudioURL,
			Transcription:   processed.Transcription,
			Summary:         processed.Summary,
			Topic:           processed.Topic.String(),
			Confidence:      processed.Confidence,
			NextSteps:       processed.NextSteps,
			References:      processed.References,
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opCreateNote, reasonInsertFailed, err,
				zap.String(fieldUserID, request.UserID.String()),
				zap.String(fieldNoteID, request.NoteID.String()))
			return newServiceError(opCreateNote, reasonInsertFailed, err)
		}
		created = record.toNote()
		return nil
	})
	if transactionErr != nil {
		return Note{}, transactionErr
	}
	return created, nil
}

// List returns the owner's notes, newest first.
func (s *Service) List(ctx context.Context, userID UserID) ([]Note, error) {
	if s.db == nil {
		s.logError(opListNotes, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListNotes, reasonMissingDatabase, errMissingDatabase)
	}
	if userID == "" {
		s.logError(opListNotes, reasonMissingUserID, errMissingUserID)
		return nil, newServiceError(opListNotes, reasonMissingUserID, errMissingUserID)
	}

	var records []VoiceNoteRecord
	if err := s.db.WithContext(ctx).
		Where(queryUserID, userID.String()).
		Order(orderNewest).
		Find(&records).Error; err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}

	result := make([]Note, 0, len(records))
	for _, record := range records {
		result = append(result, record.toNote())
	}
	return result, nil
}

// Get loads a single note.
func (s *Service) Get(ctx context.Context, userID UserID, noteID NoteID) (Note, error) {
	if s.db == nil {
		s.logError(opGetNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opGetNote, reasonMissingDatabase, errMissingDatabase)
	}
	if userID == "" {
		return Note{}, newServiceError(opGetNote, reasonMissingUserID, errMissingUserID)
	}
	if noteID == "" {
		return Note{}, newServiceError(opGetNote, reasonMissingNoteID, errMissingNoteID)
	}

	var record VoiceNoteRecord
	err := s.db.WithContext(ctx).
		Where(queryUserNote, userID.String(), noteID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, newServiceError(opGetNote, reasonNotFound, ErrNoteNotFound)
	}
	if err != nil {
		s.logError(opGetNote, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return Note{}, newServiceError(opGetNote, reasonQueryFailed, err)
	}
	return record.toNote(), nil
}

// Delete removes a note. Deleting a missing note succeeds.
func (s *Service) Delete(ctx context.Context, userID UserID, noteID NoteID) error {
	if s.db == nil {
		s.logError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
	}
	if userID == "" {
		return newServiceError(opDeleteNote, reasonMissingUserID, errMissingUserID)
	}
	if noteID == "" {
		return newServiceError(opDeleteNote, reasonMissingNoteID, errMissingNoteID)
	}

	if err := s.db.WithContext(ctx).
		Where(queryUserNote, userID.String(), noteID.String()).
		Delete(&VoiceNoteRecord{}).Error; err != nil {
		s.logError(opDeleteNote, reasonDeleteFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return newServiceError(opDeleteNote, reasonDeleteFailed, err)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
