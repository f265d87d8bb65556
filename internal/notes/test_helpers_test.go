package notes

import (
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "notes.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&VoiceNoteRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func studyNote() ProcessedNote {
	return ProcessedNote{
		Transcription: "Read chapter four on graph traversal before the exam",
		Summary:       "Review graph traversal for the exam",
		Topic:         TopicStudy,
		Confidence:    0.81,
		NextSteps:     []string{"Read chapter four", "Solve the practice set"},
		References:    []string{"https://example.com/graphs"},
	}
}

func personalNote() ProcessedNote {
	return ProcessedNote{
		Transcription: "Just talked to mom about dinner",
		Summary:       "Dinner plans with mom",
		Topic:         TopicPersonal,
		Confidence:    0.88,
	}
}

// steppingClock returns a clock advancing by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		value := current
		current = current.Add(step)
		return value
	}
}

type sequenceIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return p.prefix + "-" + strconv.Itoa(p.next), nil
}
