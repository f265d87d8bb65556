package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
	// ErrInvalidConfidence indicates that a classification confidence is outside [0,1].
	ErrInvalidConfidence = errors.New("notes: invalid confidence")
	// ErrNoteNotFound indicates that no note exists for the user and note identifiers.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("%w: contains path separator", ErrInvalidNoteID)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated owner identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("%w: contains path separator", ErrInvalidUserID)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ProcessedNote is the transient pipeline output. It carries no identity,
// timestamp or audio locator; the store attaches those on creation.
type ProcessedNote struct {
	Transcription string
	Summary       string
	Topic         Topic
	Confidence    float64
	NextSteps     []string
	References    []string
}

// Validate enforces the note invariants and normalizes absent lists to empty ones.
func (p ProcessedNote) Validate() (ProcessedNote, error) {
	if _, err := ParseTopic(string(p.Topic)); err != nil {
		return ProcessedNote{}, err
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return ProcessedNote{}, fmt.Errorf("%w: %v", ErrInvalidConfidence, p.Confidence)
	}
	normalized := p
	if !p.Topic.WantsNextSteps() {
		normalized.NextSteps = []string{}
		normalized.References = []string{}
		return normalized, nil
	}
	normalized.NextSteps = nonNilStrings(p.NextSteps)
	normalized.References = nonNilStrings(p.References)
	return normalized, nil
}

// NewNote is the create request handed to a Store. The note identifier is
// assigned before the write is dispatched; the creation time is assigned by
// the store.
type NewNote struct {
	UserID    UserID
	NoteID    NoteID
	AudioURL  string
	Processed ProcessedNote
}

// Note is the durable voice note record.
type Note struct {
	ID            NoteID
	UserID        UserID
	CreatedAt     time.Time
	AudioURL      string
	Transcription string
	Summary       string
	Topic         Topic
	Confidence    float64
	NextSteps     []string
	References    []string
}

func noteFromProcessed(request NewNote, createdAt time.Time) Note {
	return Note{
		ID:            request.NoteID,
		UserID:        request.UserID,
		CreatedAt:     createdAt,
		AudioURL:      request.AudioURL,
		Transcription: request.Processed.Transcription,
		Summary:       request.Processed.Summary,
		Topic:         request.Processed.Topic,
		Confidence:    request.Processed.Confidence,
		NextSteps:     nonNilStrings(request.Processed.NextSteps),
		References:    nonNilStrings(request.Processed.References),
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	copied := make([]string, len(values))
	copy(copied, values)
	return copied
}
