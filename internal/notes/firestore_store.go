package notes

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreUsersCollection = "users"
	firestoreNotesCollection = "voiceNotes"
	firestoreCreatedAtField  = "createdAt"
	opFirestoreNew           = "notes.firestore.new"
)

var errMissingFirestoreClient = errors.New("firestore client is required")

// firestoreNote mirrors the users/{uid}/voiceNotes/{noteId} document shape.
type firestoreNote struct {
	UserID        string    `firestore:"userId"`
	CreatedAt     time.Time `firestore:"createdAt,serverTimestamp"`
	AudioURL      string    `firestore:"audioUrl"`
	Transcription string    `firestore:"transcription"`
	Summary       string    `firestore:"summary"`
	Topic         string    `firestore:"topic"`
	Confidence    float64   `firestore:"confidence"`
	NextSteps     []string  `firestore:"nextSteps"`
	References    []string  `firestore:"references"`
}

func (document firestoreNote) toNote(noteID string) Note {
	return Note{
		ID:            NoteID(noteID),
		UserID:        UserID(document.UserID),
		CreatedAt:     document.CreatedAt.UTC(),
		AudioURL:      document.AudioURL,
		Transcription: document.Transcription,
		Summary:       document.Summary,
		Topic:         Topic(document.Topic),
		Confidence:    document.Confidence,
		NextSteps:     nonNilStrings(document.NextSteps),
		References:    nonNilStrings(document.References),
	}
}

// FirestoreStoreConfig wires the document store.
type FirestoreStoreConfig struct {
	Client *firestore.Client
	Logger *zap.Logger
}

// FirestoreStore keeps each note as an independent document under its owner.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreStore constructs the document-backed Store.
func NewFirestoreStore(cfg FirestoreStoreConfig) (*FirestoreStore, error) {
	if cfg.Client == nil {
		return nil, newServiceError(opFirestoreNew, "missing_client", errMissingFirestoreClient)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &FirestoreStore{client: cfg.Client, logger: logger}, nil
}

func (s *FirestoreStore) notesCollection(userID UserID) *firestore.CollectionRef {
	return s.client.Collection(firestoreUsersCollection).Doc(userID.String()).Collection(firestoreNotesCollection)
}

// Create writes the document with a server-assigned creation time.
func (s *FirestoreStore) Create(ctx context.Context, request NewNote) (Note, error) {
	if request.UserID == "" {
		return Note{}, newServiceError(opCreateNote, reasonMissingUserID, errMissingUserID)
	}
	if request.NoteID == "" {
		return Note{}, newServiceError(opCreateNote, reasonMissingNoteID, errMissingNoteID)
	}
	processed, err := request.Processed.Validate()
	if err != nil {
		return Note{}, newServiceError(opCreateNote, reasonInvalidNote, err)
	}

	document := firestoreNote{
		UserID:        request.UserID.String(),
		AudioURL:      request.AudioURL,
		Transcription: processed.Transcription,
		Summary:       processed.Summary,
		Topic:         processed.Topic.String(),
		Confidence:    processed.Confidence,
		NextSteps:     processed.NextSteps,
		References:    processed.References,
	}
	result, err := s.notesCollection(request.UserID).Doc(request.NoteID.String()).Create(ctx, document)
	if err != nil {
		s.logError(opCreateNote, reasonInsertFailed, err,
			zap.String(fieldUserID, request.UserID.String()),
			zap.String(fieldNoteID, request.NoteID.String()))
		return Note{}, newServiceError(opCreateNote, reasonInsertFailed, err)
	}

	request.Processed = processed
	return noteFromProcessed(request, result.UpdateTime.UTC()), nil
}

// List returns the owner's notes, newest first.
func (s *FirestoreStore) List(ctx context.Context, userID UserID) ([]Note, error) {
	if userID == "" {
		return nil, newServiceError(opListNotes, reasonMissingUserID, errMissingUserID)
	}
	snapshots, err := s.notesCollection(userID).
		OrderBy(firestoreCreatedAtField, firestore.Desc).
		Documents(ctx).
		GetAll()
	if err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}

	result := make([]Note, 0, len(snapshots))
	for _, snapshot := range snapshots {
		var document firestoreNote
		if err := snapshot.DataTo(&document); err != nil {
			s.logError(opListNotes, "decode_failed", err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldNoteID, snapshot.Ref.ID))
			return nil, newServiceError(opListNotes, "decode_failed", err)
		}
		result = append(result, document.toNote(snapshot.Ref.ID))
	}
	return result, nil
}

// Get loads a single note document.
func (s *FirestoreStore) Get(ctx context.Context, userID UserID, noteID NoteID) (Note, error) {
	if userID == "" {
		return Note{}, newServiceError(opGetNote, reasonMissingUserID, errMissingUserID)
	}
	if noteID == "" {
		return Note{}, newServiceError(opGetNote, reasonMissingNoteID, errMissingNoteID)
	}
	snapshot, err := s.notesCollection(userID).Doc(noteID.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Note{}, newServiceError(opGetNote, reasonNotFound, ErrNoteNotFound)
	}
	if err != nil {
		s.logError(opGetNote, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return Note{}, newServiceError(opGetNote, reasonQueryFailed, err)
	}
	var document firestoreNote
	if err := snapshot.DataTo(&document); err != nil {
		return Note{}, newServiceError(opGetNote, "decode_failed", err)
	}
	return document.toNote(snapshot.Ref.ID), nil
}

// Delete removes the note document. Deleting a missing document succeeds.
func (s *FirestoreStore) Delete(ctx context.Context, userID UserID, noteID NoteID) error {
	if userID == "" {
		return newServiceError(opDeleteNote, reasonMissingUserID, errMissingUserID)
	}
	if noteID == "" {
		return newServiceError(opDeleteNote, reasonMissingNoteID, errMissingNoteID)
	}
	if _, err := s.notesCollection(userID).Doc(noteID.String()).Delete(ctx); err != nil {
		s.logError(opDeleteNote, reasonDeleteFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return newServiceError(opDeleteNote, reasonDeleteFailed, err)
	}
	return nil
}

func (s *FirestoreStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("store", "firestore"),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notes store error", attrs...)
}
