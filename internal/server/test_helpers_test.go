package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/capture"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/users"
)

const testUserID notes.UserID = "user-1"

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

type stubOwnerResolver struct {
	owner users.Owner
	err   error
}

func (s stubOwnerResolver) ResolveOwner(context.Context, auth.SessionClaims) (users.Owner, error) {
	return s.owner, s.err
}

type stubProcessor struct {
	mu        sync.Mutex
	processed notes.ProcessedNote
	err       error
	inputs    []string
}

func (s *stubProcessor) ProcessVoiceNote(_ context.Context, audioDataURI string) (notes.ProcessedNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, audioDataURI)
	return s.processed, s.err
}

func (s *stubProcessor) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

type submittedCreate struct {
	userID    notes.UserID
	processed notes.ProcessedNote
	audioURL  string
}

type stubWriter struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	created   []submittedCreate
	deleted   []notes.NoteID
}

func (s *stubWriter) SubmitCreate(userID notes.UserID, processed notes.ProcessedNote, audioURL string) (notes.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return notes.Note{}, s.createErr
	}
	s.created = append(s.created, submittedCreate{userID: userID, processed: processed, audioURL: audioURL})
	return notes.Note{
		ID:            "note-1",
		UserID:        userID,
		CreatedAt:     time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
		AudioURL:      audioURL,
		Transcription: processed.Transcription,
		Summary:       processed.Summary,
		Topic:         processed.Topic,
		Confidence:    processed.Confidence,
		NextSteps:     processed.NextSteps,
		References:    processed.References,
	}, nil
}

func (s *stubWriter) SubmitDelete(_ notes.UserID, noteID notes.NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, noteID)
	return nil
}

type stubReader struct {
	stored []notes.Note
	err    error
}

func (s stubReader) List(context.Context, notes.UserID) ([]notes.Note, error) {
	return s.stored, s.err
}

func (s stubReader) Get(_ context.Context, _ notes.UserID, noteID notes.NoteID) (notes.Note, error) {
	if s.err != nil {
		return notes.Note{}, s.err
	}
	for _, note := range s.stored {
		if note.ID == noteID {
			return note, nil
		}
	}
	return notes.Note{}, notes.ErrNoteNotFound
}

type memoryArtifacts struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
}

func (m *memoryArtifacts) Save(_ context.Context, ownerID string, _ audio.DataURI) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	locator := fmt.Sprintf("/audio/%s/clip-%d.webm", ownerID, len(m.saved)+1)
	m.saved = append(m.saved, locator)
	return locator, nil
}

func (m *memoryArtifacts) Delete(_ context.Context, _ string, locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, locator)
	return nil
}

func workNote() notes.ProcessedNote {
	return notes.ProcessedNote{
		Transcription: "Need to finish the quarterly report by Friday",
		Summary:       "Finish the quarterly report by Friday",
		Topic:         notes.TopicWork,
		Confidence:    0.92,
		NextSteps:     []string{"Draft the revenue section"},
		References:    []string{"https://example.com/reporting-guide"},
	}
}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	ctx.Request = request
	ctx.Set(userIDContextKey, testUserID)
	return ctx, recorder
}

func newTestCaptureManager(t *testing.T, artifacts *memoryArtifacts) *capture.Manager {
	t.Helper()
	manager, err := capture.NewManager(capture.ManagerConfig{Artifacts: artifacts, MaxBytes: 64})
	if err != nil {
		t.Fatalf("failed to construct capture manager: %v", err)
	}
	return manager
}

func newTestHandler(processor *stubProcessor, writer *stubWriter, reader stubReader) *httpHandler {
	return &httpHandler{
		processor:     processor,
		writer:        writer,
		reader:        reader,
		heartbeat:     time.Second,
		maxAudioBytes: defaultMaxAudioBytes,
		logger:        zap.NewNop(),
	}
}
