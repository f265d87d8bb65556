package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
	signal chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{signal: make(chan struct{}, 16)}
}

func (n *recordingNotifier) NotifyChange(event ChangeEvent) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	n.signal <- struct{}{}
}

func (n *recordingNotifier) waitFor(t *testing.T, count int) []ChangeEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		n.mu.Lock()
		if len(n.events) >= count {
			events := append([]ChangeEvent(nil), n.events...)
			n.mu.Unlock()
			return events
		}
		n.mu.Unlock()
		select {
		case <-n.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d change events", count)
		}
	}
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) Create(context.Context, NewNote) (Note, error) {
	return Note{}, s.err
}

// undeletableStore fails every delete but serves reads from the wrapped store.
type undeletableStore struct {
	Store
	err error
}

func (s undeletableStore) Delete(context.Context, UserID, NoteID) error {
	return s.err
}

type recordingArtifacts struct {
	mu      sync.Mutex
	removed []string
}

func (r *recordingArtifacts) Delete(_ context.Context, _ string, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, locator)
	return nil
}

func (r *recordingArtifacts) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// blockingStore holds every write until release is closed.
type blockingStore struct {
	Store
	release chan struct{}
}

func (s blockingStore) Create(ctx context.Context, request NewNote) (Note, error) {
	<-s.release
	return Note{ID: request.NoteID}, nil
}

func TestWriterSubmitCreateReturnsBeforePersistence(t *testing.T) {
	service, err := NewService(ServiceConfig{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	notifier := newRecordingNotifier()
	writer, err := NewWriter(WriterConfig{
		Store:      service,
		IDProvider: &sequenceIDProvider{prefix: "note"},
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	writer.Start()
	t.Cleanup(writer.Close)

	userID := mustUserID(t, "user-1")
	submitted, err := writer.SubmitCreate(userID, studyNote(), "/audio/user-1/a.webm")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submitted.ID != "note-1" {
		t.Fatalf("expected assigned id note-1, got %q", submitted.ID)
	}
	if submitted.UserID != userID || submitted.AudioURL != "/audio/user-1/a.webm" {
		t.Fatalf("unexpected submitted note %#v", submitted)
	}

	events := notifier.waitFor(t, 1)
	if events[0].Kind != ChangeCreated || events[0].NoteID != "note-1" || events[0].UserID != userID {
		t.Fatalf("unexpected change event %#v", events[0])
	}

	stored, err := service.Get(context.Background(), userID, "note-1")
	if err != nil {
		t.Fatalf("expected note to be visible after change event: %v", err)
	}
	if stored.Topic != TopicStudy || len(stored.NextSteps) != 2 {
		t.Fatalf("unexpected stored note %#v", stored)
	}
}

func TestWriterSubmitDeleteIsApplied(t *testing.T) {
	service, err := NewService(ServiceConfig{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	if _, err := service.Create(context.Background(), NewNote{UserID: "user-1", NoteID: "note-1", Processed: personalNote()}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	notifier := newRecordingNotifier()
	writer, err := NewWriter(WriterConfig{Store: service, IDProvider: NewUUIDProvider(), Notifier: notifier})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	writer.Start()
	t.Cleanup(writer.Close)

	if err := writer.SubmitDelete("user-1", "note-1"); err != nil {
		t.Fatalf("submit delete failed: %v", err)
	}
	events := notifier.waitFor(t, 1)
	if events[0].Kind != ChangeDeleted {
		t.Fatalf("expected delete event, got %#v", events[0])
	}
	listed, err := service.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected note to be removed, got %d notes", len(listed))
	}
}

func TestWriterRemovesArtifactAfterDelete(t *testing.T) {
	service, err := NewService(ServiceConfig{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	seed := NewNote{UserID: "user-1", NoteID: "note-1", AudioURL: "/audio/user-1/note-1.webm", Processed: personalNote()}
	if _, err := service.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	artifacts := &recordingArtifacts{}
	notifier := newRecordingNotifier()
	writer, err := NewWriter(WriterConfig{Store: service, IDProvider: NewUUIDProvider(), Artifacts: artifacts, Notifier: notifier})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	writer.Start()
	t.Cleanup(writer.Close)

	if err := writer.SubmitDelete("user-1", "note-1"); err != nil {
		t.Fatalf("submit delete failed: %v", err)
	}
	events := notifier.waitFor(t, 1)
	if events[0].Kind != ChangeDeleted {
		t.Fatalf("expected delete event, got %#v", events[0])
	}
	if removed := artifacts.snapshot(); len(removed) != 1 || removed[0] != seed.AudioURL {
		t.Fatalf("expected artifact %s to be removed, got %v", seed.AudioURL, removed)
	}
}

func TestWriterKeepsArtifactWhenDeleteFails(t *testing.T) {
	service, err := NewService(ServiceConfig{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	seed := NewNote{UserID: "user-1", NoteID: "note-1", AudioURL: "/audio/user-1/note-1.webm", Processed: personalNote()}
	if _, err := service.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	artifacts := &recordingArtifacts{}
	notifier := newRecordingNotifier()
	writer, err := NewWriter(WriterConfig{
		Store:      undeletableStore{Store: service, err: errors.New("database locked")},
		IDProvider: NewUUIDProvider(),
		Artifacts:  artifacts,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	writer.Start()
	t.Cleanup(writer.Close)

	if err := writer.SubmitDelete("user-1", "note-1"); err != nil {
		t.Fatalf("submit delete failed: %v", err)
	}
	events := notifier.waitFor(t, 1)
	if events[0].Kind != ChangeWriteFailed || events[0].Operation != WriteDelete {
		t.Fatalf("expected failed delete event, got %#v", events[0])
	}
	if removed := artifacts.snapshot(); len(removed) != 0 {
		t.Fatalf("artifact of a surviving note must be kept, got %v", removed)
	}
	stored, err := service.Get(context.Background(), "user-1", "note-1")
	if err != nil || stored.AudioURL != seed.AudioURL {
		t.Fatalf("expected note to keep its audio, got %#v (%v)", stored, err)
	}
}

func TestWriterReportsFailuresAsynchronously(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	notifier := newRecordingNotifier()
	storeErr := errors.New("disk full")
	writer, err := NewWriter(WriterConfig{
		Store:      failingStore{err: storeErr},
		IDProvider: NewUUIDProvider(),
		Notifier:   notifier,
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	writer.Start()
	t.Cleanup(writer.Close)

	if _, err := writer.SubmitCreate("user-1", personalNote(), ""); err != nil {
		t.Fatalf("submission should not observe store failure, got %v", err)
	}

	events := notifier.waitFor(t, 1)
	if events[0].Kind != ChangeWriteFailed || events[0].Operation != WriteCreate {
		t.Fatalf("unexpected event %#v", events[0])
	}
	if !errors.Is(events[0].Err, storeErr) {
		t.Fatalf("expected store error in event, got %v", events[0].Err)
	}
	if logs.FilterMessage("note write failed").Len() != 1 {
		t.Fatalf("expected one failure log entry, got %d", logs.FilterMessage("note write failed").Len())
	}
}

func TestWriterRejectsWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	writer, err := NewWriter(WriterConfig{
		Store:      blockingStore{release: release},
		IDProvider: NewUUIDProvider(),
		QueueSize:  1,
	})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}

	// Without a running worker the single slot fills after one submission.
	if _, err := writer.SubmitCreate("user-1", personalNote(), ""); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if _, err := writer.SubmitCreate("user-1", personalNote(), ""); !errors.Is(err, ErrWriterBusy) {
		t.Fatalf("expected busy writer, got %v", err)
	}

	close(release)
	writer.Close()

	if err := writer.SubmitDelete("user-1", "note-1"); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("expected closed writer, got %v", err)
	}
}

func TestWriterSubmitCreateValidatesSynchronously(t *testing.T) {
	writer, err := NewWriter(WriterConfig{Store: failingStore{}, IDProvider: NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	t.Cleanup(writer.Close)

	_, err = writer.SubmitCreate("user-1", ProcessedNote{Topic: "Errands"}, "")
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected unknown topic error, got %v", err)
	}
	if _, err := writer.SubmitCreate("", personalNote(), ""); err == nil {
		t.Fatalf("expected missing user error")
	}
}
