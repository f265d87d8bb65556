package notes

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
)

const (
	defaultWriterQueueSize    = 256
	defaultWriterWriteTimeout = 15 * time.Second
	opSubmitCreate            = "notes.writer.submit_create"
	opSubmitDelete            = "notes.writer.submit_delete"
	opApplyWrite              = "notes.writer.apply"
)

var (
	// ErrWriterBusy indicates the write queue is full.
	ErrWriterBusy = errors.New("notes: writer queue full")
	// ErrWriterClosed indicates the writer no longer accepts submissions.
	ErrWriterClosed = errors.New("notes: writer closed")

	errMissingStore      = errors.New("note store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ChangeKind names the outcome of an applied write.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeWriteFailed ChangeKind = "write_failed"
)

// WriteOperation names the submitted write.
type WriteOperation string

const (
	WriteCreate WriteOperation = "create"
	WriteDelete WriteOperation = "delete"
)

// ChangeEvent reports an applied or failed write to observers.
type ChangeEvent struct {
	UserID    UserID
	NoteID    NoteID
	Kind      ChangeKind
	Operation WriteOperation
	Err       error
}

// ChangeNotifier observes write outcomes; it is the asynchronous error
// channel for fire-and-forget writes.
type ChangeNotifier interface {
	NotifyChange(event ChangeEvent)
}

// ArtifactRemover deletes the stored audio of a removed note.
type ArtifactRemover interface {
	Delete(ctx context.Context, ownerID string, locator string) error
}

// WriterConfig wires the fire-and-forget writer. Artifacts is optional; when
// set, a note's audio is removed only after the note itself is deleted.
type WriterConfig struct {
	Store        Store
	IDProvider   IDProvider
	Artifacts    ArtifactRemover
	Clock        func() time.Time
	Notifier     ChangeNotifier
	Logger       *zap.Logger
	QueueSize    int
	WriteTimeout time.Duration
}

type writeTask struct {
	operation WriteOperation
	create    NewNote
	userID    UserID
	noteID    NoteID
}

// Writer dispatches note writes without making callers wait for durability.
type Writer struct {
	store        Store
	ids          IDProvider
	artifacts    ArtifactRemover
	clock        func() time.Time
	notifier     ChangeNotifier
	logger       *zap.Logger
	writeTimeout time.Duration

	mu        sync.RWMutex
	closed    bool
	queue     chan writeTask
	done      chan struct{}
	startOnce sync.Once
}

// NewWriter constructs a Writer. Call Start before submitting and Close on shutdown.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultWriterQueueSize
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriterWriteTimeout
	}
	return &Writer{
		store:        cfg.Store,
		ids:          cfg.IDProvider,
		artifacts:    cfg.Artifacts,
		clock:        clock,
		notifier:     cfg.Notifier,
		logger:       logger,
		writeTimeout: writeTimeout,
		queue:        make(chan writeTask, queueSize),
		done:         make(chan struct{}),
	}, nil
}

// Start launches the background worker. Subsequent calls are no-ops.
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Close stops accepting submissions and waits until queued writes are applied.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.Start()
	<-w.done
}

// SubmitCreate assigns a note identifier, queues the insert and returns at
// once. CreatedAt on the returned note is the submission time; the stored
// value is assigned by the store.
func (w *Writer) SubmitCreate(userID UserID, processed ProcessedNote, audioURL string) (Note, error) {
	if userID == "" {
		return Note{}, newServiceError(opSubmitCreate, reasonMissingUserID, errMissingUserID)
	}
	validated, err := processed.Validate()
	if err != nil {
		return Note{}, newServiceError(opSubmitCreate, reasonInvalidNote, err)
	}
	rawID, err := w.ids.NewID()
	if err != nil {
		w.logger.Error("note id generation failed",
			zap.String("operation", opSubmitCreate),
			zap.String(fieldUserID, userID.String()),
			zap.Error(err))
		return Note{}, newServiceError(opSubmitCreate, "id_generation_failed", err)
	}
	noteID, err := NewNoteID(rawID)
	if err != nil {
		return Note{}, newServiceError(opSubmitCreate, "id_generation_failed", err)
	}

	request := NewNote{
		UserID:    userID,
		NoteID:    noteID,
		AudioURL:  audioURL,
		Processed: validated,
	}
	if err := w.enqueue(writeTask{operation: WriteCreate, create: request, userID: userID, noteID: noteID}); err != nil {
		return Note{}, newServiceError(opSubmitCreate, "enqueue_failed", err)
	}
	return noteFromProcessed(request, w.clock().UTC()), nil
}

// SubmitDelete queues the removal of a note and returns at once.
func (w *Writer) SubmitDelete(userID UserID, noteID NoteID) error {
	if userID == "" {
		return newServiceError(opSubmitDelete, reasonMissingUserID, errMissingUserID)
	}
	if noteID == "" {
		return newServiceError(opSubmitDelete, reasonMissingNoteID, errMissingNoteID)
	}
	if err := w.enqueue(writeTask{operation: WriteDelete, userID: userID, noteID: noteID}); err != nil {
		return newServiceError(opSubmitDelete, "enqueue_failed", err)
	}
	return nil
}

func (w *Writer) enqueue(task writeTask) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- task:
		return nil
	default:
		return ErrWriterBusy
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for task := range w.queue {
		w.apply(task)
	}
}

func (w *Writer) apply(task writeTask) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	var err error
	kind := ChangeCreated
	switch task.operation {
	case WriteCreate:
		_, err = w.store.Create(ctx, task.create)
	case WriteDelete:
		kind = ChangeDeleted
		audioURL := w.storedAudioURL(ctx, task)
		err = w.store.Delete(ctx, task.userID, task.noteID)
		if err == nil && audioURL != "" {
			w.removeArtifact(ctx, task, audioURL)
		}
	}

	if err != nil {
		w.logger.Error("note write failed",
			zap.String("operation", opApplyWrite),
			zap.String("write", string(task.operation)),
			zap.String(fieldUserID, task.userID.String()),
			zap.String(fieldNoteID, task.noteID.String()),
			zap.Error(err))
		w.notify(ChangeEvent{
			UserID:    task.userID,
			NoteID:    task.noteID,
			Kind:      ChangeWriteFailed,
			Operation: task.operation,
			Err:       err,
		})
		return
	}

	w.logger.Debug("note write applied",
		zap.String("write", string(task.operation)),
		zap.String(fieldUserID, task.userID.String()),
		zap.String(fieldNoteID, task.noteID.String()))
	w.notify(ChangeEvent{
		UserID:    task.userID,
		NoteID:    task.noteID,
		Kind:      kind,
		Operation: task.operation,
	})
}

func (w *Writer) storedAudioURL(ctx context.Context, task writeTask) string {
	if w.artifacts == nil {
		return ""
	}
	existing, err := w.store.Get(ctx, task.userID, task.noteID)
	if err != nil {
		return ""
	}
	return existing.AudioURL
}

func (w *Writer) removeArtifact(ctx context.Context, task writeTask, audioURL string) {
	err := w.artifacts.Delete(ctx, task.userID.String(), audioURL)
	if err == nil || errors.Is(err, audio.ErrForeignArtifact) {
		return
	}
	w.logger.Warn("audio artifact not removed",
		zap.String("operation", opApplyWrite),
		zap.String(fieldUserID, task.userID.String()),
		zap.String(fieldNoteID, task.noteID.String()),
		zap.Error(err))
}

func (w *Writer) notify(event ChangeEvent) {
	if w.notifier == nil {
		return
	}
	w.notifier.NotifyChange(event)
}
