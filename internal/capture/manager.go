package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

const defaultMaxBytes = 25 << 20

var (
	// ErrNoAudio indicates a stop without any recorded data. Nothing is emitted.
	ErrNoAudio = errors.New("capture: no audio recorded")
	// ErrRecordingTooLarge indicates a chunk that would exceed the size cap.
	ErrRecordingTooLarge = errors.New("capture: recording exceeds size limit")
	// ErrNotRecording indicates data appended outside the recording state.
	ErrNotRecording = errors.New("capture: session is not recording")
	// ErrInvalidTransition indicates a command not allowed in the current state.
	ErrInvalidTransition = errors.New("capture: invalid state transition")
	// ErrEmptyChunk indicates an append without bytes.
	ErrEmptyChunk = errors.New("capture: empty chunk")

	errMissingArtifacts = errors.New("capture: artifact store is required")
)

// SessionInfo is a snapshot of a user's session.
type SessionInfo struct {
	State     State      `json:"state"`
	MIMEType  string     `json:"mime_type,omitempty"`
	Bytes     int64      `json:"bytes"`
	Chunks    int        `json:"chunks"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Recording is what a successful stop emits.
type Recording struct {
	AudioURL string
	DataURI  audio.DataURI
}

// ManagerConfig wires the session manager.
type ManagerConfig struct {
	Artifacts audio.ArtifactStore
	MaxBytes  int64
	Clock     func() time.Time
	Logger    *zap.Logger
}

type session struct {
	state     State
	mimeType  string
	params    []string
	buffer    bytes.Buffer
	chunks    int
	startedAt time.Time
}

func (s *session) info() SessionInfo {
	startedAt := s.startedAt
	return SessionInfo{
		State:     s.state,
		MIMEType:  s.mimeType,
		Bytes:     int64(s.buffer.Len()),
		Chunks:    s.chunks,
		StartedAt: &startedAt,
	}
}

// Manager holds at most one recording session per user.
type Manager struct {
	artifacts audio.ArtifactStore
	maxBytes  int64
	clock     func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[notes.UserID]*session
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Artifacts == nil {
		return nil, errMissingArtifacts
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		artifacts: cfg.Artifacts,
		maxBytes:  maxBytes,
		clock:     clock,
		logger:    logger,
		sessions:  make(map[notes.UserID]*session),
	}, nil
}

// State reports the user's session; users without one are idle.
func (m *Manager) State(userID notes.UserID) SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[userID]
	if !ok {
		return SessionInfo{State: StateIdle}
	}
	return current.info()
}

// Start opens a recording session. Starting while a session is active is a no-op.
func (m *Manager) Start(userID notes.UserID, mimeType string) (SessionInfo, error) {
	normalized, params, err := audio.ParseMIMEType(mimeType)
	if err != nil {
		return SessionInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[userID]; ok {
		return current.info(), nil
	}
	next, _ := StateIdle.Next(ActionStart)
	created := &session{state: next, mimeType: normalized, params: params, startedAt: m.clock().UTC()}
	m.sessions[userID] = created
	m.logger.Debug("capture session started",
		zap.String("user_id", userID.String()),
		zap.String("mime_type", normalized))
	return created.info(), nil
}

// Append adds recorded bytes. Only a recording session accepts data.
func (m *Manager) Append(userID notes.UserID, chunk []byte) (SessionInfo, error) {
	if len(chunk) == 0 {
		return SessionInfo{}, ErrEmptyChunk
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[userID]
	if !ok || current.state != StateRecording {
		return m.infoLocked(userID), ErrNotRecording
	}
	if int64(current.buffer.Len())+int64(len(chunk)) > m.maxBytes {
		return current.info(), ErrRecordingTooLarge
	}
	current.buffer.Write(chunk)
	current.chunks++
	return current.info(), nil
}

// Pause suspends a recording session.
func (m *Manager) Pause(userID notes.UserID) (SessionInfo, error) {
	return m.transition(userID, ActionPause)
}

// Resume continues a paused session.
func (m *Manager) Resume(userID notes.UserID) (SessionInfo, error) {
	return m.transition(userID, ActionResume)
}

// Cancel discards the session and its data. Cancelling with no session succeeds.
func (m *Manager) Cancel(userID notes.UserID) SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[userID]; ok {
		delete(m.sessions, userID)
		m.logger.Debug("capture session cancelled",
			zap.String("user_id", userID.String()),
			zap.Int64("discarded_bytes", int64(current.buffer.Len())))
	}
	return SessionInfo{State: StateIdle}
}

// Stop ends the session, saves the audio artifact and emits the recording.
// A session without data ends with ErrNoAudio. When saving fails the session
// is kept paused so the stop can be retried.
func (m *Manager) Stop(ctx context.Context, userID notes.UserID) (Recording, error) {
	m.mu.Lock()
	current, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return Recording{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ActionStop, StateIdle)
	}
	next, allowed := current.state.Next(ActionStop)
	if !allowed {
		m.mu.Unlock()
		return Recording{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ActionStop, current.state)
	}
	delete(m.sessions, userID)
	m.mu.Unlock()

	if current.buffer.Len() == 0 {
		return Recording{}, ErrNoAudio
	}

	payload := audio.DataURI{MIMEType: current.mimeType, Params: current.params, Data: current.buffer.Bytes()}
	locator, err := m.artifacts.Save(ctx, userID.String(), payload)
	if err != nil {
		m.logger.Error("capture artifact save failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		m.restore(userID, current)
		return Recording{}, fmt.Errorf("capture: save recording: %w", err)
	}

	m.logger.Debug("capture session stopped",
		zap.String("user_id", userID.String()),
		zap.String("state", next.String()),
		zap.Int64("bytes", int64(len(payload.Data))))
	return Recording{AudioURL: locator, DataURI: payload}, nil
}

func (m *Manager) transition(userID notes.UserID, action Action) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[userID]
	state := StateIdle
	if ok {
		state = current.state
	}
	next, allowed := state.Next(action)
	if !allowed {
		return m.infoLocked(userID), fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, state)
	}
	current.state = next
	return current.info(), nil
}

func (m *Manager) restore(userID notes.UserID, previous *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.sessions[userID]; taken {
		return
	}
	previous.state = StatePaused
	m.sessions[userID] = previous
}

func (m *Manager) infoLocked(userID notes.UserID) SessionInfo {
	if current, ok := m.sessions[userID]; ok {
		return current.info()
	}
	return SessionInfo{State: StateIdle}
}
