package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/pipeline"
)

type createNoteRequestPayload struct {
	AudioDataURI string `json:"audio_data_uri"`
	AudioURL     string `json:"audio_url"`
}

type notePayload struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
	AudioURL      string    `json:"audioUrl"`
	Transcription string    `json:"transcription"`
	Summary       string    `json:"summary"`
	Topic         string    `json:"topic"`
	Confidence    float64   `json:"confidence"`
	NextSteps     []string  `json:"nextSteps"`
	References    []string  `json:"references"`
}

type listNotesResponsePayload struct {
	Notes  []notePayload `json:"notes"`
	Topics []string      `json:"topics"`
	Total  int           `json:"total"`
}

type codedError interface {
	Code() string
}

func toNotePayload(note notes.Note) notePayload {
	nextSteps := note.NextSteps
	if nextSteps == nil {
		nextSteps = []string{}
	}
	references := note.References
	if references == nil {
		references = []string{}
	}
	return notePayload{
		ID:            note.ID.String(),
		UserID:        note.UserID.String(),
		CreatedAt:     note.CreatedAt,
		AudioURL:      note.AudioURL,
		Transcription: note.Transcription,
		Summary:       note.Summary,
		Topic:         note.Topic.String(),
		Confidence:    note.Confidence,
		NextSteps:     nextSteps,
		References:    references,
	}
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, encodedLimit(h.maxAudioBytes)+createNoteEnvelopeBytes)
	var request createNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.AudioDataURI) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if int64(len(request.AudioDataURI)) > encodedLimit(h.maxAudioBytes) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio_too_large"})
		return
	}

	audioURL := strings.TrimSpace(request.AudioURL)
	storedArtifact := ""
	processed, err := h.processor.ProcessVoiceNote(c.Request.Context(), request.AudioDataURI)
	if err != nil {
		h.respondProcessingFailure(c, userID, err)
		return
	}

	if audioURL == "" && h.artifacts != nil {
		payload, parseErr := audio.ParseDataURI(request.AudioDataURI)
		if parseErr == nil {
			audioURL, parseErr = h.artifacts.Save(c.Request.Context(), userID.String(), payload)
		}
		if parseErr != nil {
			audioURL = ""
			h.logger.Warn("audio artifact not stored",
				zap.String("user_id", userID.String()),
				zap.Error(parseErr))
		}
		storedArtifact = audioURL
	}

	h.submitNote(c, userID, processed, audioURL, storedArtifact)
}

// submitNote queues the note. storedArtifact names audio this request saved;
// it is removed again when the note cannot be queued.
func (h *httpHandler) submitNote(c *gin.Context, userID notes.UserID, processed notes.ProcessedNote, audioURL string, storedArtifact string) {
	note, err := h.writer.SubmitCreate(userID, processed, audioURL)
	if err != nil {
		h.discardArtifact(c, userID, storedArtifact)
		h.respondWriteFailure(c, "note submission failed", userID, "", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"note": toNotePayload(note)})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	filter, err := notes.NewFilter(c.Query("topic"), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_topic"})
		return
	}

	all, err := h.reader.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notes", zap.String("user_id", userID.String()), zap.Error(err))
		respondServiceError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}

	matched := filter.Apply(all)
	response := listNotesResponsePayload{
		Notes:  make([]notePayload, 0, len(matched)),
		Topics: make([]string, 0, len(notes.Topics)),
		Total:  len(all),
	}
	for _, note := range matched {
		response.Notes = append(response.Notes, toNotePayload(note))
	}
	for _, topic := range notes.PresentTopics(all) {
		response.Topics = append(response.Topics, topic.String())
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	note, err := h.reader.Get(c.Request.Context(), userID, noteID)
	if errors.Is(err, notes.ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load note",
			zap.String("user_id", userID.String()),
			zap.String("note_id", noteID.String()),
			zap.Error(err))
		respondServiceError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": toNotePayload(note)})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	if err := h.writer.SubmitDelete(userID, noteID); err != nil {
		h.respondWriteFailure(c, "note deletion failed", userID, noteID, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": noteID.String()})
}

func (h *httpHandler) respondProcessingFailure(c *gin.Context, userID notes.UserID, err error) {
	var processingErr *pipeline.ProcessingError
	stage := ""
	if errors.As(err, &processingErr) {
		stage = string(processingErr.Stage())
	}
	h.logger.Warn("voice note rejected",
		zap.String("user_id", userID.String()),
		zap.String("stage", stage))
	c.JSON(http.StatusBadGateway, gin.H{
		"error":   "processing_failed",
		"message": pipeline.ProcessingFailedMessage,
	})
}

func (h *httpHandler) respondWriteFailure(c *gin.Context, message string, userID notes.UserID, noteID notes.NoteID, err error) {
	fields := []zap.Field{zap.String("user_id", userID.String()), zap.Error(err)}
	if noteID != "" {
		fields = append(fields, zap.String("note_id", noteID.String()))
	}
	switch {
	case errors.Is(err, notes.ErrWriterBusy), errors.Is(err, notes.ErrWriterClosed):
		h.logger.Warn(message, fields...)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "writer_unavailable"})
	default:
		h.logger.Error(message, fields...)
		respondServiceError(c, http.StatusInternalServerError, "write_failed", err)
	}
}

func respondServiceError(c *gin.Context, status int, reason string, err error) {
	body := gin.H{"error": reason}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	c.JSON(status, body)
}

// createNoteEnvelopeBytes leaves room for the JSON envelope and audio_url.
const createNoteEnvelopeBytes = 4096

// encodedLimit bounds a base64 data URI carrying at most maxBytes of audio.
func encodedLimit(maxBytes int64) int64 {
	return (maxBytes+2)/3*4 + 256
}
