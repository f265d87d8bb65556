package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/capture"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

type startCaptureRequestPayload struct {
	MIMEType string `json:"mime_type"`
}

func (h *httpHandler) handleCaptureState(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, h.captures.State(userID))
}

func (h *httpHandler) handleCaptureStart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request startCaptureRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.MIMEType) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	info, err := h.captures.Start(userID, request.MIMEType)
	if err != nil {
		h.respondCaptureError(c, userID, err, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleCaptureChunk(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxAudioBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if int64(len(chunk)) > h.maxAudioBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio_too_large"})
		return
	}
	info, err := h.captures.Append(userID, chunk)
	if err != nil {
		h.respondCaptureError(c, userID, err, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleCapturePause(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	info, err := h.captures.Pause(userID)
	if err != nil {
		h.respondCaptureError(c, userID, err, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleCaptureResume(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	info, err := h.captures.Resume(userID)
	if err != nil {
		h.respondCaptureError(c, userID, err, info)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleCaptureCancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, h.captures.Cancel(userID))
}

// handleCaptureStop ends the session and runs the recording through the
// pipeline. The artifact is removed again when processing fails.
func (h *httpHandler) handleCaptureStop(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	recording, err := h.captures.Stop(c.Request.Context(), userID)
	if err != nil {
		h.respondCaptureError(c, userID, err, h.captures.State(userID))
		return
	}

	processed, err := h.processor.ProcessVoiceNote(c.Request.Context(), recording.DataURI.String())
	if err != nil {
		h.discardArtifact(c, userID, recording.AudioURL)
		h.respondProcessingFailure(c, userID, err)
		return
	}
	h.submitNote(c, userID, processed, recording.AudioURL, recording.AudioURL)
}

func (h *httpHandler) discardArtifact(c *gin.Context, userID notes.UserID, locator string) {
	if h.artifacts == nil || locator == "" {
		return
	}
	if err := h.artifacts.Delete(c.Request.Context(), userID.String(), locator); err != nil && !errors.Is(err, audio.ErrForeignArtifact) {
		h.logger.Warn("audio artifact not removed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func (h *httpHandler) respondCaptureError(c *gin.Context, userID notes.UserID, err error, info capture.SessionInfo) {
	status := http.StatusInternalServerError
	reason := "capture_failed"
	switch {
	case errors.Is(err, capture.ErrInvalidTransition):
		status, reason = http.StatusConflict, "invalid_transition"
	case errors.Is(err, capture.ErrNotRecording):
		status, reason = http.StatusConflict, "not_recording"
	case errors.Is(err, capture.ErrRecordingTooLarge):
		status, reason = http.StatusRequestEntityTooLarge, "audio_too_large"
	case errors.Is(err, capture.ErrEmptyChunk):
		status, reason = http.StatusBadRequest, "empty_chunk"
	case errors.Is(err, capture.ErrNoAudio):
		status, reason = http.StatusUnprocessableEntity, "no_audio"
	case errors.Is(err, audio.ErrInvalidDataURI), errors.Is(err, audio.ErrUnsupportedMIMEType):
		status, reason = http.StatusBadRequest, "invalid_mime_type"
	default:
		h.logger.Error("capture command failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": reason, "session": info})
}
