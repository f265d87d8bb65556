package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	NoteID    string `json:"noteId,omitempty"`
	Operation string `json:"operation,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (h *httpHandler) handleNotesStream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				NoteID:    message.NoteID.String(),
				Operation: string(message.Operation),
				Timestamp: message.Timestamp.Format(time.RFC3339Nano),
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
			})
			return true
		}
	})
}

// handleAudioFile serves locally stored artifacts to their owner only.
func (h *httpHandler) handleAudioFile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	owner := c.Param("owner")
	fileName := c.Param("file")
	if owner != userID.String() {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if fileName == "" || strings.HasPrefix(fileName, ".") || strings.ContainsAny(fileName, `/\`) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.File(filepath.Join(h.localAudio.Dir, owner, fileName))
}
