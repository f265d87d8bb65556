package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/capture"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/users"
)

const (
	userIDContextKey         = "voicenotes_user_id"
	ownerContextKey          = "voicenotes_owner"
	defaultHeartbeatInterval = 25 * time.Second
	defaultMaxAudioBytes     = 25 << 20
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingOwnerResolver    = errors.New("owner resolver dependency required")
	errMissingProcessor        = errors.New("note processor dependency required")
	errMissingWriter           = errors.New("note writer dependency required")
	errMissingReader           = errors.New("note reader dependency required")
	errMissingCaptures         = errors.New("capture sessions dependency required")
	errMissingRealtime         = errors.New("realtime dispatcher dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type OwnerResolver interface {
	ResolveOwner(ctx context.Context, claims auth.SessionClaims) (users.Owner, error)
}

type NoteProcessor interface {
	ProcessVoiceNote(ctx context.Context, audioDataURI string) (notes.ProcessedNote, error)
}

type NoteWriter interface {
	SubmitCreate(userID notes.UserID, processed notes.ProcessedNote, audioURL string) (notes.Note, error)
	SubmitDelete(userID notes.UserID, noteID notes.NoteID) error
}

type NoteReader interface {
	List(ctx context.Context, userID notes.UserID) ([]notes.Note, error)
	Get(ctx context.Context, userID notes.UserID, noteID notes.NoteID) (notes.Note, error)
}

type CaptureSessions interface {
	State(userID notes.UserID) capture.SessionInfo
	Start(userID notes.UserID, mimeType string) (capture.SessionInfo, error)
	Append(userID notes.UserID, chunk []byte) (capture.SessionInfo, error)
	Pause(userID notes.UserID) (capture.SessionInfo, error)
	Resume(userID notes.UserID) (capture.SessionInfo, error)
	Cancel(userID notes.UserID) capture.SessionInfo
	Stop(ctx context.Context, userID notes.UserID) (capture.Recording, error)
}

// LocalAudio describes filesystem-served artifacts. Leave Dir empty when audio is hosted elsewhere.
type LocalAudio struct {
	Dir     string
	BaseURL string
}

type Dependencies struct {
	SessionValidator  SessionValidator
	Owners            OwnerResolver
	Processor         NoteProcessor
	Writer            NoteWriter
	Reader            NoteReader
	Captures          CaptureSessions
	Artifacts         audio.ArtifactStore
	Realtime          *RealtimeDispatcher
	LocalAudio        LocalAudio
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	MaxAudioBytes     int64
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.SessionValidator == nil:
		return nil, errMissingSessionValidator
	case deps.Owners == nil:
		return nil, errMissingOwnerResolver
	case deps.Processor == nil:
		return nil, errMissingProcessor
	case deps.Writer == nil:
		return nil, errMissingWriter
	case deps.Reader == nil:
		return nil, errMissingReader
	case deps.Captures == nil:
		return nil, errMissingCaptures
	case deps.Realtime == nil:
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	maxAudioBytes := deps.MaxAudioBytes
	if maxAudioBytes <= 0 {
		maxAudioBytes = defaultMaxAudioBytes
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.SessionValidator,
		owners:        deps.Owners,
		processor:     deps.Processor,
		writer:        deps.Writer,
		reader:        deps.Reader,
		captures:      deps.Captures,
		artifacts:     deps.Artifacts,
		realtime:      deps.Realtime,
		localAudio:    deps.LocalAudio,
		heartbeat:     heartbeat,
		maxAudioBytes: maxAudioBytes,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/session", handler.handleSession)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/stream", handler.handleNotesStream)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	protected.GET("/captures", handler.handleCaptureState)
	protected.POST("/captures", handler.handleCaptureStart)
	protected.POST("/captures/chunks", handler.handleCaptureChunk)
	protected.POST("/captures/pause", handler.handleCapturePause)
	protected.POST("/captures/resume", handler.handleCaptureResume)
	protected.POST("/captures/cancel", handler.handleCaptureCancel)
	protected.POST("/captures/stop", handler.handleCaptureStop)

	if strings.TrimSpace(deps.LocalAudio.Dir) != "" {
		baseURL := strings.TrimRight(deps.LocalAudio.BaseURL, "/")
		if baseURL == "" {
			baseURL = "/audio"
		}
		handler.localAudio.BaseURL = baseURL
		protected.GET(baseURL+"/:owner/:file", handler.handleAudioFile)
	}

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	owners        OwnerResolver
	processor     NoteProcessor
	writer        NoteWriter
	reader        NoteReader
	captures      CaptureSessions
	artifacts     audio.ArtifactStore
	realtime      *RealtimeDispatcher
	localAudio    LocalAudio
	heartbeat     time.Duration
	maxAudioBytes int64
	logger        *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSession(c *gin.Context) {
	owner, ok := c.Get(ownerContextKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, owner)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	owner, err := h.owners.ResolveOwner(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			h.logger.Warn("session identity rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("owner resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_unavailable"})
		return
	}
	userID, err := notes.NewUserID(owner.UserID)
	if err != nil {
		h.logger.Error("owner id rejected", zap.String("user_id", owner.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_unavailable"})
		return
	}

	c.Set(userIDContextKey, userID)
	c.Set(ownerContextKey, owner)
	c.Next()
}

func currentUserID(c *gin.Context) (notes.UserID, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(notes.UserID)
	return userID, ok && userID != ""
}
