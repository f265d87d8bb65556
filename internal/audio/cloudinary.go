package audio

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cloudinary files audio under the video resource type.
const cloudinaryResourceType = "video"

var (
	errMissingCloudinaryURL = errors.New("audio: cloudinary url is required")
	errMissingUploader      = errors.New("audio: cloudinary uploader is required")
)

// CloudinaryUploader is the subset of the Cloudinary upload API the store uses.
type CloudinaryUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// CloudinaryStoreConfig wires the hosted artifact store.
type CloudinaryStoreConfig struct {
	Uploader CloudinaryUploader
	Folder   string
	Logger   *zap.Logger
}

// CloudinaryStore uploads artifacts to <folder>/<owner>/<id>.
type CloudinaryStore struct {
	uploader CloudinaryUploader
	folder   string
	logger   *zap.Logger
}

// NewCloudinaryUploader builds the upload API from a cloudinary:// URL.
func NewCloudinaryUploader(cloudinaryURL string) (CloudinaryUploader, error) {
	if strings.TrimSpace(cloudinaryURL) == "" {
		return nil, errMissingCloudinaryURL
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("audio: init cloudinary: %w", err)
	}
	return &cld.Upload, nil
}

// NewCloudinaryStore constructs a CloudinaryStore.
func NewCloudinaryStore(cfg CloudinaryStoreConfig) (*CloudinaryStore, error) {
	if cfg.Uploader == nil {
		return nil, errMissingUploader
	}
	folder := strings.Trim(strings.TrimSpace(cfg.Folder), "/")
	if folder == "" {
		folder = "voicenotes"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudinaryStore{uploader: cfg.Uploader, folder: folder, logger: logger}, nil
}

// Save uploads the data URI and returns the secure delivery URL.
func (s *CloudinaryStore) Save(ctx context.Context, ownerID string, payload DataURI) (string, error) {
	owner, err := validateOwner(ownerID)
	if err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", ErrEmptyAudio
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("audio: generate artifact id: %w", err)
	}

	uniqueFilename := false
	result, err := s.uploader.Upload(ctx, payload.String(), uploader.UploadParams{
		PublicID:       id.String(),
		Folder:         path.Join(s.folder, owner),
		ResourceType:   cloudinaryResourceType,
		UniqueFilename: &uniqueFilename,
	})
	if err != nil {
		s.logger.Error("audio artifact upload failed", zap.String("owner_id", owner), zap.Error(err))
		return "", fmt.Errorf("audio: upload artifact: %w", err)
	}
	if result == nil || result.SecureURL == "" {
		errMessage := "empty upload result"
		if result != nil && result.Error.Message != "" {
			errMessage = result.Error.Message
		}
		s.logger.Error("audio artifact upload rejected", zap.String("owner_id", owner), zap.String("reason", errMessage))
		return "", fmt.Errorf("audio: upload artifact: %s", errMessage)
	}
	return result.SecureURL, nil
}

// Delete destroys an artifact previously returned by Save.
func (s *CloudinaryStore) Delete(ctx context.Context, ownerID string, locator string) error {
	owner, err := validateOwner(ownerID)
	if err != nil {
		return err
	}
	publicID, ok := publicIDFromURL(locator)
	if !ok || !strings.HasPrefix(publicID, path.Join(s.folder, owner)+"/") {
		return ErrForeignArtifact
	}
	if _, err := s.uploader.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: cloudinaryResourceType,
	}); err != nil {
		s.logger.Error("audio artifact destroy failed", zap.String("owner_id", owner), zap.Error(err))
		return fmt.Errorf("audio: destroy artifact: %w", err)
	}
	return nil
}

// publicIDFromURL extracts folder/.../id from .../upload/[v<version>/]<public id>.<ext>.
func publicIDFromURL(locator string) (string, bool) {
	_, rest, found := strings.Cut(locator, "/upload/")
	if !found || rest == "" {
		return "", false
	}
	if first, remainder, hasSlash := strings.Cut(rest, "/"); hasSlash && isVersionSegment(first) {
		rest = remainder
	}
	rest = strings.TrimSuffix(rest, path.Ext(rest))
	if rest == "" {
		return "", false
	}
	return rest, true
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || segment[0] != 'v' {
		return false
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
