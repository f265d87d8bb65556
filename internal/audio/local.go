package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	localDirPermissions  = 0o755
	localFilePermissions = 0o644
)

var errMissingLocalDir = errors.New("audio: local directory is required")

// LocalStoreConfig wires the filesystem artifact store.
type LocalStoreConfig struct {
	Dir           string
	PublicBaseURL string
	Logger        *zap.Logger
}

// LocalStore writes artifacts to <dir>/<owner>/<id><ext>.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewLocalStore constructs a LocalStore rooted at cfg.Dir.
func NewLocalStore(cfg LocalStoreConfig) (*LocalStore, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errMissingLocalDir
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		baseURL = "/audio"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{dir: dir, baseURL: baseURL, logger: logger}, nil
}

// Dir returns the root directory served as BaseURL.
func (s *LocalStore) Dir() string {
	return s.dir
}

// BaseURL returns the public prefix of issued locators.
func (s *LocalStore) BaseURL() string {
	return s.baseURL
}

// Save writes the payload and returns its public locator.
func (s *LocalStore) Save(ctx context.Context, ownerID string, payload DataURI) (string, error) {
	owner, err := validateOwner(ownerID)
	if err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("audio: generate artifact id: %w", err)
	}
	fileName := id.String() + payload.Extension()
	ownerDir := filepath.Join(s.dir, owner)
	if err := os.MkdirAll(ownerDir, localDirPermissions); err != nil {
		s.logger.Error("audio artifact write failed", zap.String("owner_id", owner), zap.Error(err))
		return "", fmt.Errorf("audio: create owner dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ownerDir, fileName), payload.Data, localFilePermissions); err != nil {
		s.logger.Error("audio artifact write failed", zap.String("owner_id", owner), zap.Error(err))
		return "", fmt.Errorf("audio: write artifact: %w", err)
	}
	return path.Join(s.baseURL, owner, fileName), nil
}

// Delete removes an artifact previously returned by Save. Missing files succeed.
func (s *LocalStore) Delete(ctx context.Context, ownerID string, locator string) error {
	owner, err := validateOwner(ownerID)
	if err != nil {
		return err
	}
	prefix := s.baseURL + "/" + owner + "/"
	if !strings.HasPrefix(locator, prefix) {
		return ErrForeignArtifact
	}
	fileName := strings.TrimPrefix(locator, prefix)
	if fileName == "" || strings.ContainsAny(fileName, `/\`) || strings.HasPrefix(fileName, ".") {
		return ErrForeignArtifact
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, owner, fileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("audio: remove artifact: %w", err)
	}
	return nil
}
