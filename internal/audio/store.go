package audio

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidOwner indicates an owner id that cannot be used as a path segment.
	ErrInvalidOwner = errors.New("audio: invalid owner id")
	// ErrForeignArtifact indicates a locator not issued by this store for the owner.
	ErrForeignArtifact = errors.New("audio: artifact not owned by this store")
)

// ArtifactStore persists playable audio artifacts and returns their locator.
type ArtifactStore interface {
	Save(ctx context.Context, ownerID string, payload DataURI) (string, error)
	Delete(ctx context.Context, ownerID string, locator string) error
}

func validateOwner(ownerID string) (string, error) {
	trimmed := strings.TrimSpace(ownerID)
	if trimmed == "" || strings.ContainsAny(trimmed, `/\`) || trimmed == "." || trimmed == ".." {
		return "", ErrInvalidOwner
	}
	return trimmed, nil
}
