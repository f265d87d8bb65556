package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const identityLookup = "provider = ? AND subject = ?"

// ServiceConfig describes the dependencies required for owner resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims to note owners.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// ResolveOwner returns the owner for the claims, creating the identity on first sight.
// Owner ids are minted per (provider, subject) and kept stable through the
// identity row, so equal subjects from different providers never share notes.
func (s *Service) ResolveOwner(ctx context.Context, claims auth.SessionClaims) (Owner, error) {
	provider, subject := claims.ProviderSubject()
	if subject == "" {
		return Owner{}, ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if owner, ok := cached.(Owner); ok {
			return owner, nil
		}
	}

	var identity Identity
	err := s.db.WithContext(ctx).Where(identityLookup, provider, subject).First(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity, err = s.createIdentity(ctx, provider, subject, claims)
		if err != nil {
			return Owner{}, err
		}
	case err != nil:
		s.logger.Error("identity lookup failed", zap.String("provider", provider), zap.Error(err))
		return Owner{}, fmt.Errorf("users: lookup identity: %w", err)
	default:
		s.refreshProfile(ctx, &identity, claims)
	}

	owner := identity.owner()
	s.cache.Store(cacheKey, owner)
	return owner, nil
}

// ResolveCanonicalUserID returns only the owner id for the claims.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (notes.UserID, error) {
	owner, err := s.ResolveOwner(ctx, claims)
	if err != nil {
		return "", err
	}
	return notes.NewUserID(owner.UserID)
}

func (s *Service) createIdentity(ctx context.Context, provider, subject string, claims auth.SessionClaims) (Identity, error) {
	generated, err := uuid.NewV7()
	if err != nil {
		return Identity{}, fmt.Errorf("users: generate owner id: %w", err)
	}
	ownerID, err := notes.NewUserID(generated.String())
	if err != nil {
		return Identity{}, fmt.Errorf("users: generate owner id: %w", err)
	}
	identity := Identity{
		Provider:    provider,
		Subject:     subject,
		UserID:      ownerID.String(),
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		AvatarURL:   normalize(claims.UserAvatarURL),
		LastSeenAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
		// A concurrent first login may have inserted the row already.
		var existing Identity
		if lookupErr := s.db.WithContext(ctx).Where(identityLookup, provider, subject).First(&existing).Error; lookupErr == nil {
			return existing, nil
		}
		s.logger.Error("identity create failed", zap.String("provider", provider), zap.Error(err))
		return Identity{}, fmt.Errorf("users: create identity: %w", err)
	}
	s.logger.Info("identity created", zap.String("provider", provider), zap.String("user_id", identity.UserID))
	return identity, nil
}

func (s *Service) refreshProfile(ctx context.Context, identity *Identity, claims auth.SessionClaims) {
	updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
	if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
		updates["user_email"] = email
		identity.Email = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
		updates["user_display_name"] = display
		identity.DisplayName = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != identity.AvatarURL {
		updates["user_avatar_url"] = avatar
		identity.AvatarURL = avatar
	}
	if err := s.db.WithContext(ctx).Model(&Identity{}).
		Where(identityLookup, identity.Provider, identity.Subject).
		Updates(updates).Error; err != nil {
		s.logger.Warn("identity profile refresh failed", zap.String("user_id", identity.UserID), zap.Error(err))
	}
}
