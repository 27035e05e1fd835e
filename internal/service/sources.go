// Package service implements the source credential lifecycle and the raw
// event sink behind the ingestion boundary.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentrix-systems/sentrix/internal/keys"
	"github.com/sentrix-systems/sentrix/internal/models"
	"github.com/sentrix-systems/sentrix/internal/repository"
)

var (
	// ErrInvalidKey is returned for unknown keys and for secondary keys
	// outside the grace window. The caller cannot tell which hash failed.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrSourceDisabled is returned when the key is valid but the source has
	// been soft-disabled.
	ErrSourceDisabled = errors.New("event source disabled")
	// ErrRotationConflict is returned when a concurrent rotation won the
	// optimistic version check.
	ErrRotationConflict = errors.New("rotation conflict, retry")
	// ErrNoRotation is returned by ExpireRotation when no grace window is
	// active.
	ErrNoRotation = errors.New("no active rotation")
)

// SourceService manages event source registration, authentication and key
// rotation.
type SourceService struct {
	repo repository.Repository
	// now is injectable for grace-window tests.
	now func() time.Time
}

// NewSourceService creates a SourceService backed by repo.
func NewSourceService(repo repository.Repository) *SourceService {
	return &SourceService{
		repo: repo,
		now:  time.Now,
	}
}

// RegisterResult carries the plaintext key issued at registration. The key
// is shown exactly once and never stored.
type RegisterResult struct {
	Source *models.EventSource
	APIKey string
}

// Register creates a new event source and issues its primary key.
func (s *SourceService) Register(ctx context.Context, req *models.RegisterSourceRequest) (*RegisterResult, error) {
	if req.UserID == "" || req.Name == "" {
		return nil, fmt.Errorf("user_id and name are required")
	}

	key, err := keys.Generate()
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate source id: %w", err)
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "generic"
	}

	src := &models.EventSource{
		ID:             id.String(),
		UserID:         req.UserID,
		Name:           req.Name,
		SourceType:     sourceType,
		PrimaryKeyHash: keys.Hash(key),
		VersionID:      id.String(),
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repo.CreateSource(ctx, src); err != nil {
		return nil, err
	}

	return &RegisterResult{Source: src, APIKey: key}, nil
}

// Authenticate validates a presented API key and returns the matching
// source. The primary hash is checked first; the secondary hash only counts
// while the rotation grace window is open. A successful secondary match has
// no side effects: only an explicit rotation replaces the primary.
func (s *SourceService) Authenticate(ctx context.Context, presentedKey string) (*models.EventSource, error) {
	if presentedKey == "" {
		return nil, ErrInvalidKey
	}

	hash := keys.Hash(presentedKey)
	src, err := s.repo.GetSourceByKeyHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSourceNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	if keys.Equal(hash, src.PrimaryKeyHash) {
		if src.Disabled {
			return nil, ErrSourceDisabled
		}
		return src, nil
	}

	if src.SecondaryKeyHash != nil && s.now().Before(derefTime(src.RotationExpiresAt)) &&
		keys.Equal(hash, *src.SecondaryKeyHash) {
		if src.Disabled {
			return nil, ErrSourceDisabled
		}
		return src, nil
	}

	return nil, ErrInvalidKey
}

// RotateResult carries the new plaintext key, shown exactly once.
type RotateResult struct {
	APIKey    string
	ExpiresAt time.Time
}

// Rotate issues a new primary key and moves the previous primary hash into
// the secondary slot for the given grace period, during which both keys
// authenticate. A concurrent rotation on the same source loses with
// ErrRotationConflict rather than silently overwriting.
func (s *SourceService) Rotate(ctx context.Context, sourceID string, grace time.Duration) (*RotateResult, error) {
	if grace <= 0 {
		return nil, fmt.Errorf("grace period must be positive")
	}

	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	newKey, err := keys.Generate()
	if err != nil {
		return nil, err
	}

	version, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate version id: %w", err)
	}

	expiresAt := s.now().Add(grace).UTC()
	oldPrimary := src.PrimaryKeyHash

	expectedVersion := src.VersionID
	src.PrimaryKeyHash = keys.Hash(newKey)
	src.SecondaryKeyHash = &oldPrimary
	src.RotationExpiresAt = &expiresAt
	src.VersionID = version.String()

	if err := s.repo.UpdateSourceKeys(ctx, src, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrRotationConflict
		}
		return nil, err
	}

	return &RotateResult{APIKey: newKey, ExpiresAt: expiresAt}, nil
}

// ExpireRotation closes an active grace window immediately, so only the
// current primary key authenticates.
func (s *SourceService) ExpireRotation(ctx context.Context, sourceID string) error {
	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if src.SecondaryKeyHash == nil {
		return ErrNoRotation
	}

	version, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate version id: %w", err)
	}

	expectedVersion := src.VersionID
	src.SecondaryKeyHash = nil
	src.RotationExpiresAt = nil
	src.VersionID = version.String()

	if err := s.repo.UpdateSourceKeys(ctx, src, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrRotationConflict
		}
		return err
	}
	return nil
}

// Disable soft-disables a source. Historical events keep referencing it.
func (s *SourceService) Disable(ctx context.Context, sourceID string) error {
	return s.repo.SetSourceDisabled(ctx, sourceID, true)
}

// Enable re-enables a soft-disabled source.
func (s *SourceService) Enable(ctx context.Context, sourceID string) error {
	return s.repo.SetSourceDisabled(ctx, sourceID, false)
}

// List returns the sources owned by a user, newest first.
func (s *SourceService) List(ctx context.Context, userID string) ([]*models.EventSource, error) {
	return s.repo.ListSources(ctx, userID)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
