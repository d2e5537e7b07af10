package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/domusnext/eval/internal/domain"
)

// CreateVersion creates a version, applying defaults for omitted fields.
func (s *Service) CreateVersion(ctx context.Context, in domain.VersionInput) (string, error) {
	now := s.now()
	version := &domain.Version{
		ID:           uuid.New().String(),
		Label:        domain.DefaultVersionLabel,
		Notes:        blankToNil(in.Notes),
		AgentBaseURL: blankToNil(in.AgentBaseURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Label != nil {
		version.Label = *in.Label
	}
	if err := s.store.CreateVersion(ctx, version); err != nil {
		return "", fmt.Errorf("failed to create version: %w", err)
	}
	return version.ID, nil
}

// UpdateVersion applies a partial update.
func (s *Service) UpdateVersion(ctx context.Context, versionID string, patch domain.VersionPatch) error {
	if versionID == "" {
		return domain.ValidationError("Missing versionId")
	}
	patch.Notes = clearBlank(patch.Notes)
	patch.AgentBaseURL = clearBlank(patch.AgentBaseURL)
	if err := s.store.UpdateVersion(ctx, versionID, patch, s.now()); err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	return nil
}

// DeleteVersion deletes a version and, through the store, its results.
func (s *Service) DeleteVersion(ctx context.Context, versionID string) error {
	if versionID == "" {
		return domain.ValidationError("Missing versionId")
	}
	if err := s.store.DeleteVersion(ctx, versionID); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return nil
}

// DuplicateVersion copies the version-level metadata of versionID.
// Contexts and cases are shared by all versions and are not copied.
func (s *Service) DuplicateVersion(ctx context.Context, versionID string) (string, error) {
	if versionID == "" {
		return "", domain.ValidationError("Missing versionId")
	}
	source, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return "", fmt.Errorf("failed to load version: %w", err)
	}
	if source == nil {
		return "", domain.NotFoundError("Version")
	}
	label := source.Label + " (copy)"
	return s.CreateVersion(ctx, domain.VersionInput{
		Label:        &label,
		Notes:        source.Notes,
		AgentBaseURL: source.AgentBaseURL,
	})
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// clearBlank turns an explicit empty string on a nullable column into a clear.
func clearBlank(f domain.Field[string]) domain.Field[string] {
	if f.HasValue() && f.Value == "" {
		return domain.Cleared[string]()
	}
	return f
}
