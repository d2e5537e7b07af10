package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/domusnext/eval/internal/domain"
	store "github.com/domusnext/eval/internal/repository"
)

// CreateCase creates a case under an existing context.
func (s *Service) CreateCase(ctx context.Context, in domain.CaseInput) (string, error) {
	if strings.TrimSpace(in.ContextID) == "" {
		return "", domain.ValidationError("Missing contextId")
	}

	userMessage, err := userMessageColumn(in.UserMessage)
	if err != nil {
		return "", err
	}
	var assistantMessage *string
	if len(in.AssistantMessage) > 0 && string(in.AssistantMessage) != "null" {
		text, err := assistantMessageColumn(in.AssistantMessage)
		if err != nil {
			return "", err
		}
		assistantMessage = &text
	}
	metadata, err := objectColumn("metadata", in.Metadata)
	if err != nil {
		return "", err
	}

	now := s.now()
	record := &store.CaseRecord{
		ID:                   uuid.New().String(),
		ContextID:            in.ContextID,
		Title:                domain.DefaultCaseTitle,
		Description:          blankToNil(in.Description),
		UserMessageJSON:      userMessage,
		AssistantMessageJSON: assistantMessage,
		MetadataJSON:         metadata,
		OrderIndex:           now.UnixMilli(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if in.Title != nil {
		record.Title = *in.Title
	}
	if err := s.store.CreateCase(ctx, record); err != nil {
		return "", fmt.Errorf("failed to create case: %w", err)
	}
	return record.ID, nil
}

// UpdateCase applies a partial update. A null assistantMessage removes it;
// a null userMessage is ignored because every case must keep one.
func (s *Service) UpdateCase(ctx context.Context, caseID string, patch domain.CasePatch) error {
	if caseID == "" {
		return domain.ValidationError("Missing caseId")
	}

	update := store.CaseUpdate{
		Title:       patch.Title,
		Description: clearBlank(patch.Description),
	}
	if patch.UserMessage.HasValue() {
		text, err := userMessageColumn(patch.UserMessage.Value)
		if err != nil {
			return err
		}
		update.UserMessageJSON = domain.Present(text)
	}
	switch {
	case patch.AssistantMessage.Null:
		update.AssistantMessageJSON = domain.Cleared[string]()
	case patch.AssistantMessage.Set:
		text, err := assistantMessageColumn(patch.AssistantMessage.Value)
		if err != nil {
			return err
		}
		update.AssistantMessageJSON = domain.Present(text)
	}
	if patch.Metadata.Set {
		text, err := objectColumn("metadata", patch.Metadata.Value)
		if err != nil {
			return err
		}
		update.MetadataJSON = domain.Present(text)
	}

	if err := s.store.UpdateCase(ctx, caseID, update, s.now()); err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	return nil
}

// DeleteCase deletes a case and its results.
func (s *Service) DeleteCase(ctx context.Context, caseID string) error {
	if caseID == "" {
		return domain.ValidationError("Missing caseId")
	}
	if err := s.store.DeleteCase(ctx, caseID); err != nil {
		return fmt.Errorf("failed to delete case: %w", err)
	}
	return nil
}
