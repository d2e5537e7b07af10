package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/domusnext/eval/internal/domain"
	store "github.com/domusnext/eval/internal/repository"
)

// CreateContext creates a context. Its order index is the creation time in
// milliseconds, so contexts list in insertion order.
func (s *Service) CreateContext(ctx context.Context, in domain.ContextInput) (string, error) {
	params, err := objectColumn("params", in.Params)
	if err != nil {
		return "", err
	}
	headers, err := headersColumn(in.Headers)
	if err != nil {
		return "", err
	}

	now := s.now()
	record := &store.ContextRecord{
		ID:          uuid.New().String(),
		Name:        domain.DefaultContextName,
		Description: blankToNil(in.Description),
		ParamsJSON:  params,
		HeadersJSON: headers,
		OrderIndex:  now.UnixMilli(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Name != nil {
		record.Name = *in.Name
	}
	if err := s.store.CreateContext(ctx, record); err != nil {
		return "", fmt.Errorf("failed to create context: %w", err)
	}
	return record.ID, nil
}

// UpdateContext applies a partial update. An explicit null on params or
// headers resets them to an empty object.
func (s *Service) UpdateContext(ctx context.Context, contextID string, patch domain.ContextPatch) error {
	if contextID == "" {
		return domain.ValidationError("Missing contextId")
	}

	update := store.ContextUpdate{
		Name:        patch.Name,
		Description: clearBlank(patch.Description),
	}
	if patch.Params.Set {
		params, err := objectColumn("params", patch.Params.Value)
		if err != nil {
			return err
		}
		update.ParamsJSON = domain.Present(params)
	}
	if patch.Headers.Set {
		headers, err := headersColumn(patch.Headers.Value)
		if err != nil {
			return err
		}
		update.HeadersJSON = domain.Present(headers)
	}

	if err := s.store.UpdateContext(ctx, contextID, update, s.now()); err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}
	return nil
}

// DeleteContext deletes a context together with its cases and their results.
func (s *Service) DeleteContext(ctx context.Context, contextID string) error {
	if contextID == "" {
		return domain.ValidationError("Missing contextId")
	}
	if err := s.store.DeleteContext(ctx, contextID); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}
