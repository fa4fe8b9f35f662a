package database

import (
	"context"
	"fmt"

	"wedding-site/internal/models"
)

// ListResponses returns every RSVP, newest first.
func (s *Store) ListResponses(ctx context.Context) ([]models.Response, error) {
	responses := make([]models.Response, 0)
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	if responses == nil {
		responses = []models.Response{}
	}
	return responses, nil
}

// InsertResponse stores r and fills its generated id.
func (s *Store) InsertResponse(ctx context.Context, r *models.Response) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}
