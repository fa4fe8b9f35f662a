package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wedding-site/internal/models"
)

// FindGuestByEmail returns the guest with the given email, or nil.
func (s *Store) FindGuestByEmail(ctx context.Context, email string) (*models.Guest, error) {
	var g models.Guest
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guest: %w", err)
	}
	return &g, nil
}

// SaveGuest inserts g, or updates the name and avatar of the guest holding
// the same email. g is refreshed from the stored row.
func (s *Store) SaveGuest(ctx context.Context, g *models.Guest) error {
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	if g.ID == "" {
		g.ID = newID()
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar_url"}),
	}).Create(g).Error
	if err != nil {
		return fmt.Errorf("failed to save guest: %w", err)
	}

	var stored models.Guest
	if err := db.Where("email = ?", g.Email).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to reload guest: %w", err)
	}
	*g = stored
	return nil
}
