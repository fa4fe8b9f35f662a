package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wedding-site/internal/models"
)

func withPostRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Guest").
		Preload("Reactions").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments.Guest")
}

// ListPosts returns up to limit posts older than before (all posts when
// before is nil), newest first, with author, reactions and comments.
func (s *Store) ListPosts(ctx context.Context, before *time.Time, limit int) ([]models.Post, error) {
	q := withPostRelations(s.db.WithContext(ctx)).Order("created_at DESC").Limit(limit)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}

	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// InsertPost stores p without touching its associations.
func (s *Store) InsertPost(ctx context.Context, p *models.Post) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// InsertComment stores c and reloads it with its author.
func (s *Store) InsertComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = newID()
	}
	db := s.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	var stored models.Comment
	if err := db.Preload("Guest").Where("id = ?", c.ID).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to reload comment: %w", err)
	}
	*c = stored
	return nil
}

// UpsertReaction sets the caller's reaction on a post in one statement,
// keyed on (post_id, guest_id). r is refreshed from the stored row.
func (s *Store) UpsertReaction(ctx context.Context, r *models.Reaction) error {
	if r.ID == "" {
		r.ID = newID()
	}
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "guest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reaction_type"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}

	var stored models.Reaction
	if err := db.Where("post_id = ? AND guest_id = ?", r.PostID, r.GuestID).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to reload reaction: %w", err)
	}
	*r = stored
	return nil
}

// DeleteReaction removes a post reaction by id.
func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Reaction{}).Error; err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	return nil
}

// ListActiveStories returns up to limit stories that have not expired at
// now, newest first.
func (s *Store) ListActiveStories(ctx context.Context, now time.Time, limit int) ([]models.Story, error) {
	var stories []models.Story
	err := s.db.WithContext(ctx).
		Preload("Guest").
		Preload("Reactions").
		Where("expires_at > ?", now.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// InsertStory stores st without touching its associations.
func (s *Store) InsertStory(ctx context.Context, st *models.Story) error {
	if st.ID == "" {
		st.ID = newID()
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(st).Error; err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	return nil
}

// UpsertStoryReaction is UpsertReaction for stories.
func (s *Store) UpsertStoryReaction(ctx context.Context, r *models.StoryReaction) error {
	if r.ID == "" {
		r.ID = newID()
	}
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_id"}, {Name: "guest_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reaction_type"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("failed to upsert story reaction: %w", err)
	}

	var stored models.StoryReaction
	if err := db.Where("story_id = ? AND guest_id = ?", r.StoryID, r.GuestID).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to reload story reaction: %w", err)
	}
	*r = stored
	return nil
}

// DeleteStoryReaction removes a story reaction by id.
func (s *Store) DeleteStoryReaction(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StoryReaction{}).Error; err != nil {
		return fmt.Errorf("failed to delete story reaction: %w", err)
	}
	return nil
}

// InsertStoryView records a view once. A repeated view is a no-op.
func (s *Store) InsertStoryView(ctx context.Context, v *models.StoryView) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(v).Error
	if err != nil {
		return fmt.Errorf("failed to insert story view: %w", err)
	}
	return nil
}
