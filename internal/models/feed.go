package models

import "time"

// MediaType is the kind of media attached to a post or story
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ReactionType is one of the emoji reactions a guest may leave
type ReactionType string

const (
	ReactionLove      ReactionType = "love"
	ReactionCelebrate ReactionType = "celebrate"
	ReactionLaugh     ReactionType = "laugh"
	ReactionWow       ReactionType = "wow"
	ReactionPray      ReactionType = "pray"
)

// ReactionTypes lists the reactions in display order.
var ReactionTypes = []ReactionType{ReactionLove, ReactionCelebrate, ReactionLaugh, ReactionWow, ReactionPray}

// Valid reports whether t is a known reaction.
func (t ReactionType) Valid() bool {
	for _, known := range ReactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Post is a photo or video shared on the guest feed
type Post struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	GuestID   string     `gorm:"size:36;index;not null" json:"guest_id"`
	Guest     *Guest     `gorm:"foreignKey:GuestID" json:"guest,omitempty"`
	MediaURL  string     `gorm:"not null" json:"media_url"`
	MediaType MediaType  `gorm:"size:8;not null" json:"media_type"`
	Caption   *string    `json:"caption"`
	Location  *string    `json:"location"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	Comments  []Comment  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments"`
	Reactions []Reaction `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"reactions"`
}

// Comment is appended to a post and never edited
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;index;not null" json:"post_id"`
	GuestID   string    `gorm:"size:36;not null" json:"guest_id"`
	Guest     *Guest    `gorm:"foreignKey:GuestID" json:"guest,omitempty"`
	Content   string    `gorm:"not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction is the single reaction a guest holds on a post
type Reaction struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	PostID       string       `gorm:"size:36;not null;uniqueIndex:idx_reactions_post_guest" json:"post_id"`
	GuestID      string       `gorm:"size:36;not null;uniqueIndex:idx_reactions_post_guest" json:"guest_id"`
	ReactionType ReactionType `gorm:"size:16;not null" json:"reaction_type"`
}

// Story is an ephemeral item, visible until ExpiresAt
type Story struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	GuestID   string          `gorm:"size:36;index;not null" json:"guest_id"`
	Guest     *Guest          `gorm:"foreignKey:GuestID" json:"guest,omitempty"`
	MediaURL  string          `gorm:"not null" json:"media_url"`
	MediaType MediaType       `gorm:"size:8;not null" json:"media_type"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
	ExpiresAt time.Time       `gorm:"index" json:"expires_at"`
	Reactions []StoryReaction `gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE" json:"story_reactions"`
}

// Expired reports whether the story is no longer visible at now.
func (s Story) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// StoryReaction is the single reaction a guest holds on a story
type StoryReaction struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	StoryID      string       `gorm:"size:36;not null;uniqueIndex:idx_story_reactions_story_guest" json:"story_id"`
	GuestID      string       `gorm:"size:36;not null;uniqueIndex:idx_story_reactions_story_guest" json:"guest_id"`
	ReactionType ReactionType `gorm:"size:16;not null" json:"reaction_type"`
}

// StoryView records that a guest opened a story
type StoryView struct {
	StoryID   string    `gorm:"primaryKey;size:36" json:"story_id"`
	GuestID   string    `gorm:"primaryKey;size:36" json:"guest_id"`
	CreatedAt time.Time `json:"created_at"`
}
