package models

import "time"

// Guest represents a signed-in wedding guest
type Guest struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// RSVPStatus represents the attendance answer of a response
type RSVPStatus string

const (
	RSVPYes   RSVPStatus = "yes"
	RSVPNo    RSVPStatus = "no"
	RSVPMaybe RSVPStatus = "maybe"
)

// Valid reports whether s is one of the accepted statuses.
func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPYes, RSVPNo, RSVPMaybe:
		return true
	}
	return false
}

// Response is a single RSVP submission
type Response struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	Status     RSVPStatus `gorm:"size:8;not null" json:"status"`
	Message    string     `gorm:"size:320" json:"message"`
	GuestCount int        `gorm:"not null;default:1" json:"guest_count"`
	GuestNames string     `json:"guest_names"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
