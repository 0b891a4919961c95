package model

import "time"

// Session is the server-side state behind a signed session token.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Role      string    `gorm:"size:64;not null" json:"role"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Session) TableName() string { return "auth_session" }

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
