package model

import "time"

// ChatMessage is one persisted turn: the user's text and the model's reply.
// Rows are append-only; replay order is (created_at, id).
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_chat_message_user_created,priority:1" json:"user_id"`
	UserText  string    `gorm:"type:text;not null" json:"user_text"`
	BotReply  string    `gorm:"type:text;not null" json:"bot_reply"`
	CreatedAt time.Time `gorm:"index:idx_chat_message_user_created,priority:2" json:"created_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatMessage) TableName() string { return "chat_message" }

// TurnEvent is published after a turn has been persisted.
type TurnEvent struct {
	UserID    uint      `json:"user_id"`
	MessageID uint      `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}
