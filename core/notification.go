package core

import "time"

// Parse modes understood by Telegram's sendMessage.
const (
	ParseModeNone     = ""
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Notification represents an outbound message to be delivered to a chat.
type Notification struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	ParseMode string    `json:"parse_mode,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
