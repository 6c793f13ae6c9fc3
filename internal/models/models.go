package models

import "time"

// Sender values for a message. Replies written by the generation backend are
// recorded as "assistant".
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Subscription tiers consumed by the rate limiter.
const (
	TierBasic = "basic"
	TierPro   = "pro"
)

type Message struct {
	ID         int64     `json:"id"`
	ChatroomID string    `json:"chatroom_id"`
	Sender     string    `json:"sender"` // user or assistant
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type Chatroom struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
