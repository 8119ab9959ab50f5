package domain

import "time"

// Message is one chat entry in a session's log. PK: user_id, SK: message_id.
type Message struct {
	ID        string    `json:"id" dynamodbav:"message_id"`
	UserID    string    `json:"-" dynamodbav:"user_id"`
	Sender    string    `json:"sender" dynamodbav:"sender"`
	Content   string    `json:"content" dynamodbav:"content"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
	IsBot     bool      `json:"is_bot" dynamodbav:"is_bot"`
}

type AppendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type StartChatRequest struct {
	ContactName string `json:"contact_name"`
}
