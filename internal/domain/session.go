package domain

import "time"

// Session is the authenticated identity all message and account operations are scoped to.
type Session struct {
	UserID      string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Deactivated bool   `json:"is_deactivated"`
}

// Credential is the outcome of a successful code exchange.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Session   *Session  `json:"session"`
}

// Account is the persisted session record. PK: user_id.
type Account struct {
	UserID      string    `json:"id" dynamodbav:"user_id"`
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	Deactivated bool      `json:"is_deactivated" dynamodbav:"is_deactivated"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Identity is the credential owned by the identity provider. PK: user_id, GSI: phone_number.
type Identity struct {
	UserID      string    `dynamodbav:"user_id"`
	PhoneNumber string    `dynamodbav:"phone_number"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}
