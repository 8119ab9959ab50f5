// Package chat loads and appends to a session's message log.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/wave-api/internal/domain"
	"github.com/wave-api/internal/pkg/id"
)

const (
	WelcomeSender  = "Greetings"
	WelcomeText    = "👋 Welcome to Wave! Let us know if you need anything."
	DefaultSender  = "You"
	UnknownContact = "Unknown"

	greetingFormat = "Hi %s, let’s chat on Wave!"
)

type messageStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Message, error)
	Put(ctx context.Context, userID string, m *domain.Message) error
}

type Service interface {
	LoadHistory(ctx context.Context, userID string) ([]domain.Message, error)
	AppendMessage(ctx context.Context, userID, text, sender string, isBot bool) (*domain.Message, error)
	StartChatGreeting(ctx context.Context, userID, contactName string) (*domain.Message, error)
}

type service struct {
	messages messageStore
	now      func() time.Time
}

func NewService(messages messageStore) Service {
	return &service{messages: messages, now: time.Now}
}

// LoadHistory returns the log oldest first. An empty log is seeded with a
// welcome message, which is persisted before it is returned. Two concurrent
// loads of an empty log may both seed it.
func (s *service) LoadHistory(ctx context.Context, userID string) ([]domain.Message, error) {
	msgs, err := s.messages.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
		return msgs, nil
	}

	welcome := s.compose(WelcomeSender, WelcomeText, true)
	if err := s.messages.Put(ctx, userID, welcome); err != nil {
		return nil, fmt.Errorf("seed welcome message: %w", err)
	}
	slog.Info("seeded welcome message", "user_id", userID)
	return []domain.Message{*welcome}, nil
}

// AppendMessage stores a new message. Blank text is rejected without touching
// storage. When the write fails the composed message is still returned with the error.
func (s *service) AppendMessage(ctx context.Context, userID, text, sender string, isBot bool) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("message text is required")
	}
	if strings.TrimSpace(sender) == "" {
		sender = DefaultSender
	}
	msg := s.compose(sender, text, isBot)
	if err := s.messages.Put(ctx, userID, msg); err != nil {
		return msg, fmt.Errorf("persist message: %w", err)
	}
	return msg, nil
}

func (s *service) StartChatGreeting(ctx context.Context, userID, contactName string) (*domain.Message, error) {
	name := strings.TrimSpace(contactName)
	if name == "" {
		name = UnknownContact
	}
	return s.AppendMessage(ctx, userID, fmt.Sprintf(greetingFormat, name), DefaultSender, false)
}

func (s *service) compose(sender, text string, isBot bool) *domain.Message {
	return &domain.Message{
		ID:        id.New(),
		Sender:    sender,
		Content:   text,
		Timestamp: s.now().UTC(),
		IsBot:     isBot,
	}
}
