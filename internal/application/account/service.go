// Package account implements deactivation, reactivation and deletion of the current session's account.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wave-api/internal/domain"
)

type identityProvider interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	DispatchOTP(ctx context.Context, phoneNumber string) (string, error)
	Reauthenticate(ctx context.Context, userID, handle, code string) error
	DeleteCredential(ctx context.Context, userID string) error
}

type accountStore interface {
	SetDeactivated(ctx context.Context, userID string, deactivated bool) error
	Delete(ctx context.Context, userID string) error
}

type messageStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Message, error)
	Delete(ctx context.Context, userID, messageID string) error
}

type Service interface {
	Current(ctx context.Context) (*domain.Session, error)
	Deactivate(ctx context.Context) (*domain.Session, error)
	Reactivate(ctx context.Context) (*domain.Session, error)
	RequestDeletion(ctx context.Context) (handle string, err error)
	ConfirmDeletion(ctx context.Context, handle, code string) error
}

type service struct {
	identity identityProvider
	accounts accountStore
	messages messageStore
}

func NewService(identity identityProvider, accounts accountStore, messages messageStore) Service {
	return &service{identity: identity, accounts: accounts, messages: messages}
}

func (s *service) Current(ctx context.Context) (*domain.Session, error) {
	return s.identity.CurrentSession(ctx)
}

func (s *service) Deactivate(ctx context.Context) (*domain.Session, error) {
	return s.setDeactivated(ctx, true)
}

func (s *service) Reactivate(ctx context.Context) (*domain.Session, error) {
	return s.setDeactivated(ctx, false)
}

func (s *service) setDeactivated(ctx context.Context, deactivated bool) (*domain.Session, error) {
	sess, err := s.identity.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetDeactivated(ctx, sess.UserID, deactivated); err != nil {
		return nil, err
	}
	sess.Deactivated = deactivated
	return sess, nil
}

// RequestDeletion sends a fresh code to the session's phone number.
func (s *service) RequestDeletion(ctx context.Context) (string, error) {
	sess, err := s.identity.CurrentSession(ctx)
	if err != nil {
		return "", err
	}
	return s.identity.DispatchOTP(ctx, sess.PhoneNumber)
}

// ConfirmDeletion re-verifies phone ownership, then removes messages, the
// account record and the identity credential in that order. A failing step
// stops the sequence; earlier steps are not rolled back.
func (s *service) ConfirmDeletion(ctx context.Context, handle, code string) error {
	if strings.TrimSpace(handle) == "" || strings.TrimSpace(code) == "" {
		return domain.NewValidationError("Missing code or verification ID")
	}
	sess, err := s.identity.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if err := s.identity.Reauthenticate(ctx, sess.UserID, handle, strings.TrimSpace(code)); err != nil {
		return err
	}

	if err := s.deleteMessages(ctx, sess.UserID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.accounts.Delete(ctx, sess.UserID); err != nil {
		return fmt.Errorf("delete account record: %w", err)
	}
	if err := s.identity.DeleteCredential(ctx, sess.UserID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	slog.Info("account deleted", "user_id", sess.UserID)
	return nil
}

// deleteMessages removes every message and confirms the log is empty.
func (s *service) deleteMessages(ctx context.Context, userID string) error {
	msgs, err := s.messages.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := s.messages.Delete(ctx, userID, m.ID); err != nil {
			return err
		}
	}
	left, err := s.messages.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(left) > 0 {
		return fmt.Errorf("%d messages remain", len(left))
	}
	return nil
}
