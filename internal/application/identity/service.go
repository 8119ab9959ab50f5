// Package identity issues and checks phone OTPs and the credentials they unlock.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/wave-api/internal/domain"
	jwtinfra "github.com/wave-api/internal/infrastructure/jwt"
	"github.com/wave-api/internal/pkg/id"
	"github.com/wave-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const devCode = "123456"

// Messages returned to the client verbatim.
const (
	msgInvalidNumber = "The phone number is not valid."
	msgTooManySends  = "Too many verification requests. Try again later."
	msgSendFailed    = "Unable to send the verification code. Try again later."
	msgInvalidHandle = "Invalid or expired verification code."
	msgCodeExpired   = "The verification code has expired. Request a new one."
	msgWrongCode     = "Invalid verification code."
	msgTooManyTries  = "Too many attempts. Request a new code."
	msgPhoneMismatch = "The verification code was sent to a different phone number."
	smsMessagePrefix = "Your Wave verification code: "
)

type verificationStore interface {
	Put(ctx context.Context, v *domain.VerificationRecord) error
	Get(ctx context.Context, handle string) (*domain.VerificationRecord, error)
	IncrementAttempts(ctx context.Context, handle string) (int, error)
	Delete(ctx context.Context, handle string) error
}

type identityStore interface {
	Create(ctx context.Context, i *domain.Identity) error
	Get(ctx context.Context, userID string) (*domain.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	Delete(ctx context.Context, userID string) error
}

type accountStore interface {
	Get(ctx context.Context, userID string) (*domain.Account, error)
	Merge(ctx context.Context, userID string, fields map[string]interface{}) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type rateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type tokenSigner interface {
	Sign(userID, phoneNumber string) (string, time.Time, error)
	Verify(token string) (*jwtinfra.Claims, error)
}

// Service is the identity provider: OTP dispatch and exchange, session lookup, credential removal.
type Service interface {
	DispatchOTP(ctx context.Context, phoneNumber string) (handle string, err error)
	ExchangeCode(ctx context.Context, handle, code string) (*domain.Credential, error)
	CurrentSession(ctx context.Context) (*domain.Session, error)
	Reauthenticate(ctx context.Context, userID, handle, code string) error
	DeleteCredential(ctx context.Context, userID string) error
	VerifyToken(token string) (*jwtinfra.Claims, error)
}

// ServiceDeps holds the collaborators for NewService.
type ServiceDeps struct {
	Verifications verificationStore
	Identities    identityStore
	Accounts      accountStore
	SMS           smsSender
	Limiter       rateLimiter
	Signer        tokenSigner
	CodeTTL       time.Duration
	MaxAttempts   int
	DevMode       bool
}

type service struct {
	verifications verificationStore
	identities    identityStore
	accounts      accountStore
	sms           smsSender
	limiter       rateLimiter
	signer        tokenSigner
	codeTTL       time.Duration
	maxAttempts   int
	devMode       bool
	now           func() time.Time
}

func NewService(d ServiceDeps) Service {
	if d.CodeTTL <= 0 {
		d.CodeTTL = 10 * time.Minute
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	return &service{
		verifications: d.Verifications,
		identities:    d.Identities,
		accounts:      d.Accounts,
		sms:           d.SMS,
		limiter:       d.Limiter,
		signer:        d.Signer,
		codeTTL:       d.CodeTTL,
		maxAttempts:   d.MaxAttempts,
		devMode:       d.DevMode,
		now:           time.Now,
	}
}

func (s *service) DispatchOTP(ctx context.Context, phoneNumber string) (string, error) {
	if err := validate.Var(phoneNumber, "required,e164"); err != nil {
		return "", domain.NewProviderError(msgInvalidNumber)
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, phoneNumber) {
		return "", domain.NewRateLimitError(msgTooManySends)
	}

	code, err := s.generateCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	rec := &domain.VerificationRecord{
		Handle:      id.NewHandle(),
		PhoneNumber: phoneNumber,
		CodeHash:    string(hash),
		ExpiresAt:   s.now().Add(s.codeTTL).Unix(),
	}
	if err := s.verifications.Put(ctx, rec); err != nil {
		return "", err
	}
	if err := s.sms.SendSMS(ctx, phoneNumber, smsMessagePrefix+code); err != nil {
		slog.Error("otp sms failed", "phone_number", phoneNumber, "err", err)
		if delErr := s.verifications.Delete(ctx, rec.Handle); delErr != nil {
			slog.Warn("failed to remove undelivered verification", "handle", rec.Handle, "err", delErr)
		}
		return "", domain.NewProviderError(msgSendFailed)
	}
	return rec.Handle, nil
}

func (s *service) ExchangeCode(ctx context.Context, handle, code string) (*domain.Credential, error) {
	rec, err := s.consume(ctx, handle, code)
	if err != nil {
		return nil, err
	}
	ident, err := s.resolveIdentity(ctx, rec.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Merge(ctx, ident.UserID, map[string]interface{}{"phone_number": ident.PhoneNumber}); err != nil {
		return nil, err
	}
	sess, err := s.session(ctx, ident)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.signer.Sign(ident.UserID, ident.PhoneNumber)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{Token: token, ExpiresAt: exp, Session: sess}, nil
}

func (s *service) CurrentSession(ctx context.Context) (*domain.Session, error) {
	claims, ok := jwtinfra.ClaimsFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no current session: %w", domain.ErrNotFound)
	}
	ident, err := s.identities.Get(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.session(ctx, ident)
}

func (s *service) Reauthenticate(ctx context.Context, userID, handle, code string) error {
	ident, err := s.identities.Get(ctx, userID)
	if err != nil {
		return err
	}
	rec, err := s.load(ctx, handle)
	if err != nil {
		return err
	}
	if rec.PhoneNumber != ident.PhoneNumber {
		return domain.NewProviderError(msgPhoneMismatch)
	}
	_, err = s.consume(ctx, handle, code)
	return err
}

func (s *service) DeleteCredential(ctx context.Context, userID string) error {
	return s.identities.Delete(ctx, userID)
}

func (s *service) VerifyToken(token string) (*jwtinfra.Claims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	return claims, nil
}

func (s *service) load(ctx context.Context, handle string) (*domain.VerificationRecord, error) {
	if handle == "" {
		return nil, domain.NewProviderError(msgInvalidHandle)
	}
	rec, err := s.verifications.Get(ctx, handle)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewProviderError(msgInvalidHandle)
	}
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > rec.ExpiresAt {
		s.burn(ctx, handle)
		return nil, domain.NewProviderError(msgCodeExpired)
	}
	return rec, nil
}

// consume checks code against the record for handle and deletes the record on success.
func (s *service) consume(ctx context.Context, handle, code string) (*domain.VerificationRecord, error) {
	rec, err := s.load(ctx, handle)
	if err != nil {
		return nil, err
	}
	attempts, err := s.verifications.IncrementAttempts(ctx, handle)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewProviderError(msgInvalidHandle)
	}
	if err != nil {
		return nil, err
	}
	if attempts > s.maxAttempts {
		s.burn(ctx, handle)
		return nil, domain.NewRateLimitError(msgTooManyTries)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		return nil, domain.NewProviderError(msgWrongCode)
	}
	if err := s.verifications.Delete(ctx, handle); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) burn(ctx context.Context, handle string) {
	if err := s.verifications.Delete(ctx, handle); err != nil {
		slog.Warn("failed to delete verification record", "handle", handle, "err", err)
	}
}

func (s *service) resolveIdentity(ctx context.Context, phone string) (*domain.Identity, error) {
	ident, err := s.identities.GetByPhone(ctx, phone)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	ident = &domain.Identity{UserID: id.New(), PhoneNumber: phone, CreatedAt: s.now().UTC()}
	if err := s.identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	slog.Info("identity created", "user_id", ident.UserID)
	return ident, nil
}

func (s *service) session(ctx context.Context, ident *domain.Identity) (*domain.Session, error) {
	sess := &domain.Session{UserID: ident.UserID, PhoneNumber: ident.PhoneNumber}
	acc, err := s.accounts.Get(ctx, ident.UserID)
	switch {
	case err == nil:
		sess.Deactivated = acc.Deactivated
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return sess, nil
}

func (s *service) generateCode() (string, error) {
	if s.devMode {
		return devCode, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
