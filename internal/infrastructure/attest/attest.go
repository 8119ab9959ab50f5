// Package attest selects how device attestation tokens are issued and checked.
//
// A client presents a short-lived attestation token with every API call. Which
// issuer backs those tokens is configuration: signed platform tokens in
// production, Google-signed ID tokens, or a static debug token for local builds.
package attest

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wave-api/internal/config"
	jwtinfra "github.com/wave-api/internal/infrastructure/jwt"
)

const (
	ModePlatform = "platform"
	ModeGoogle   = "google"
	ModeDebug    = "debug"
	ModeOff      = "off"
)

var (
	ErrUnsupported  = errors.New("attestation token issuance unsupported")
	ErrInvalidToken = errors.New("invalid attestation token")
)

// Token is a short-lived attestation proof.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Attestation is what a verified token vouches for. DeviceID is empty when
// the issuer does not bind tokens to a device.
type Attestation struct {
	Mode     string
	DeviceID string
}

// Provider issues and verifies attestation tokens.
type Provider interface {
	Mode() string
	Issue(ctx context.Context, deviceID string) (*Token, error)
	Verify(ctx context.Context, token string) (*Attestation, error)
}

// Select builds the Provider named by cfg.AttestationMode.
func Select(cfg *config.Config, signer *jwtinfra.Provider) (Provider, error) {
	switch cfg.AttestationMode {
	case ModePlatform:
		if signer == nil {
			return nil, fmt.Errorf("platform attestation requires JWT keys")
		}
		return &platformProvider{signer: signer, ttl: cfg.AttestationTTL}, nil
	case ModeGoogle:
		if cfg.GoogleClientID == "" {
			return nil, fmt.Errorf("google attestation requires GOOGLE_CLIENT_ID")
		}
		return NewGoogleProvider(cfg.GoogleClientID), nil
	case ModeDebug:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("debug attestation is not allowed in production")
		}
		token := cfg.AttestationDebugToken
		if token == "" {
			b := make([]byte, 16)
			if _, err := rand.Read(b); err != nil {
				return nil, err
			}
			token = hex.EncodeToString(b)
			slog.Warn("no ATTESTATION_DEBUG_TOKEN set, generated one for this process", "debug_token", token)
		}
		return &debugProvider{token: token, ttl: cfg.AttestationTTL}, nil
	case ModeOff:
		return offProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown attestation mode %q", cfg.AttestationMode)
	}
}

type platformProvider struct {
	signer *jwtinfra.Provider
	ttl    time.Duration
}

func (p *platformProvider) Mode() string { return ModePlatform }

func (p *platformProvider) Issue(_ context.Context, deviceID string) (*Token, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id required: %w", ErrInvalidToken)
	}
	v, exp, err := p.signer.SignAttestation(deviceID, p.ttl)
	if err != nil {
		return nil, err
	}
	return &Token{Value: v, ExpiresAt: exp}, nil
}

func (p *platformProvider) Verify(_ context.Context, token string) (*Attestation, error) {
	claims, err := p.signer.VerifyAttestation(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("%w: no device id", ErrInvalidToken)
	}
	return &Attestation{Mode: ModePlatform, DeviceID: claims.DeviceID}, nil
}

type debugProvider struct {
	token string
	ttl   time.Duration
}

func (p *debugProvider) Mode() string { return ModeDebug }

func (p *debugProvider) Issue(context.Context, string) (*Token, error) {
	return &Token{Value: p.token, ExpiresAt: time.Now().Add(p.ttl)}, nil
}

func (p *debugProvider) Verify(_ context.Context, token string) (*Attestation, error) {
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.token)) != 1 {
		return nil, ErrInvalidToken
	}
	return &Attestation{Mode: ModeDebug}, nil
}

type offProvider struct{}

func (offProvider) Mode() string { return ModeOff }

func (offProvider) Issue(context.Context, string) (*Token, error) { return nil, ErrUnsupported }

func (offProvider) Verify(context.Context, string) (*Attestation, error) {
	return &Attestation{Mode: ModeOff}, nil
}
