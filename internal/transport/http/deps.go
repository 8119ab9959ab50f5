package http

import (
	"github.com/wave-api/internal/application/account"
	"github.com/wave-api/internal/application/chat"
	"github.com/wave-api/internal/application/country"
	"github.com/wave-api/internal/application/identity"
	"github.com/wave-api/internal/application/verification"
	"github.com/wave-api/internal/infrastructure/attest"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Identity    identity.Service
	Chat        chat.Service
	Account     account.Service
	Registry    *verification.Registry
	Countries   *country.Catalog
	Attestation attest.Provider
}
