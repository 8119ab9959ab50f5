package handler

import (
	"net/http"

	"github.com/wave-api/internal/domain"
)

type countryLister interface {
	All() []domain.CountryCode
}

// CountryHandler serves the country catalog.
type CountryHandler struct {
	catalog countryLister
}

func NewCountryHandler(c countryLister) *CountryHandler { return &CountryHandler{catalog: c} }

func (h *CountryHandler) List(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, CountriesEnvelope{Data: h.catalog.All()})
}
