// Package country holds the reference catalog of dialling codes.
package country

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wave-api/internal/domain"
)

//go:embed countries.json
var embedded []byte

// Downloader fetches an object by key. Satisfied by s3infra.Store.
type Downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Catalog is an ordered, read-only list of country entries.
type Catalog struct {
	entries []domain.CountryCode
}

// Load parses a JSON array of {name, code, iso, emoji} records.
func Load(r io.Reader) (*Catalog, error) {
	var entries []domain.CountryCode
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode country catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("country catalog is empty")
	}
	for i, e := range entries {
		if !strings.HasPrefix(e.DialCode, "+") || len(e.DialCode) < 2 {
			return nil, fmt.Errorf("country catalog entry %d (%s): bad dial code %q", i, e.Name, e.DialCode)
		}
		if e.ISO == "" {
			return nil, fmt.Errorf("country catalog entry %d (%s): missing iso", i, e.Name)
		}
	}
	return &Catalog{entries: entries}, nil
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(embedded))
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFromStore downloads and parses the catalog object stored under key.
func LoadFromStore(ctx context.Context, store Downloader, key string) (*Catalog, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return Load(body)
}

// All returns a copy of every entry in catalog order.
func (c *Catalog) All() []domain.CountryCode {
	out := make([]domain.CountryCode, len(c.entries))
	copy(out, c.entries)
	return out
}

// ByISO returns the first entry whose ISO region code matches, ignoring case.
func (c *Catalog) ByISO(iso string) (domain.CountryCode, bool) {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return domain.CountryCode{}, false
	}
	for _, e := range c.entries {
		if strings.EqualFold(e.ISO, iso) {
			return e, true
		}
	}
	return domain.CountryCode{}, false
}

// MatchPrefix finds the entry whose dial code is the longest prefix of number.
// Entries sharing a dial code resolve to the one listed first.
func (c *Catalog) MatchPrefix(number string) (domain.CountryCode, bool) {
	var best domain.CountryCode
	found := false
	for _, e := range c.entries {
		if !strings.HasPrefix(number, e.DialCode) {
			continue
		}
		if !found || len(e.DialCode) > len(best.DialCode) {
			best, found = e, true
		}
	}
	return best, found
}
