package documents

import (
	"fmt"
	"strings"

	"gamevault/internal/services"
)

// Storefront names where a store entry came from.
type Storefront string

const (
	StorefrontSteam      Storefront = "steam"
	StorefrontGOG        Storefront = "gog"
	StorefrontEGS        Storefront = "egs"
	StorefrontWikipedia  Storefront = "wikipedia"
	StorefrontMetacritic Storefront = "metacritic"
	StorefrontLibrary    Storefront = "library"
)

var storefronts = []Storefront{
	StorefrontSteam,
	StorefrontGOG,
	StorefrontEGS,
	StorefrontWikipedia,
	StorefrontMetacritic,
	StorefrontLibrary,
}

// ParseStorefront normalizes a storefront name.
func ParseStorefront(value string) (Storefront, error) {
	normalized := Storefront(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "epic" {
		normalized = StorefrontEGS
	}
	for _, sf := range storefronts {
		if sf == normalized {
			return sf, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "documents", "parse storefront", fmt.Sprintf("unknown storefront %q", value), nil)
}

// StoreEntry is one raw ownership record. It is immutable once ingested.
type StoreEntry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Storefront  Storefront `json:"storefront"`
	StoreID     string     `json:"store_id,omitempty"`
	CatalogID   int64      `json:"catalog_id,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	ReleaseYear int        `json:"release_year,omitempty"`
	URL         string     `json:"url,omitempty"`
	Image       string     `json:"image,omitempty"`
}

// Key identifies the entry within a user's library.
func (e StoreEntry) Key() string {
	return string(e.Storefront) + ":" + e.ID
}

// Validate checks the fields every resolution path relies on.
func (e StoreEntry) Validate() error {
	if _, err := ParseStorefront(string(e.Storefront)); err != nil {
		return err
	}
	if strings.TrimSpace(e.ID) == "" {
		return services.Wrap(services.ErrValidation, "documents", "validate entry", "entry id required", nil)
	}
	if strings.TrimSpace(e.Title) == "" && e.CatalogID == 0 && e.StoreID == "" {
		return services.Wrap(services.ErrValidation, "documents", "validate entry", "title or identifier required", nil)
	}
	if e.CatalogID < 0 {
		return services.Wrap(services.ErrValidation, "documents", "validate entry", "catalog id must be positive", nil)
	}
	return nil
}

// SplitKey breaks an entry key into storefront and entry ID.
func SplitKey(key string) (Storefront, string, bool) {
	sf, id, ok := strings.Cut(key, ":")
	if !ok || sf == "" || id == "" {
		return "", "", false
	}
	return Storefront(sf), id, true
}
