package catalog

import (
	"slices"
	"strings"
	"time"
)

// Endpoints used by the resolver.
const (
	EndpointGames         = "games"
	EndpointExternalGames = "external_games"
)

// Platform identifiers for the PC family.
const (
	PlatformLinux   int64 = 3
	PlatformPC      int64 = 6
	PlatformDOS     int64 = 13
	PlatformMac     int64 = 14
	PlatformC64     int64 = 15
	PlatformAmiga   int64 = 16
	PlatformAtariST int64 = 63
)

// Game categories.
const (
	CategoryMain                = 0
	CategoryDLC                 = 1
	CategoryExpansion           = 2
	CategoryBundle              = 3
	CategoryStandaloneExpansion = 4
	CategoryMod                 = 5
	CategoryEpisode             = 6
	CategorySeason              = 7
	CategoryRemake              = 8
	CategoryRemaster            = 9
	CategoryExpandedGame        = 10
	CategoryPort                = 11
	CategoryFork                = 12
	CategoryPack                = 13
	CategoryUpdate              = 14
)

// Release statuses.
const (
	StatusReleased    = 0
	StatusAlpha       = 2
	StatusBeta        = 3
	StatusEarlyAccess = 4
	StatusOffline     = 5
	StatusCancelled   = 6
	StatusRumored     = 7
	StatusDelisted    = 8
)

// Game mirrors the catalog's game record. Only fields the resolver and
// webhook filters read are decoded.
type Game struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Slug             string  `json:"slug,omitempty"`
	Category         int     `json:"category"`
	Status           int     `json:"status,omitempty"`
	URL              string  `json:"url,omitempty"`
	Summary          string  `json:"summary,omitempty"`
	Storyline        string  `json:"storyline,omitempty"`
	FirstReleaseDate int64   `json:"first_release_date,omitempty"`
	AggregatedRating float64 `json:"aggregated_rating,omitempty"`
	Rating           float64 `json:"rating,omitempty"`
	Follows          int64   `json:"follows,omitempty"`
	Hypes            int64   `json:"hypes,omitempty"`
	Platforms        []int64 `json:"platforms,omitempty"`
	Genres           []int64 `json:"genres,omitempty"`
	Keywords         []int64 `json:"keywords,omitempty"`
	ParentGame       int64   `json:"parent_game,omitempty"`
	VersionParent    int64   `json:"version_parent,omitempty"`
	VersionTitle     string  `json:"version_title,omitempty"`
	Cover            int64   `json:"cover,omitempty"`
	UpdatedAt        int64   `json:"updated_at,omitempty"`
	Checksum         string  `json:"checksum,omitempty"`
}

// ReleaseYear returns the UTC year of the first release, or 0 when unknown.
func (g Game) ReleaseYear() int {
	if g.FirstReleaseDate <= 0 {
		return 0
	}
	return time.Unix(g.FirstReleaseDate, 0).UTC().Year()
}

// IsPCGame reports whether any platform belongs to the PC family.
func (g Game) IsPCGame() bool {
	return slices.ContainsFunc(g.Platforms, IsPCPlatform)
}

// IsPCPlatform reports whether the platform id belongs to the PC family
// tracked by webhook intake.
func IsPCPlatform(id int64) bool {
	switch id {
	case PlatformPC, PlatformDOS, PlatformC64, PlatformAmiga, PlatformAtariST:
		return true
	}
	return false
}

// IsMainCategory reports whether the category is tracked as a standalone game.
func IsMainCategory(category int) bool {
	switch category {
	case CategoryMain, CategoryExpansion, CategoryStandaloneExpansion,
		CategoryRemake, CategoryRemaster, CategoryExpandedGame, CategoryUpdate:
		return true
	}
	return false
}

// ExternalGame links a catalog game to a storefront listing.
type ExternalGame struct {
	ID        int64  `json:"id"`
	Game      int64  `json:"game"`
	UID       string `json:"uid"`
	Category  int    `json:"category"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

var externalSources = map[string]int{
	"steam": 1,
	"gog":   5,
	"egs":   26,
	"epic":  26,
}

// ExternalSource maps a storefront name to the catalog's external game
// category.
func ExternalSource(storefront string) (int, bool) {
	category, ok := externalSources[strings.ToLower(strings.TrimSpace(storefront))]
	return category, ok
}

// StorefrontPlatforms returns the platform ids a storefront sells for.
// Unknown storefronts return nil.
func StorefrontPlatforms(storefront string) []int64 {
	switch strings.ToLower(strings.TrimSpace(storefront)) {
	case "steam", "gog", "egs", "epic":
		return []int64{PlatformPC, PlatformMac, PlatformLinux, PlatformDOS}
	default:
		return nil
	}
}

// HintPlatforms maps a free-form platform hint to platform ids.
func HintPlatforms(hint string) []int64 {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "pc", "windows", "win":
		return []int64{PlatformPC}
	case "mac", "macos", "osx":
		return []int64{PlatformMac}
	case "linux":
		return []int64{PlatformLinux}
	case "dos":
		return []int64{PlatformDOS}
	case "amiga":
		return []int64{PlatformAmiga}
	case "c64", "commodore 64":
		return []int64{PlatformC64}
	case "atari st":
		return []int64{PlatformAtariST}
	default:
		return nil
	}
}
