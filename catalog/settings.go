package catalog

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// Settings carries the presentation options every component is built with.
type Settings struct {
	PageSize               int
	NoveltyCount           int
	StockListCount         int
	AutocompleteMinChars   int
	AutocompleteMaxResults int
	PlaceholderImage       string
	MediaURL               string
	Currency               string
	BaseURL                string
	ContactWhatsApp        string
}

func DefaultSettings() Settings {
	return Settings{
		PageSize:               12,
		NoveltyCount:           5,
		StockListCount:         8,
		AutocompleteMinChars:   2,
		AutocompleteMaxResults: 8,
		PlaceholderImage:       "/static/img/placeholder.png",
		MediaURL:               "/media/productos_imagenes/",
		Currency:               "MXN",
	}
}

// ImageURL maps a stored reference to its public URL, falling back to the
// placeholder when there is none.
func (s Settings) ImageURL(ref string) string {
	if ref == "" {
		return s.PlaceholderImage
	}
	return strings.TrimSuffix(s.MediaURL, "/") + "/" + strings.TrimPrefix(ref, "/")
}

func (s Settings) ProductURL(id uint) string {
	return fmt.Sprintf("/products/%d", id)
}

func (s Settings) CategoryURL(id uint) string {
	return fmt.Sprintf("/catalog/categories/%d", id)
}

// Absolute prefixes BaseURL to site-relative links.
func (s Settings) Absolute(link string) string {
	if s.BaseURL == "" || !strings.HasPrefix(link, "/") {
		return link
	}
	return strings.TrimSuffix(s.BaseURL, "/") + link
}

// Slugifier turns a category name into its storage folder name.
type Slugifier func(name string) string

// Slugify lowercases, strips diacritics and hyphenates.
func Slugify(name string) string {
	return slug.Make(name)
}
