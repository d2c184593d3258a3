// Package catalog defines the episode catalog types supplied by the
// surrounding application (list/detail scraper, metadata services).
package catalog

import "context"

// EpisodeRef identifies a single watchable episode. Immutable once created.
type EpisodeRef struct {
	ID         string `json:"id"`
	AnimeID    string `json:"animeId"`
	AnimeTitle string `json:"animeTitle"`
	EpisodeNum int    `json:"episodeNum"`
	PageURL    string `json:"pageUrl"`
}

// Entry is one anime in the external catalog, as used for filter evaluation.
// Year and EpisodeCount are kept as strings because the upstream scraper
// produces free-form values ("2024", "?", "12+").
type Entry struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Year         string       `json:"year"`
	Season       string       `json:"season"`
	EpisodeCount string       `json:"episodeCount"`
	Episodes     []EpisodeRef `json:"episodes,omitempty"`
}

// Provider supplies the current catalog. Implemented by the surrounding
// application, not by this core.
type Provider interface {
	GetCatalog(ctx context.Context) ([]Entry, error)
}
