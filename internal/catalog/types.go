// Package catalog defines the film catalog types shared across the scrape pipeline.
package catalog

import (
	"net/http"
	"time"
)

// ScrapedFilm is the aggregate produced by parsing one title page. Every string
// has already been entity-decoded; absent or empty values are nil.
type ScrapedFilm struct {
	FilmID      int64
	IMDbID      string
	Title       *string
	ReleaseDate *string
	Plot        *string
	RunTime     *string // ISO-8601 duration, e.g. "PT2H28M"
	Color       *string
	Rating      *float64
	CoverImage  *string
	Genres      []string
	Languages   []string
	Keywords    []string
	Directors   []ScrapedDirector
	Stars       []ScrapedStar
}

// ScrapedDirector is one entry of the structured director list.
type ScrapedDirector struct {
	IMDbID string `json:"imdb_id"`
	Name   string `json:"name"`
}

// ScrapedStar is one cast member extracted from the page markup.
type ScrapedStar struct {
	IMDbID    string  `json:"imdb_id"`
	Name      string  `json:"name"`
	Character string  `json:"character"`
	Avatar    *string `json:"avatar,omitempty"`
}

// FilmUpdate carries the normalized scalar columns written to the film row.
type FilmUpdate struct {
	IMDbID         string
	Title          *string
	ReleaseDate    *string
	Plot           *string
	RunTimeSeconds *int64
	HasColor       *bool
	Rating         *float64
}

// AvatarJob asks the image pipeline to fetch one person's avatar after commit.
type AvatarJob struct {
	PersonID int64  `json:"person_id"`
	URL      string `json:"url"`
}

// Film is a persisted catalog entry.
type Film struct {
	ID          int64    `json:"id"`
	File        string   `json:"file"`
	DirectoryID int64    `json:"directory"`
	IMDbID      *string  `json:"imdb_id,omitempty"`
	Title       *string  `json:"title,omitempty"`
	ReleaseDate *string  `json:"release_date,omitempty"`
	Plot        *string  `json:"plot,omitempty"`
	RunTime     *int64   `json:"run_time,omitempty"`
	HasColor    *bool    `json:"has_color,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Registered  bool     `json:"registered"`
}

// LookupKind names one of the name-keyed lookup families.
type LookupKind string

// Lookup families linked to films through junction tables.
const (
	LookupGenre    LookupKind = "genre"
	LookupLanguage LookupKind = "language"
	LookupKeyword  LookupKind = "keyword"
)

// Table returns the lookup table holding the unique names.
func (k LookupKind) Table() string {
	switch k {
	case LookupGenre:
		return "genres"
	case LookupLanguage:
		return "languages"
	case LookupKeyword:
		return "keywords"
	default:
		return ""
	}
}

// Junction returns the film junction table for the kind.
func (k LookupKind) Junction() string {
	if t := k.Table(); t != "" {
		return "film_" + t
	}
	return ""
}

// Column returns the junction column referencing the lookup row.
func (k LookupKind) Column() string {
	if k.Table() == "" {
		return ""
	}
	return string(k) + "_id"
}

// Valid reports whether the kind is one of the known lookup families.
func (k LookupKind) Valid() bool {
	return k.Table() != ""
}

// FetchRequest captures everything needed to fetch a source document.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Cookies map[string]string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// IngestedEvent is published after a film has been committed.
type IngestedEvent struct {
	EventID    string    `json:"event_id"`
	FilmID     int64     `json:"film_id"`
	IMDbID     string    `json:"imdb_id"`
	Avatars    int       `json:"avatars"`
	IngestedAt time.Time `json:"ingested_at"`
}
