// Package normalize converts parsed page strings into typed film columns.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

// ColorValue is the only color-info value classified as color.
const ColorValue = "Color"

// ParseISODuration converts the "PT{h}H{m}M" subset of ISO-8601 into seconds.
// A missing H or M component counts as zero; seconds are ignored.
func ParseISODuration(s string) (int64, error) {
	rest := strings.TrimPrefix(s, "PT")

	var hours, minutes int64
	if pos := strings.IndexByte(rest, 'H'); pos >= 0 {
		h, err := strconv.ParseInt(rest[:pos], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse hours in %q: %w", s, err)
		}
		hours = h
		rest = rest[pos+1:]
	}
	if pos := strings.IndexByte(rest, 'M'); pos >= 0 {
		m, err := strconv.ParseInt(rest[:pos], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse minutes in %q: %w", s, err)
		}
		minutes = m
	}
	return hours*3600 + minutes*60, nil
}

// RunTimeSeconds parses an optional duration. A parse failure is logged and
// yields nil so that ingestion continues with an unknown run time.
func RunTimeSeconds(raw *string, logger *zap.Logger) *int64 {
	if raw == nil {
		return nil
	}
	seconds, err := ParseISODuration(*raw)
	if err != nil {
		logger.Warn("failed to parse duration", zap.String("value", *raw), zap.Error(err))
		return nil
	}
	return &seconds
}

// HasColor maps the color-info text onto a flag. Anything other than
// "Color", including "Black and White", is false and logged.
func HasColor(raw *string, logger *zap.Logger) *bool {
	if raw == nil {
		return nil
	}
	color := *raw == ColorValue
	if !color {
		logger.Info("unrecognized color value", zap.String("value", *raw))
	}
	return &color
}

// Film produces the scalar row update for a scraped film. List fields are
// left untouched; duplicates are resolved by natural key at persistence time.
func Film(film catalog.ScrapedFilm, logger *zap.Logger) catalog.FilmUpdate {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int64("film_id", film.FilmID), zap.String("imdb_id", film.IMDbID))
	return catalog.FilmUpdate{
		IMDbID:         film.IMDbID,
		Title:          film.Title,
		ReleaseDate:    film.ReleaseDate,
		Plot:           film.Plot,
		RunTimeSeconds: RunTimeSeconds(film.RunTime, logger),
		HasColor:       HasColor(film.Color, logger),
		Rating:         film.Rating,
	}
}
