// Package parser extracts film metadata from an IMDb title page.
//
// The page carries one ld+json block describing the movie plus a few fields
// that only exist in the rendered markup (color, languages, cast). Each field
// is extracted independently; only a missing or invalid ld+json block fails
// the parse.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmscraper/internal/catalog"
)

const maxFragment = 512

// Parser turns title page bodies into scraped films.
type Parser struct {
	selectors *Selectors
	logger    *zap.Logger
}

// New compiles the selectors and returns a ready parser. A selector compile
// failure is returned here so callers fail at startup.
func New(logger *zap.Logger) (*Parser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	selectors, err := CompileSelectors()
	if err != nil {
		return nil, err
	}
	return &Parser{selectors: selectors, logger: logger.Named("parser")}, nil
}

// Parse extracts a ScrapedFilm from body. The only errors returned are
// *catalog.ParseError; per-field failures are logged and skipped.
func (p *Parser) Parse(body []byte, filmID int64, imdbID string) (catalog.ScrapedFilm, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return catalog.ScrapedFilm{}, &catalog.ParseError{Reason: "read document", Err: err}
	}

	data, err := p.structuredData(doc)
	if err != nil {
		return catalog.ScrapedFilm{}, err
	}

	logger := p.logger.With(zap.Int64("film_id", filmID), zap.String("imdb_id", imdbID))
	film := catalog.ScrapedFilm{
		FilmID:      filmID,
		IMDbID:      imdbID,
		Title:       stringField(data, "name"),
		ReleaseDate: stringField(data, "datePublished"),
		Plot:        stringField(data, "description"),
		RunTime:     stringField(data, "duration"),
		CoverImage:  stringField(data, "image"),
		Rating:      rating(data),
		Genres:      genres(data),
		Keywords:    keywords(data),
		Color:       p.color(doc, logger),
		Languages:   p.languages(doc, logger),
		Directors:   directors(data, logger),
		Stars:       p.stars(doc, logger),
	}
	return film, nil
}

func (p *Parser) structuredData(doc *goquery.Document) (map[string]any, error) {
	block := doc.FindMatcher(p.selectors.StructuredData).First()
	if block.Length() == 0 {
		return nil, &catalog.ParseError{Reason: "no structured data block"}
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(block.Text()), &data); err != nil {
		return nil, &catalog.ParseError{Reason: "invalid structured data", Err: err}
	}
	if data == nil {
		return nil, &catalog.ParseError{Reason: "structured data is not an object"}
	}
	return data, nil
}

// decode applies a single entity decode and trims whitespace. Empty results
// are treated as absent.
func decode(raw string) (string, bool) {
	text := strings.TrimSpace(html.UnescapeString(raw))
	return text, text != ""
}

// nodeText returns the trimmed text of a DOM selection. The HTML tokenizer has
// already decoded entities once.
func nodeText(s *goquery.Selection) (string, bool) {
	text := strings.TrimSpace(s.Text())
	return text, text != ""
}

func stringField(data map[string]any, key string) *string {
	raw, ok := data[key].(string)
	if !ok {
		return nil
	}
	text, ok := decode(raw)
	if !ok {
		return nil
	}
	return &text
}

func rating(data map[string]any) *float64 {
	agg, ok := data["aggregateRating"].(map[string]any)
	if !ok {
		return nil
	}
	switch v := agg["ratingValue"].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func genres(data map[string]any) []string {
	var raw []any
	switch v := data["genre"].(type) {
	case []any:
		raw = v
	case string:
		raw = []any{v}
	default:
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if text, ok := decode(s); ok {
			out = append(out, text)
		}
	}
	return out
}

func keywords(data map[string]any) []string {
	raw, ok := data["keywords"].(string)
	if !ok {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	// Keywords are trimmed and blank entries dropped deliberately.
	for _, part := range parts {
		if text, ok := decode(part); ok {
			out = append(out, text)
		}
	}
	return out
}

func (p *Parser) color(doc *goquery.Document, logger *zap.Logger) *string {
	node := doc.FindMatcher(p.selectors.Color).First()
	if node.Length() == 0 {
		logFieldError(logger, &catalog.FieldExtractionError{
			Field: "color", Index: -1, Err: errors.New("no color element"),
		})
		return nil
	}
	text, ok := nodeText(node)
	if !ok {
		logFieldError(logger, &catalog.FieldExtractionError{
			Field: "color", Index: -1, Fragment: fragment(node), Err: errors.New("empty color element"),
		})
		return nil
	}
	return &text
}

func (p *Parser) languages(doc *goquery.Document, logger *zap.Logger) []string {
	out := []string{}
	doc.FindMatcher(p.selectors.Language).Each(func(_ int, s *goquery.Selection) {
		if text, ok := nodeText(s); ok {
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		logger.Debug("no language links found")
	}
	return out
}

func directors(data map[string]any, logger *zap.Logger) []catalog.ScrapedDirector {
	var raw []any
	switch v := data["director"].(type) {
	case []any:
		raw = v
	case map[string]any:
		raw = []any{v}
	default:
		logger.Info("no director array found")
		return []catalog.ScrapedDirector{}
	}

	out := make([]catalog.ScrapedDirector, 0, len(raw))
	for i, item := range raw {
		entry, _ := item.(map[string]any)
		url, _ := entry["url"].(string)
		imdbID := pathSegment(url, 4)
		name := stringField(entry, "name")
		if imdbID == "" || name == nil {
			frag, _ := json.Marshal(item)
			logFieldError(logger, &catalog.FieldExtractionError{
				Field:    "directors",
				Index:    i,
				Fragment: truncate(string(frag)),
				Err:      missing(imdbID == "", name == nil),
			})
			continue
		}
		out = append(out, catalog.ScrapedDirector{IMDbID: imdbID, Name: *name})
	}
	return out
}

func (p *Parser) stars(doc *goquery.Document, logger *zap.Logger) []catalog.ScrapedStar {
	out := []catalog.ScrapedStar{}
	doc.FindMatcher(p.selectors.CastItem).Each(func(i int, block *goquery.Selection) {
		star, err := p.star(block)
		if err != nil {
			logFieldError(logger, &catalog.FieldExtractionError{
				Field: "stars", Index: i, Fragment: fragment(block), Err: err,
			})
			return
		}
		out = append(out, star)
	})
	return out
}

func (p *Parser) star(block *goquery.Selection) (catalog.ScrapedStar, error) {
	actor := block.FindMatcher(p.selectors.Actor).First()
	if actor.Length() == 0 {
		return catalog.ScrapedStar{}, errors.New("no actor element")
	}
	name, ok := nodeText(actor)
	if !ok {
		return catalog.ScrapedStar{}, errors.New("empty actor name")
	}
	character, ok := nodeText(block.FindMatcher(p.selectors.Character).First())
	if !ok {
		return catalog.ScrapedStar{}, errors.New("missing character")
	}
	href, _ := actor.Attr("href")
	imdbID := pathSegment(href, 2)
	if imdbID == "" {
		return catalog.ScrapedStar{}, fmt.Errorf("no imdb id in href %q", href)
	}

	star := catalog.ScrapedStar{IMDbID: imdbID, Name: name, Character: character}
	if srcset, ok := block.FindMatcher(p.selectors.Avatar).First().Attr("srcset"); ok {
		if avatar := lastSrcsetCandidate(srcset); avatar != "" {
			star.Avatar = &avatar
		}
	}
	return star, nil
}

// lastSrcsetCandidate returns the URL of the last (largest) srcset entry.
func lastSrcsetCandidate(srcset string) string {
	candidates := strings.Split(srcset, ", ")
	fields := strings.Fields(candidates[len(candidates)-1])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// pathSegment splits raw on "/" and returns the segment at index, or "".
func pathSegment(raw string, index int) string {
	parts := strings.Split(raw, "/")
	if index >= len(parts) {
		return ""
	}
	return parts[index]
}

func missing(id, name bool) error {
	switch {
	case id && name:
		return errors.New("missing imdb id and name")
	case id:
		return errors.New("missing imdb id")
	default:
		return errors.New("missing name")
	}
}

func fragment(s *goquery.Selection) string {
	out, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	return truncate(out)
}

func truncate(s string) string {
	if len(s) <= maxFragment {
		return s
	}
	return s[:maxFragment] + "..."
}

func logFieldError(logger *zap.Logger, err *catalog.FieldExtractionError) {
	fields := []zap.Field{zap.String("field", err.Field), zap.Error(err)}
	if err.Index >= 0 {
		fields = append(fields, zap.Int("index", err.Index))
	}
	if err.Fragment != "" {
		fields = append(fields, zap.String("fragment", err.Fragment))
	}
	logger.Warn("field extraction failed", fields...)
}
