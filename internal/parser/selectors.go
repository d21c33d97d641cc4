package parser

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Fixed selectors for the title page markup.
const (
	StructuredDataSelector = `[type="application/ld+json"]`
	ColorSelector          = `[data-testid="title-techspec_color"] span`
	LanguageSelector       = `[data-testid="title-details-languages"] a[href*="/search/title?title_type=feature&primary_language="]`
	CastItemSelector       = `[data-testid="title-cast-item"]`
	AvatarSelector         = `[data-testid="title-cast-item__avatar"] img`
	CharacterSelector      = `[data-testid="cast-item-characters-link"] span`
	ActorSelector          = `[data-testid="title-cast-item__actor"]`
)

// Selectors holds the compiled matchers. It is immutable after compilation and
// safe for concurrent use.
type Selectors struct {
	StructuredData cascadia.Selector
	Color          cascadia.Selector
	Language       cascadia.Selector
	CastItem       cascadia.Selector
	Avatar         cascadia.Selector
	Character      cascadia.Selector
	Actor          cascadia.Selector
}

// CompileSelectors compiles every fixed selector once.
func CompileSelectors() (*Selectors, error) {
	var (
		s   Selectors
		err error
	)
	targets := []struct {
		dst *cascadia.Selector
		raw string
	}{
		{&s.StructuredData, StructuredDataSelector},
		{&s.Color, ColorSelector},
		{&s.Language, LanguageSelector},
		{&s.CastItem, CastItemSelector},
		{&s.Avatar, AvatarSelector},
		{&s.Character, CharacterSelector},
		{&s.Actor, ActorSelector},
	}
	for _, target := range targets {
		*target.dst, err = cascadia.Compile(target.raw)
		if err != nil {
			return nil, fmt.Errorf("compile selector %q: %w", target.raw, err)
		}
	}
	return &s, nil
}
