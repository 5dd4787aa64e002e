package content

import (
	"context"
	"errors"

	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus"
)

// Mux routes each category to its provider. Categories without a provider, or
// whose provider reports ErrNotConfigured, are served by the fallback.
type Mux struct {
	providers map[models.Category]Provider
	fallback  Provider
	log       *logrus.Logger
}

func NewMux(fallback Provider, logger *logrus.Logger) *Mux {
	return &Mux{
		providers: make(map[models.Category]Provider),
		fallback:  fallback,
		log:       logger,
	}
}

// Handle registers p for category, replacing any previous provider. Not safe for
// use once Fetch is being called concurrently.
func (m *Mux) Handle(category models.Category, p Provider) {
	m.providers[category] = p
}

func (m *Mux) Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error) {
	if p, ok := m.providers[category]; ok {
		show, err := p.Fetch(ctx, category, roundIndex)
		if err == nil || !errors.Is(err, ErrNotConfigured) || m.fallback == nil {
			return show, err
		}
		m.log.WithField("category", category).Debug("provider not configured, using fallback")
	}
	if m.fallback == nil {
		return models.ShowContent{}, ErrUnsupportedCategory
	}
	return m.fallback.Fetch(ctx, category, roundIndex)
}

// NewDefaultMux wires TMDB for movies, series and cartoons, AniList for anime and
// the built-in catalog as fallback.
func NewDefaultMux(tmdbKey, tmdbBaseURL, aniListURL string, logger *logrus.Logger) *Mux {
	m := NewMux(DefaultCatalog(), logger)
	tmdb := NewTMDB(tmdbKey, tmdbBaseURL)
	m.Handle(models.CategoryMovie, tmdb)
	m.Handle(models.CategoryTVSeries, tmdb)
	m.Handle(models.CategoryCartoon, tmdb)
	m.Handle(models.CategoryAnime, NewAniList(aniListURL))
	return m
}
