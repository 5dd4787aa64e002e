package content

import (
	"context"
	"fmt"

	"github.com/showguessr/server/internal/models"
)

// Catalog is an offline provider backed by a fixed list of shows. It is used when
// no remote provider is configured for a category, and in tests.
type Catalog struct {
	shows map[models.Category][]models.ShowContent
	Pick  Picker
}

// NewCatalog builds a catalog from shows, grouped by their Category.
func NewCatalog(shows []models.ShowContent) *Catalog {
	c := &Catalog{shows: make(map[models.Category][]models.ShowContent), Pick: defaultPicker}
	for _, s := range shows {
		c.shows[s.Category] = append(c.shows[s.Category], s)
	}
	return c
}

// Len reports how many shows the catalog holds for category.
func (c *Catalog) Len(category models.Category) int {
	return len(c.shows[category])
}

func (c *Catalog) Fetch(_ context.Context, category models.Category, _ int) (models.ShowContent, error) {
	list := c.shows[category]
	if len(list) == 0 {
		return models.ShowContent{}, fmt.Errorf("catalog %s: %w", category, ErrNoResults)
	}
	return list[c.Pick(len(list))].Clone(), nil
}

// DefaultCatalog returns the built-in show list.
func DefaultCatalog() *Catalog {
	return NewCatalog(builtinShows)
}

var builtinShows = []models.ShowContent{
	{ID: "cat-movie-1", Title: "The Matrix", ImageURL: "https://image.tmdb.org/t/p/w500/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg", Category: models.CategoryMovie, Year: 1999},
	{ID: "cat-movie-2", Title: "Spirited Away", AlternativeTitles: []string{"Sen to Chihiro no Kamikakushi"}, ImageURL: "https://image.tmdb.org/t/p/w500/39wmItIWsg5sZMyRUHLkWBcuVCM.jpg", Category: models.CategoryMovie, Year: 2001},
	{ID: "cat-movie-3", Title: "Inception", ImageURL: "https://image.tmdb.org/t/p/w500/oYuLEt3zVCKq57qu2F8dT7NIa6f.jpg", Category: models.CategoryMovie, Year: 2010},
	{ID: "cat-movie-4", Title: "The Godfather", ImageURL: "https://image.tmdb.org/t/p/w500/3bhkrj58Vtu7enYsRolD1fZdja1.jpg", Category: models.CategoryMovie, Year: 1972},
	{ID: "cat-movie-5", Title: "Parasite", AlternativeTitles: []string{"Gisaengchung"}, ImageURL: "https://image.tmdb.org/t/p/w500/7IiTTgloJzvGI1TAYymCfbfl3vT.jpg", Category: models.CategoryMovie, Year: 2019},
	{ID: "cat-movie-6", Title: "Jurassic Park", ImageURL: "https://image.tmdb.org/t/p/w500/oU7Oq2kFAAlGqbU4VoAE36g4hoI.jpg", Category: models.CategoryMovie, Year: 1993},

	{ID: "cat-tv-1", Title: "Breaking Bad", ImageURL: "https://image.tmdb.org/t/p/w500/ggFHVNu6YYI5L9pCfOacjizRGt.jpg", Category: models.CategoryTVSeries, Year: 2008},
	{ID: "cat-tv-2", Title: "Game of Thrones", AlternativeTitles: []string{"GoT"}, ImageURL: "https://image.tmdb.org/t/p/w500/1XS1oqL89opfnbLl8WnZY1O1uJx.jpg", Category: models.CategoryTVSeries, Year: 2011},
	{ID: "cat-tv-3", Title: "Stranger Things", ImageURL: "https://image.tmdb.org/t/p/w500/49WJfeN0moxb9IPfGn8AIqMGskD.jpg", Category: models.CategoryTVSeries, Year: 2016},
	{ID: "cat-tv-4", Title: "The Office", ImageURL: "https://image.tmdb.org/t/p/w500/7DJKHzAi83BmQrWLrYYOqcoKfhR.jpg", Category: models.CategoryTVSeries, Year: 2005},
	{ID: "cat-tv-5", Title: "Friends", ImageURL: "https://image.tmdb.org/t/p/w500/f496cm9enuEsZkSPzCwnTESEK5s.jpg", Category: models.CategoryTVSeries, Year: 1994},

	{ID: "cat-cartoon-1", Title: "Avatar: The Last Airbender", AlternativeTitles: []string{"Avatar"}, ImageURL: "https://image.tmdb.org/t/p/w500/9jUu2yQ7fG2tSxqYq0Q0u3f2E2J.jpg", Category: models.CategoryCartoon, Year: 2005},
	{ID: "cat-cartoon-2", Title: "SpongeBob SquarePants", AlternativeTitles: []string{"SpongeBob"}, ImageURL: "https://image.tmdb.org/t/p/w500/amZeUWZnXT4B1Y4GPHhB4z2Ppm0.jpg", Category: models.CategoryCartoon, Year: 1999},
	{ID: "cat-cartoon-3", Title: "The Simpsons", ImageURL: "https://image.tmdb.org/t/p/w500/vHqeLzYl3dEAutojCO26g0LIkom.jpg", Category: models.CategoryCartoon, Year: 1989},
	{ID: "cat-cartoon-4", Title: "Adventure Time", ImageURL: "https://image.tmdb.org/t/p/w500/qk3eQ8jW4opJ48gFWYUXWaMT4l.jpg", Category: models.CategoryCartoon, Year: 2010},
	{ID: "cat-cartoon-5", Title: "Gravity Falls", ImageURL: "https://image.tmdb.org/t/p/w500/8M4cw1x1Q7iu3lWXB0bZ2fGk3qk.jpg", Category: models.CategoryCartoon, Year: 2012},

	{ID: "cat-anime-1", Title: "Attack on Titan", AlternativeTitles: []string{"Shingeki no Kyojin", "進撃の巨人"}, ImageURL: "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx16498-C6FPmWm59CyP.jpg", Category: models.CategoryAnime, Year: 2013},
	{ID: "cat-anime-2", Title: "Death Note", AlternativeTitles: []string{"デスノート"}, ImageURL: "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx1535-lawCwhzhi96X.jpg", Category: models.CategoryAnime, Year: 2006},
	{ID: "cat-anime-3", Title: "Fullmetal Alchemist: Brotherhood", AlternativeTitles: []string{"Hagane no Renkinjutsushi: Fullmetal Alchemist"}, ImageURL: "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx5114-KJTQz9AIm6Wk.jpg", Category: models.CategoryAnime, Year: 2009},
	{ID: "cat-anime-4", Title: "Demon Slayer: Kimetsu no Yaiba", AlternativeTitles: []string{"Kimetsu no Yaiba", "Demon Slayer"}, ImageURL: "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx101922-PEn1CTc93blC.jpg", Category: models.CategoryAnime, Year: 2019},
	{ID: "cat-anime-5", Title: "One Punch Man", AlternativeTitles: []string{"One Punch-Man"}, ImageURL: "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx21087-UV2tu6exrfXz.jpg", Category: models.CategoryAnime, Year: 2015},
}
