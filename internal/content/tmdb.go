package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/showguessr/server/internal/models"
)

const (
	DefaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	DefaultTMDBImageURL = "https://image.tmdb.org/t/p/w500"

	tmdbAnimationGenre = "16"
)

// TMDB serves movies, TV series and cartoons from The Movie Database v3 API.
type TMDB struct {
	APIKey    string
	BaseURL   string
	ImageBase string
	Client    *http.Client
	Pick      Picker
}

// NewTMDB returns a TMDB provider with default endpoints.
func NewTMDB(apiKey, baseURL string) *TMDB {
	if baseURL == "" {
		baseURL = DefaultTMDBBaseURL
	}
	return &TMDB{
		APIKey:    apiKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ImageBase: DefaultTMDBImageURL,
		Client:    &http.Client{Timeout: 10 * time.Second},
		Pick:      defaultPicker,
	}
}

type tmdbPage struct {
	Results []struct {
		ID            int    `json:"id"`
		Title         string `json:"title"`
		OriginalTitle string `json:"original_title"`
		Name          string `json:"name"`
		OriginalName  string `json:"original_name"`
		PosterPath    string `json:"poster_path"`
		ReleaseDate   string `json:"release_date"`
		FirstAirDate  string `json:"first_air_date"`
	} `json:"results"`
}

// Fetch picks a random show from a popularity page chosen by roundIndex.
func (t *TMDB) Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error) {
	if t.APIKey == "" {
		return models.ShowContent{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("api_key", t.APIKey)
	var path string
	maxPage := 20
	switch category {
	case models.CategoryMovie:
		path = "/movie/popular"
	case models.CategoryTVSeries:
		path = "/tv/popular"
	case models.CategoryCartoon:
		path = "/discover/tv"
		q.Set("with_genres", tmdbAnimationGenre)
		q.Set("sort_by", "popularity.desc")
		maxPage = 10
	default:
		return models.ShowContent{}, fmt.Errorf("tmdb: %w: %s", ErrUnsupportedCategory, category)
	}
	q.Set("page", strconv.Itoa(pageFor(roundIndex, maxPage, t.Pick)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return models.ShowContent{}, err
	}
	var page tmdbPage
	if err := doJSON(t.Client, req, &page); err != nil {
		return models.ShowContent{}, fmt.Errorf("tmdb: %w", err)
	}

	candidates := page.Results[:0]
	for _, r := range page.Results {
		if r.PosterPath != "" {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return models.ShowContent{}, fmt.Errorf("tmdb %s: %w", path, ErrNoResults)
	}
	r := candidates[t.Pick(len(candidates))]

	show := models.ShowContent{
		ID:       "tmdb-" + strconv.Itoa(r.ID),
		ImageURL: t.ImageBase + r.PosterPath,
		Category: category,
	}
	if category == models.CategoryMovie {
		show.Title = r.Title
		show.AlternativeTitles = altTitles(r.Title, r.OriginalTitle)
		show.Year = yearOf(r.ReleaseDate)
	} else {
		show.Title = r.Name
		show.AlternativeTitles = altTitles(r.Name, r.OriginalName)
		show.Year = yearOf(r.FirstAirDate)
	}
	return show, nil
}
