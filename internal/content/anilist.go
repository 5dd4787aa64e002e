package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/showguessr/server/internal/models"
)

const DefaultAniListURL = "https://graphql.anilist.co"

const aniListQuery = `query ($page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    media(type: ANIME, sort: POPULARITY_DESC, isAdult: false) {
      id
      title { romaji english native }
      coverImage { large }
      startDate { year }
    }
  }
}`

// AniList serves anime through the AniList GraphQL API. No key is required.
type AniList struct {
	URL     string
	PerPage int
	Client  *http.Client
	Pick    Picker
}

func NewAniList(endpoint string) *AniList {
	if endpoint == "" {
		endpoint = DefaultAniListURL
	}
	return &AniList{
		URL:     endpoint,
		PerPage: 50,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Pick:    defaultPicker,
	}
}

type aniListResponse struct {
	Data struct {
		Page struct {
			Media []struct {
				ID    int `json:"id"`
				Title struct {
					Romaji  string `json:"romaji"`
					English string `json:"english"`
					Native  string `json:"native"`
				} `json:"title"`
				CoverImage struct {
					Large string `json:"large"`
				} `json:"coverImage"`
				StartDate struct {
					Year int `json:"year"`
				} `json:"startDate"`
			} `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *AniList) Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error) {
	if category != models.CategoryAnime {
		return models.ShowContent{}, fmt.Errorf("anilist: %w: %s", ErrUnsupportedCategory, category)
	}

	body, err := json.Marshal(map[string]any{
		"query": aniListQuery,
		"variables": map[string]int{
			"page":    pageFor(roundIndex, 10, a.Pick),
			"perPage": a.PerPage,
		},
	})
	if err != nil {
		return models.ShowContent{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return models.ShowContent{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp aniListResponse
	if err := doJSON(a.Client, req, &resp); err != nil {
		return models.ShowContent{}, fmt.Errorf("anilist: %w", err)
	}
	if len(resp.Errors) > 0 {
		return models.ShowContent{}, fmt.Errorf("anilist: %s", resp.Errors[0].Message)
	}

	media := resp.Data.Page.Media[:0]
	for _, m := range resp.Data.Page.Media {
		if m.CoverImage.Large != "" && (m.Title.English != "" || m.Title.Romaji != "") {
			media = append(media, m)
		}
	}
	if len(media) == 0 {
		return models.ShowContent{}, fmt.Errorf("anilist: %w", ErrNoResults)
	}
	m := media[a.Pick(len(media))]

	title := m.Title.English
	if title == "" {
		title = m.Title.Romaji
	}
	return models.ShowContent{
		ID:                "anilist-" + strconv.Itoa(m.ID),
		Title:             title,
		ImageURL:          m.CoverImage.Large,
		AlternativeTitles: altTitles(title, m.Title.Romaji, m.Title.English, m.Title.Native),
		Category:          models.CategoryAnime,
		Year:              m.StartDate.Year,
	}, nil
}
