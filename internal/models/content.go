package models

// Category selects which content provider a lobby draws shows from.
type Category string

const (
	CategoryAnime    Category = "anime"
	CategoryMovie    Category = "movie"
	CategoryCartoon  Category = "cartoon"
	CategoryTVSeries Category = "tv_series"
)

// Categories lists every supported category.
var Categories = []Category{CategoryAnime, CategoryMovie, CategoryCartoon, CategoryTVSeries}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ShowContent is the media item players guess during a round.
type ShowContent struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	ImageURL          string   `json:"imageUrl"`
	AlternativeTitles []string `json:"alternativeTitles,omitempty"`
	Category          Category `json:"category"`
	Year              int      `json:"year,omitempty"`
}

// Clone copies the show, including its alternative titles.
func (s ShowContent) Clone() ShowContent {
	if s.AlternativeTitles != nil {
		alts := make([]string, len(s.AlternativeTitles))
		copy(alts, s.AlternativeTitles)
		s.AlternativeTitles = alts
	}
	return s
}
