// Package content fetches the shows players guess, from remote catalogues
// (TMDB, AniList) or from a built-in offline list.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/showguessr/server/internal/models"
)

var (
	// ErrNotConfigured is returned by providers missing credentials.
	ErrNotConfigured = errors.New("content provider not configured")
	// ErrUnsupportedCategory is returned for a category a provider cannot serve.
	ErrUnsupportedCategory = errors.New("unsupported category")
	// ErrNoResults means the upstream returned nothing usable.
	ErrNoResults = errors.New("no usable results")
)

// Provider fetches one show for a category. roundIndex starts at 1; later rounds
// draw from deeper, less popular result pages.
type Provider interface {
	Fetch(ctx context.Context, category models.Category, roundIndex int) (models.ShowContent, error)
}

// Picker returns a pseudo-random int in [0, n).
type Picker func(n int) int

func defaultPicker(n int) int { return rand.Intn(n) }

// pageFor maps a round index onto a result page. Every three rounds the base page
// moves one deeper, with some jitter, never exceeding maxPage.
func pageFor(roundIndex, maxPage int, pick Picker) int {
	if roundIndex < 1 {
		roundIndex = 1
	}
	page := 1 + (roundIndex-1)/3 + pick(3)
	if page > maxPage {
		page = maxPage
	}
	return page
}

// yearOf extracts the year from a YYYY-MM-DD date, or 0.
func yearOf(date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	return t.Year()
}

// altTitles returns the non-empty, distinct names that differ from title.
func altTitles(title string, names ...string) []string {
	var out []string
	seen := map[string]bool{title: true}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
