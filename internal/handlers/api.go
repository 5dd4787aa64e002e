// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/showguessr/server/internal/lobby"
	"github.com/showguessr/server/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// API serves the read-only HTTP endpoints.
type API struct {
	Registry *lobby.Registry
	Hub      *Hub
	// PublicURL is the web client's base URL used in join links. When empty it is
	// derived from the request.
	PublicURL string
	Log       *logrus.Logger
}

// LobbySummary is the listing view of a lobby.
type LobbySummary struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Status     models.LobbyStatus `json:"status"`
	Players    int                `json:"players"`
	MaxPlayers int                `json:"maxPlayers"`
	Category   models.Category    `json:"category"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health reports liveness plus a few counters.
func (a *API) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"lobbies":     len(a.Registry.ListLobbies()),
		"connections": a.Hub.Connections(),
	})
}

// ListLobbies returns lobby summaries, optionally filtered by ?status=.
func (a *API) ListLobbies(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := models.LobbyStatus(r.URL.Query().Get("status"))
	out := make([]LobbySummary, 0)
	for _, l := range a.Registry.ListLobbies() {
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, LobbySummary{
			ID:         l.ID,
			Name:       l.Name,
			Status:     l.Status,
			Players:    len(l.Players),
			MaxPlayers: l.Settings.MaxPlayers,
			Category:   l.Settings.Category,
			CreatedAt:  l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) lobbyFromParams(w http.ResponseWriter, ps httprouter.Params) (models.Lobby, bool) {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lobby id")
		return models.Lobby{}, false
	}
	l, err := a.Registry.GetLobby(id)
	if errors.Is(err, lobby.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return models.Lobby{}, false
	}
	if err != nil {
		a.Log.WithError(err).Error("get lobby")
		writeError(w, http.StatusInternalServerError, "internal error")
		return models.Lobby{}, false
	}
	return l, true
}

// GetLobby returns one lobby.
func (a *API) GetLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if l, ok := a.lobbyFromParams(w, ps); ok {
		writeJSON(w, http.StatusOK, l)
	}
}

// LobbyQR renders a PNG QR code of the lobby's join link.
func (a *API) LobbyQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	l, ok := a.lobbyFromParams(w, ps)
	if !ok {
		return
	}
	png, err := qrcode.Encode(a.joinURL(r, l.ID), qrcode.Medium, qrSize)
	if err != nil {
		a.Log.WithError(err).Error("qr generation failed")
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (a *API) joinURL(r *http.Request, id uuid.UUID) string {
	base := strings.TrimRight(a.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + id.String()
}
