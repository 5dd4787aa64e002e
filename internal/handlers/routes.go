// internal/handlers/routes.go
package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/showguessr/server/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Routes builds the HTTP handler for the whole service.
func Routes(logger *logrus.Logger, api *API, ws httprouter.Handle, corsOrigin string) http.Handler {
	mux := httprouter.New()
	mux.GET("/healthz", api.Health)
	mux.GET("/api/lobbies", api.ListLobbies)
	mux.GET("/api/lobbies/:id", api.GetLobby)
	mux.GET("/api/lobbies/:id/qr", api.LobbyQR)
	mux.GET("/ws", ws)

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		logger.WithFields(logrus.Fields{"path": r.URL.Path, "panic": v}).Error("handler panicked")
		writeError(w, http.StatusInternalServerError, "internal error")
	}

	return middleware.CORS(corsOrigin)(middleware.LogMiddleware(logger)(mux))
}
