// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // client did not negotiate the showguessr subprotocol
	ServerShutdownError websocket.StatusCode = 3001 // server is shutting down
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "showguessr"
