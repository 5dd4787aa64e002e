// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/showguessr/server/internal/game"
	"github.com/showguessr/server/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 4096
	outQueueSize = 32
)

// WSHandler upgrades /ws requests and pumps messages between the socket and the
// router until either side goes away.
func WSHandler(logger *logrus.Logger, hub *Hub, router *game.Router, originPatterns []string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the showguessr subprotocol")
			return
		}
		c.SetReadLimit(readLimit)

		client := hub.Register(outQueueSize)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, client.ID)

		ctx, cancel := context.WithCancel(r.Context())
		go writePump(ctx, c, client, logger)
		err = readPump(ctx, c, client.ID, router, logger)

		// Leave the lobby first so the departure is broadcast to the others.
		router.Disconnect(client.ID)
		hub.Unregister(client.ID)
		cancel()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, client.ID, err)
	}
}

// readPump feeds inbound text frames to the router. It returns nil on a clean
// close and the read error otherwise.
func readPump(ctx context.Context, c *websocket.Conn, connID string, router *game.Router, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, ServerShutdownError:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.WithField("conn", connID).Warn("ignoring non-text message")
			continue
		}
		router.HandleMessage(connID, data)
	}
}

func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.closing:
			_ = c.Close(ServerShutdownError, "server shutting down")
			return
		case ev := <-client.OutChan:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.WithError(err).WithField("type", ev.Type).Error("marshal outbound event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", client.ID).Warn("websocket write failed")
				_ = c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", client.ID).Debug("ping failed")
				_ = c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}
