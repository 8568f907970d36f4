package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/nls08/NLS-Portal-sub001/logging"
)

const maxDecodeErrors = 5

type inboundFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Handler upgrades GET requests to websocket listeners. identityOf, when non-nil,
// supplies the authenticated identity for the request; it is pinned on the peer.
func Handler(hub *Hub, identityOf func(r *http.Request) (Identity, bool)) http.Handler {
	ws := websocket.Server{
		// Origin checks are left to the CORS and auth middleware in front of the route.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			serveConn(hub, conn, identityOf)
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws.ServeHTTP(w, r)
	})
}

func serveConn(hub *Hub, conn *websocket.Conn, identityOf func(r *http.Request) (Identity, bool)) {
	peer := hub.Connect(conn)
	defer hub.Unregister(peer)

	if identityOf != nil {
		if id, ok := identityOf(conn.Request()); ok {
			peer.identify(id, true)
		}
	}

	// Frames are decoded one websocket message at a time; a malformed message is skipped.
	decodeErrors := 0
	for {
		var frame inboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if errors.Is(err, io.EOF) || peer.Closed() {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) && !errors.Is(err, websocket.ErrFrameTooLarge) {
				return
			}
			decodeErrors++
			logging.Logger.Debugf("Event ID: WS_BAD_FRAME, Description: Peer %s sent an invalid frame: %v", peer.ID, err)
			if decodeErrors >= maxDecodeErrors {
				logging.Logger.Warnf("Event ID: WS_TOO_MANY_BAD_FRAMES, Description: Closing peer %s after %d invalid frames", peer.ID, decodeErrors)
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Type {
		case "identify":
			hub.Identify(peer, Identity{UserID: frame.UserID, Name: frame.Name})
			id := peer.Identity()
			logging.Logger.Debugf("Event ID: WS_PEER_IDENTIFIED, Description: Peer %s identified as %s", peer.ID, id.UserID)
			ack, _ := json.Marshal(map[string]interface{}{"type": "identified", "userId": id.UserID, "name": id.Name})
			peer.enqueue(ack)
		case "ping":
			peer.enqueue([]byte(`{"type":"pong"}`))
		}
	}
}
