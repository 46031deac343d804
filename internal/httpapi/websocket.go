package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ryym/procfleet/internal/apierr"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Process supervision is an operator tool, not a public web app; the
	// usual same-origin browser check has no meaningful origin to compare
	// against here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTailStream upgrades to a WebSocket and streams LogRecord frames:
// first the requested replay backlog, then every subsequent live record,
// until the client disconnects.
func (s *Server) handleTailStream(w http.ResponseWriter, r *http.Request) {
	if err := s.checker.CheckHeaderOrQuery(r); err != nil {
		writeError(w, err)
		return
	}

	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, perr := strconv.Atoi(v)
		if perr != nil {
			writeError(w, apierr.Validationf("invalid n query parameter: %v", perr))
			return
		}
		n = parsed
	}

	sub, err := sv.Subscribe(n)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sv.Unsubscribe(sub)
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer sv.Unsubscribe(sub)

	// Detect client-initiated close without blocking the write loop on reads.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal log record")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
