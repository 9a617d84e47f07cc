package avatar

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// streamCommand is a client message on the pose stream.
type streamCommand struct {
	Prompt string `json:"prompt"`
}

// StreamPose handles GET /sessions/{session_id}/stream. After the WebSocket
// upgrade the server samples the session once per frame and sends the pose as
// JSON. Clients may send {"prompt": "..."} to request a new animation; the
// stream keeps sending the previous pose until it arrives.
func (h *Handler) StreamPose(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if _, err := h.svc.GetSession(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd streamCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Prompt != "" {
				h.svc.RequestAnimationAsync(id, cmd.Prompt)
			}
		}
	}()

	ticker := time.NewTicker(h.frameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			pose, err := h.svc.Pose(id, nil)
			if errors.Is(err, ErrSessionNotFound) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(writeWait))
				return
			}
			if err != nil {
				h.log.Error("pose sampling failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(pose); err != nil {
				h.log.Debug("pose stream closed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
				return
			}
		}
	}
}
