package avatar

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/chat"
	"vrm-avatar/internal/platform/metrics"
	"vrm-avatar/internal/skeleton"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const maxBodyBytes = 8 << 20

// HandlerConfig holds the HTTP-facing settings of a Handler.
type HandlerConfig struct {
	StaticDir string
	ModelsDir string
	IndexFile string

	// Proxy forwards raw text-to-motion calls; nil disables /api/text2motion.
	Proxy MotionProxy
	// ClientAPIKey is exported to the browser through /config.js.
	ClientAPIKey string
	// FrameRate is the pose stream rate in frames per second.
	FrameRate int
}

// Handler exposes the avatar HTTP endpoints using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler that uses the given Service, Logger and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, cfg HandlerConfig) *Handler {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &Handler{svc: svc, log: log, metrics: m, cfg: cfg}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/config.js", h.ClientConfig)
	r.Handle("/static/*", h.Static())
	r.Get("/models/{filename}", h.Model)

	r.Route("/api", func(r chi.Router) {
		r.Post("/text2motion", h.ProxyMotion)
		r.Post("/chat", h.Chat)
	})

	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Delete("/", h.EndSession)
		r.Get("/skeleton", h.GetSkeleton)
		r.Post("/animation", h.RequestAnimation)
		r.Put("/animation", h.PutAnimation)
		r.Post("/idle", h.RequestIdle)
		r.Get("/pose", h.GetPose)
		r.Get("/stream", h.StreamPose)
		r.Post("/chat", h.SessionChat)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, skeleton.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, skeleton.ErrNoRootBone):
		return http.StatusConflict
	case errors.Is(err, ErrNoModel):
		return http.StatusBadRequest
	case errors.Is(err, ErrMotionUnavailable), errors.Is(err, ErrChatUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "session_id"))
}

// decodeOptional decodes a JSON body into v; an empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type createSessionRequest struct {
	Model    string               `json:"model"`
	Skeleton *skeleton.Definition `json:"skeleton"`
}

// CreateSession handles POST /sessions.
// Body (optional): { "model": "avatar.vrm" } or { "skeleton": {...} }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sess, err := h.svc.CreateSession(req.Model, req.Skeleton)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			status = http.StatusBadRequest
		}
		h.log.Info("session rejected", slog.String("model", req.Model), slog.String("error", err.Error()))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sess.ID, "model": sess.Model})
}

// EndSession handles DELETE /sessions/{session_id}.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.EndSession(sessionID(r)); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSkeleton handles GET /sessions/{session_id}/skeleton.
func (h *Handler) GetSkeleton(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Skeleton(sessionID(r))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// RequestAnimation handles POST /sessions/{session_id}/animation.
// Body: { "prompt": "wave hand" }.
func (h *Handler) RequestAnimation(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}

	res, err := h.svc.RequestAnimation(r.Context(), sessionID(r), req.Prompt)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PutAnimation handles PUT /sessions/{session_id}/animation with an
// animation payload ({ "bones": {...} }) as body.
func (h *Handler) PutAnimation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	data, err := animation.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid animation")
		return
	}

	res, err := h.svc.InstallAnimation(sessionID(r), data)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RequestIdle handles POST /sessions/{session_id}/idle. The body is optional.
func (h *Handler) RequestIdle(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := h.svc.RequestIdle(r.Context(), sessionID(r), req.Prompt)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetPose handles GET /sessions/{session_id}/pose[?t=seconds].
func (h *Handler) GetPose(w http.ResponseWriter, r *http.Request) {
	var at *float64
	if s := r.URL.Query().Get("t"); s != "" {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil || t < 0 {
			writeError(w, http.StatusBadRequest, "invalid t")
			return
		}
		at = &t
	}

	pose, err := h.svc.Pose(sessionID(r), at)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pose)
}

// Chat handles POST /api/chat without a session.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, "")
}

// SessionChat handles POST /sessions/{session_id}/chat; a reply with a motion
// animates the session.
func (h *Handler) SessionChat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, sessionID(r))
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, id SessionID) {
	var msg chat.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message")
		return
	}

	reply, err := h.svc.Chat(r.Context(), id, msg)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) frameInterval() time.Duration {
	return time.Second / time.Duration(h.cfg.FrameRate)
}
