package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

const modelContentType = "application/octet-stream"

// MotionProxy forwards a raw request body to the text-to-motion service.
type MotionProxy interface {
	Forward(ctx context.Context, body []byte) (code int, status string, resp []byte, err error)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("File not found"))
}

// serveFile streams path with contentType, or a plain-text 404.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		h.log.Error("error sending file", slog.String("path", path), slog.String("error", err.Error()))
		notFound(w)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		notFound(w)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, h.cfg.IndexFile, "text/html; charset=utf-8")
}

// Static serves the client assets under /static/.
func (h *Handler) Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(h.cfg.StaticDir)))
}

// Model handles GET /models/{filename}, serving the binary model asset.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if name == "" || name != filepath.Base(name) || name == ".." || name == "." {
		notFound(w)
		return
	}
	h.serveFile(w, r, filepath.Join(h.cfg.ModelsDir, name), modelContentType)
}

// ClientConfig handles GET /config.js, the module the browser imports its
// settings from.
func (h *Handler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	key, _ := json.Marshal(h.cfg.ClientAPIKey)
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprintf(w, "export const TEXT2MOTION_API_KEY = %s;\n", key)
	fmt.Fprintf(w, "export const TEXT2MOTION_PROXY_URL = %q;\n", "/api/text2motion")
	fmt.Fprintf(w, "export const FRAME_RATE = %d;\n", h.cfg.FrameRate)
}

// ProxyMotion handles POST /api/text2motion: the body ({ prompt,
// target_skeleton }) is forwarded with the server's API key and the upstream
// JSON is returned unchanged.
func (h *Handler) ProxyMotion(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Proxy == nil {
		writeError(w, http.StatusServiceUnavailable, ErrMotionUnavailable.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	code, status, resp, err := h.cfg.Proxy.Forward(r.Context(), body)
	if h.metrics != nil {
		var failed error = err
		if err == nil && (code < 200 || code > 299) {
			failed = fmt.Errorf("status %d", code)
		}
		h.metrics.ObserveMotion(failed)
	}
	if err != nil {
		h.log.Error("text2motion proxy failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if code < 200 || code > 299 {
		h.log.Info("text2motion upstream error", slog.Int("status", code))
		writeError(w, code, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}
