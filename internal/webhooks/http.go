package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gamevault/internal/catalog"
	"gamevault/internal/logging"
)

// MaxBodyBytes caps a webhook request body.
const MaxBodyBytes = 32 << 10

// SecretHeader carries the shared secret registered with the catalog.
const SecretHeader = "X-Secret"

// Submitter accepts events for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, evt Event) (uint64, error)
}

// HTTPHandler receives catalog webhooks.
type HTTPHandler struct {
	secret    []byte
	submitter Submitter
	logger    *slog.Logger
}

// NewHTTPHandler builds the intake handler.
func NewHTTPHandler(secret string, submitter Submitter, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		secret:    []byte(secret),
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "webhook-intake"),
	}
}

// Routes mounts POST /games/{method}.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/games/{method}", h.handleGame)
	return r
}

func (h *HTTPHandler) handleGame(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	method, err := ParseMethod(chi.URLParam(r, "method"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var game catalog.Game
	if err := json.NewDecoder(r.Body).Decode(&game); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid game payload"})
		return
	}

	seq, err := h.submitter.Submit(r.Context(), Event{Method: method, Game: game})
	if err != nil {
		logging.WarnWithContext(h.logger, "webhook not enqueued", "webhook_enqueue_failed",
			logging.GameID(game.ID),
			logging.String("method", string(method)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the daemon is running"),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not accepting events"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": seq})
}

func (h *HTTPHandler) authorized(r *http.Request) bool {
	got := []byte(r.Header.Get(SecretHeader))
	return len(h.secret) > 0 && subtle.ConstantTimeCompare(got, h.secret) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
