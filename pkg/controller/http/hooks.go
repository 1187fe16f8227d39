package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/controller/router"
)

// HookHandler ingests SCM event notifications
type HookHandler struct {
	secret string
	router *router.Router
}

// NewHookHandler creates a HookHandler verifying payloads with the given
// shared secret
func NewHookHandler(secret string, r *router.Router) *HookHandler {
	return &HookHandler{secret: secret, router: r}
}

// Handle processes one notification request. The response carries the
// watermark sequence assigned to the event so callers can drain on it.
func (h *HookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		writeError(w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Drover-Signature-256")
	if !h.verifySignature(body, signature) {
		logger.Warn("Invalid event signature")
		writeError(w, goerr.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	deliveryID := r.Header.Get("X-Drover-Delivery")
	mark, err := h.router.Route(ctx, deliveryID, body)
	if err != nil {
		logger.Warn("Rejected event notification", "error", err, "delivery", deliveryID)
		writeError(w, err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "accepted",
		"watermark": mark,
	}); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// verifySignature verifies the HMAC-SHA256 payload signature
func (h *HookHandler) verifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}

	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(payload)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expectedMAC))
}
