package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/trickstertwo/xcomm"
)

// HandlerFunc consumes one decoded notification.
type HandlerFunc func(ctx context.Context, e *xcomm.Event) error

// Receiver is an http.Handler that decodes hub notifications.
// It answers 204 on success, 400 for undecodable bodies and 500 when the
// handler fails, so the sending side counts it as a failed dispatch.
type Receiver struct {
	Codec   xcomm.Codec
	Handler HandlerFunc
	// MaxBody caps the accepted payload size (default: 1 MiB).
	MaxBody int64
}

func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := rc.MaxBody
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	e, err := xcomm.DecodeEvent(rc.Codec, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rc.Handler != nil {
		if err := rc.Handler(r.Context(), e); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
