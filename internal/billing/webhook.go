package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/metrics"
)

// maxBodySize is the maximum accepted webhook payload (1 MB).
const maxBodySize = 1 << 20

// WebhookHandler verifies, dedupes and dispatches payment events.
type WebhookHandler struct {
	secret     string
	tolerance  time.Duration
	dispatcher *Dispatcher
	dedupe     Deduper
	now        func() time.Time
}

// NewWebhookHandler creates a handler. secret is the endpoint signing
// secret from the provider dashboard. A nil dedupe uses process memory.
func NewWebhookHandler(secret string, dispatcher *Dispatcher, dedupe Deduper) *WebhookHandler {
	if dedupe == nil {
		dedupe = NewMemoryDeduper(DefaultDedupeTTL)
	}
	return &WebhookHandler{
		secret:     secret,
		tolerance:  DefaultTolerance,
		dispatcher: dispatcher,
		dedupe:     dedupe,
		now:        time.Now,
	}
}

type webhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Handlers  int  `json:"handlers"`
	Failed    int  `json:"failed"`
}

// ServeHTTP accepts POST deliveries only.
//
// Handler failures are reported in the response body but still answered
// with 200: the provider would otherwise redeliver and repeat the handlers
// that already succeeded.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		log.Error().Err(err).Msg("Billing webhook: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodySize {
		log.Warn().Msg("Billing webhook: body exceeds limit")
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := VerifySignature(body, r.Header.Get(SignatureHeader), h.secret, h.tolerance, h.now()); err != nil {
		log.Warn().Err(err).Msg("Billing webhook: signature rejected")
		status := http.StatusForbidden
		if errors.Is(err, ErrMalformedHeader) {
			status = http.StatusBadRequest
		}
		http.Error(w, "invalid signature", status)
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("Billing webhook: invalid event payload")
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	first, err := h.dedupe.Claim(r.Context(), ev.ID)
	if err != nil {
		log.Warn().Err(err).Str("eventId", ev.ID).Msg("Billing webhook: dedupe check failed, processing anyway")
		first = true
	}
	if !first {
		log.Info().Str("eventId", ev.ID).Str("eventType", ev.Type).Msg("Duplicate billing event ignored")
		writeJSON(w, webhookResponse{Received: true, Duplicate: true})
		return
	}

	start := time.Now()
	report := h.dispatcher.Dispatch(r.Context(), ev)

	metrics.New(metrics.Namespace).
		Dimension("Operation", "billingWebhook").
		Count("WebhookEvents").
		Metric("WebhookHandlerFailures", float64(report.Failed()), metrics.UnitCount).
		Since("WebhookDispatchMs", start).
		Property("eventType", ev.Type).
		Flush()

	log.Info().
		Str("eventId", ev.ID).
		Str("eventType", ev.Type).
		Int("handlers", len(report.Outcomes)).
		Int("failed", report.Failed()).
		Msg("Billing event dispatched")

	writeJSON(w, webhookResponse{
		Received: true,
		Handlers: len(report.Outcomes),
		Failed:   report.Failed(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
