package handlers

import (
	"net/http"

	"safeguardai/internal/contextutil"
)

// emptyTwiML acknowledges a Twilio webhook without an inline reply; the real
// answer is sent asynchronously through the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Dispatcher starts background processing of one inbound message.
type Dispatcher interface {
	Handle(from, body, mediaURL, mediaContentType string)
}

// WebhookHandler receives Twilio WhatsApp webhooks. It acks immediately and
// hands the message to the dispatcher; answer synthesis takes far longer than
// Twilio's webhook timeout.
type WebhookHandler struct {
	dispatcher Dispatcher
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(dispatcher Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// ServeHTTP handles POST /webhook/whatsapp.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.WarnContext(r.Context(), "failed to parse webhook form", "error", err)
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	mediaURL := r.PostFormValue("MediaUrl0")
	mediaContentType := r.PostFormValue("MediaContentType0")

	if from == "" {
		logger.WarnContext(r.Context(), "webhook missing From field")
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	logger.InfoContext(r.Context(), "webhook received",
		"from", from, "has_media", mediaURL != "", "length", len(body))

	h.dispatcher.Handle(from, body, mediaURL, mediaContentType)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
