package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"safeguardai/internal/contextutil"
)

const twilioAPIBase = "https://api.twilio.com"

// audioExtensions maps Twilio media content types to file extensions for
// transcription.
var audioExtensions = map[string]string{
	"audio/ogg":   ".ogg",
	"audio/oga":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/mp3":   ".mp3",
	"audio/x-m4a": ".m4a",
	"audio/wav":   ".wav",
	"audio/webm":  ".webm",
	"audio/opus":  ".ogg",
}

// TwilioClient sends WhatsApp messages and fetches inbound media through the
// Twilio REST API.
type TwilioClient struct {
	BaseURL         string
	AccountSID      string
	AuthToken       string
	FromNumber      string
	MaxLength       int
	CaptionFallback string
	client          *http.Client
}

// NewTwilioClient creates a Twilio WhatsApp client. fromNumber is in Twilio
// format ("whatsapp:+XXXXXXXXXXXX").
func NewTwilioClient(accountSID, authToken, fromNumber string, maxLength int, captionFallback string) *TwilioClient {
	return &TwilioClient{
		BaseURL:         twilioAPIBase,
		AccountSID:      accountSID,
		AuthToken:       authToken,
		FromNumber:      fromNumber,
		MaxLength:       maxLength,
		CaptionFallback: captionFallback,
		client:          &http.Client{Timeout: 30 * time.Second},
	}
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Send delivers a WhatsApp message, optionally with a media attachment. An
// over-length body is truncated at a word boundary before sending. When a
// media send fails, delivery degrades to a text-only message so the user
// still gets an answer.
func (c *TwilioClient) Send(ctx context.Context, to, message, mediaURL string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(message) > c.MaxLength {
		message = truncateAtWord(message, c.MaxLength)
		logger.WarnContext(ctx, "outgoing message truncated before send", "max", c.MaxLength)
	}

	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	body := message
	if mediaURL != "" && body == "" {
		body = c.CaptionFallback
	}

	err := c.createMessage(ctx, to, body, mediaURL)
	if err == nil {
		logger.InfoContext(ctx, "message sent", "to", to, "with_media", mediaURL != "")
		return nil
	}

	if mediaURL != "" {
		logger.WarnContext(ctx, "send with media failed, falling back to text", "to", to, "error", err)
		caption := message
		if caption == "" {
			caption = c.CaptionFallback
		}
		if fallbackErr := c.createMessage(ctx, to, caption, ""); fallbackErr == nil {
			logger.InfoContext(ctx, "fallback text message sent", "to", to)
			return nil
		} else {
			err = fallbackErr
		}
	}

	if isDailyLimitError(err) {
		logger.WarnContext(ctx, "send failed, Twilio daily message limit exceeded; resets at midnight UTC", "to", to)
	} else {
		logger.ErrorContext(ctx, "send failed", "to", to, "error", err)
	}
	return err
}

// createMessage posts one message to the Twilio Messages endpoint.
func (c *TwilioClient) createMessage(ctx context.Context, to, body, mediaURL string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.BaseURL, c.AccountSID)

	form := url.Values{}
	form.Set("From", c.FromNumber)
	form.Set("To", to)
	if body != "" {
		form.Set("Body", body)
	}
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var msg twilioMessageResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if msg.ErrorCode != nil {
		return fmt.Errorf("twilio error %d: %s", *msg.ErrorCode, msg.ErrorMessage)
	}
	return nil
}

// FetchMedia downloads inbound media with Twilio basic auth and returns its
// bytes plus a filename carrying the right audio extension.
func (c *TwilioClient) FetchMedia(ctx context.Context, mediaURL, contentType string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("bad status %d fetching media", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}

	return data, "voice" + extensionForMedia(contentType), nil
}

// extensionForMedia maps a content type to an audio extension, defaulting to
// .ogg (the WhatsApp voice-note format).
func extensionForMedia(contentType string) string {
	if contentType == "" {
		return ".ogg"
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := audioExtensions[ct]; ok {
		return ext
	}
	return ".ogg"
}

// truncateAtWord trims text to fit maxLen, cutting at the last word boundary
// and closing the final sentence.
func truncateAtWord(text string, maxLen int) string {
	head := text[:maxLen-3]
	if cut := strings.LastIndex(head, " "); cut > 0 {
		head = head[:cut]
	}
	if !strings.HasSuffix(head, ".") && !strings.HasSuffix(head, "!") && !strings.HasSuffix(head, "?") {
		head += "."
	}
	return head
}

// isDailyLimitError reports whether a Twilio error is the sandbox daily
// message cap (error 63038).
func isDailyLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "63038") ||
		strings.Contains(msg, "50 daily messages limit") ||
		(strings.Contains(msg, "exceeded") && strings.Contains(msg, "limit"))
}
