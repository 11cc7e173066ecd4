package storage

import "time"

// User roles.
const (
	RoleWorker     = "worker"
	RoleHSEOfficer = "hse_officer"
)

// Message types recorded on conversations.
const (
	MessageTypeText  = "text"
	MessageTypeVoice = "voice"
)

// UserRecord is one WhatsApp sender. Phone is kept in Twilio format
// ("whatsapp:+XXXXXXXXXXXX").
type UserRecord struct {
	ID          string
	PhoneNumber string
	Role        string
	CreatedAt   time.Time
}

// ConversationRecord is one inbound message and the reply sent for it.
type ConversationRecord struct {
	ID            string
	UserID        string
	Message       string
	Response      string
	MessageType   string
	IncludedImage bool
	CreatedAt     time.Time
}

// SafetyLogRecord is the audit trail of one answered safety question.
// Sources is a comma-separated list of document titles.
type SafetyLogRecord struct {
	ID              string
	UserID          string
	TaskDescription string
	SafetyCheck     string
	Sources         string
	CreatedAt       time.Time
}
