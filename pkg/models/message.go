package models

import "time"

// Message represents one ingested email message
type Message struct {
	ID              int64     `db:"id"`
	MessageID       string    `db:"message_id"`       // Globally unique Message-ID header (or synthesized)
	ThreadID        string    `db:"thread_id"`        // Conversation/thread identifier
	InReplyTo       string    `db:"in_reply_to"`      // In-Reply-To header
	References      string    `db:"email_references"` // References header chain
	DateSent        time.Time `db:"date_sent"`        // Date header
	DateReceived    time.Time `db:"date_received"`    // When the message was ingested
	Subject         string    `db:"subject"`
	FromAddress     string    `db:"from_address"` // Sender email, lower-cased
	FromName        string    `db:"from_name"`    // Sender display name
	ReplyTo         string    `db:"reply_to"`
	BodyText        string    `db:"body_text"`
	BodyHTML        string    `db:"body_html"`
	Snippet         string    `db:"snippet"` // First 200 chars of body_text
	IsRead          bool      `db:"is_read"`
	IsStarred       bool      `db:"is_starred"`
	IsImportant     bool      `db:"is_important"`
	IsDraft         bool      `db:"is_draft"`
	IsSent          bool      `db:"is_sent"`
	IsTrash         bool      `db:"is_trash"`
	IsSpam          bool      `db:"is_spam"`
	SizeBytes       int64     `db:"size_bytes"`
	HasAttachments  bool      `db:"has_attachments"`
	AttachmentCount int       `db:"attachment_count"`
	Folder          string    `db:"folder"`
	Labels          string    `db:"labels"` // Comma-joined free-form label set
	RawHeaders      string    `db:"raw_headers"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Recipient kinds
const (
	RecipientTo  = "to"
	RecipientCc  = "cc"
	RecipientBcc = "bcc"
)

// Recipient represents one addressee of a message
type Recipient struct {
	ID      int64  `db:"id"`
	EmailID int64  `db:"email_id"` // FK to Message
	Type    string `db:"type"`     // "to", "cc" or "bcc"
	Address string `db:"address"`  // Lower-cased email address
	Name    string `db:"name"`     // Display name, may be empty
	Domain  string `db:"domain"`   // Derived from address (generated column)
}

// Attachment represents one file attached to a message
type Attachment struct {
	ID            int64  `db:"id"`
	EmailID       int64  `db:"email_id"` // FK to Message
	Filename      string `db:"filename"`
	ContentType   string `db:"content_type"`
	SizeBytes     int64  `db:"size_bytes"`
	ContentID     string `db:"content_id"` // For inline references
	IsInline      bool   `db:"is_inline"`
	FileExtension string `db:"file_extension"` // Derived from filename (generated column)
}

// SyncStats summarizes one sync batch
type SyncStats struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Statistics holds aggregate counters over all stored messages
type Statistics struct {
	TotalEmails     int64   `db:"total_emails"`
	UnreadCount     int64   `db:"unread_count"`
	StarredCount    int64   `db:"starred_count"`
	WithAttachments int64   `db:"with_attachments"`
	ThreadCount     int64   `db:"thread_count"`
	UniqueSenders   int64   `db:"unique_senders"`
	AvgSizeBytes    float64 `db:"avg_size_bytes"`
	OldestEmail     string  `db:"oldest_email"`
	NewestEmail     string  `db:"newest_email"`
}
