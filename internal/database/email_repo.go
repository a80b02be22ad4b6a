package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mixelka/mailvault/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// Flags that UpdateEmailFlag may touch. Maps the caller-visible flag name
// to its column; anything else is rejected before it reaches SQL.
var flagColumns = map[string]string{
	"is_read":      "is_read",
	"is_starred":   "is_starred",
	"is_important": "is_important",
	"is_draft":     "is_draft",
	"is_sent":      "is_sent",
	"is_trash":     "is_trash",
	"is_spam":      "is_spam",
}

// InsertEmail inserts a message together with its recipients and attachments
// as one transaction. The FTS entry is populated inside the same transaction:
// the insert trigger fills the message fields, and the recipient/attachment
// columns are set explicitly before commit. has_attachments and
// attachment_count are computed from the attachments slice, not taken from
// the caller.
//
// Returns ErrAlreadyExists if a message with the same message_id is already
// stored. Two racing inserts of the same message_id are resolved by the
// UNIQUE constraint; the loser also gets ErrAlreadyExists.
func (db *DB) InsertEmail(ctx context.Context, msg *models.Message, recipients []*models.Recipient, attachments []*models.Attachment) (int64, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = ?)`, msg.MessageID); err != nil {
		return 0, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if exists {
		return 0, ErrAlreadyExists
	}

	now := time.Now()
	dateReceived := msg.DateReceived
	if dateReceived.IsZero() {
		dateReceived = now
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO emails (
			message_id, thread_id, in_reply_to, email_references,
			date_sent, date_received, subject, from_address, from_name,
			reply_to, body_text, body_html, snippet,
			is_read, is_starred, is_important, is_draft, is_sent,
			is_trash, is_spam, size_bytes, has_attachments,
			attachment_count, folder, labels, raw_headers, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.MessageID,
		msg.ThreadID,
		msg.InReplyTo,
		msg.References,
		msg.DateSent,
		dateReceived,
		msg.Subject,
		msg.FromAddress,
		msg.FromName,
		msg.ReplyTo,
		msg.BodyText,
		msg.BodyHTML,
		msg.Snippet,
		msg.IsRead,
		msg.IsStarred,
		msg.IsImportant,
		msg.IsDraft,
		msg.IsSent,
		msg.IsTrash,
		msg.IsSpam,
		msg.SizeBytes,
		len(attachments) > 0,
		len(attachments),
		msg.Folder,
		msg.Labels,
		msg.RawHeaders,
		now,
		now,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}

	emailID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, r := range recipients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipients (email_id, type, address, name)
			VALUES (?, ?, ?, ?)
		`, emailID, r.Type, strings.ToLower(r.Address), r.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to insert recipient: %w", err)
		}
	}

	for _, a := range attachments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (email_id, filename, content_type, size_bytes, content_id, is_inline, file_extension)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, emailID, a.Filename, a.ContentType, a.SizeBytes, a.ContentID, a.IsInline, fileExtension(a.Filename))
		if err != nil {
			return 0, fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	// The insert trigger only covers the message fields; fold the recipient
	// addresses and attachment names into the FTS entry before commit.
	addresses := make([]string, 0, len(recipients))
	for _, r := range recipients {
		addresses = append(addresses, strings.ToLower(r.Address))
	}
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Filename)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE emails_fts
		SET recipient_addresses = ?, attachment_names = ?
		WHERE message_id = ?
	`, strings.Join(addresses, " "), strings.Join(names, " "), msg.MessageID)
	if err != nil {
		return 0, fmt.Errorf("failed to update search index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("failed to commit email: %w", err)
	}

	msg.ID = emailID
	msg.HasAttachments = len(attachments) > 0
	msg.AttachmentCount = len(attachments)
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return emailID, nil
}

// GetEmailByMessageID returns a message by its Message-ID
func (db *DB) GetEmailByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	query := `SELECT * FROM emails WHERE message_id = ?`
	err := db.GetContext(ctx, &msg, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &msg, nil
}

// EmailExists reports whether a message with the given Message-ID is stored
func (db *DB) EmailExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = ?)`, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// ListRecentEmails returns the most recent messages, newest date_sent first.
// An empty folder matches all folders.
func (db *DB) ListRecentEmails(ctx context.Context, limit int, folder string) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var emails []*models.Message
	var err error
	if folder != "" {
		query := `SELECT * FROM emails WHERE folder = ? ORDER BY date_sent DESC LIMIT ?`
		err = db.SelectContext(ctx, &emails, query, folder, limit)
	} else {
		query := `SELECT * FROM emails ORDER BY date_sent DESC LIMIT ?`
		err = db.SelectContext(ctx, &emails, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// SearchEmails runs a full-text query over subject, sender, body, recipient
// addresses and attachment names. Results follow FTS5 relevance order with
// newest date_sent as tie-break.
func (db *DB) SearchEmails(ctx context.Context, query string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 30
	}

	// The left side of an FTS5 MATCH must be the table name itself, an
	// alias is rejected with "no such column".
	var emails []*models.Message
	err := db.SelectContext(ctx, &emails, `
		SELECT e.* FROM emails e
		JOIN emails_fts ON e.message_id = emails_fts.message_id
		WHERE emails_fts MATCH ?
		ORDER BY emails_fts.rank, e.date_sent DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	return emails, nil
}

// UpdateEmailFlag sets a single boolean flag on a message. Unknown message
// IDs are a silent no-op so repeated flag updates stay idempotent.
func (db *DB) UpdateEmailFlag(ctx context.Context, messageID, flag string, value bool) error {
	column, ok := flagColumns[flag]
	if !ok {
		return fmt.Errorf("unknown flag %q", flag)
	}

	query := fmt.Sprintf(`UPDATE emails SET %s = ?, updated_at = ? WHERE message_id = ?`, column)
	_, err := db.ExecContext(ctx, query, value, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to update flag: %w", err)
	}
	return nil
}

// UpdateEmailFolder moves a message to another folder. Unknown message IDs
// are a silent no-op, same as UpdateEmailFlag.
func (db *DB) UpdateEmailFolder(ctx context.Context, messageID, folder string) error {
	query := `UPDATE emails SET folder = ?, updated_at = ? WHERE message_id = ?`
	_, err := db.ExecContext(ctx, query, folder, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return nil
}

// GetRecipients returns all recipients of a stored message
func (db *DB) GetRecipients(ctx context.Context, emailID int64) ([]*models.Recipient, error) {
	var recipients []*models.Recipient
	query := `SELECT * FROM recipients WHERE email_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &recipients, query, emailID); err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	return recipients, nil
}

// GetAttachments returns all attachments of a stored message
func (db *DB) GetAttachments(ctx context.Context, emailID int64) ([]*models.Attachment, error) {
	var attachments []*models.Attachment
	query := `SELECT * FROM attachments WHERE email_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &attachments, query, emailID); err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return attachments, nil
}

// DeleteEmail removes a message. Recipients and attachments cascade, the
// FTS entry is removed by the delete trigger.
func (db *DB) DeleteEmail(ctx context.Context, messageID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM emails WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Statistics computes aggregate counters over all stored messages in a
// single pass.
func (db *DB) Statistics(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics
	err := db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_emails,
			COALESCE(SUM(CASE WHEN is_read = false THEN 1 ELSE 0 END), 0) AS unread_count,
			COALESCE(SUM(CASE WHEN is_starred = true THEN 1 ELSE 0 END), 0) AS starred_count,
			COALESCE(SUM(CASE WHEN has_attachments = true THEN 1 ELSE 0 END), 0) AS with_attachments,
			COUNT(DISTINCT NULLIF(thread_id, '')) AS thread_count,
			COUNT(DISTINCT from_address) AS unique_senders,
			COALESCE(AVG(size_bytes), 0) AS avg_size_bytes,
			COALESCE(MIN(date_sent), '') AS oldest_email,
			COALESCE(MAX(date_sent), '') AS newest_email
		FROM emails
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &stats, nil
}

// fileExtension extracts the lower-cased extension after the last dot.
// Returns "" for filenames without one.
func fileExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// isUniqueConstraintErr reports whether err is a sqlite UNIQUE constraint
// violation, which is how a racing duplicate insert surfaces.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
