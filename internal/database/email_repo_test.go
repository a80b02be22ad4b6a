package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailvault/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testMessage(messageID string, dateSent time.Time) *models.Message {
	return &models.Message{
		MessageID:   messageID,
		DateSent:    dateSent,
		Subject:     "quarterly report",
		FromAddress: "sender@example.com",
		FromName:    "Sender",
		BodyText:    "please find the report attached",
		Snippet:     "please find the report attached",
		SizeBytes:   1024,
		Folder:      "INBOX",
	}
}

func TestInsertEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := testMessage("<m1@example.com>", time.Now())
	recipients := []*models.Recipient{
		{Type: models.RecipientTo, Address: "Alice@X.com", Name: "Alice"},
		{Type: models.RecipientCc, Address: "c@x.com"},
	}
	attachments := []*models.Attachment{
		{Filename: "report.pdf", ContentType: "application/pdf", SizeBytes: 512},
	}

	id, err := db.InsertEmail(ctx, msg, recipients, attachments)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	stored, err := db.GetEmailByMessageID(ctx, "<m1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", stored.Subject)
	assert.True(t, stored.HasAttachments)
	assert.Equal(t, 1, stored.AttachmentCount)

	storedRecipients, err := db.GetRecipients(ctx, id)
	require.NoError(t, err)
	require.Len(t, storedRecipients, 2)
	// Addresses are lower-cased and the domain is derived from them
	assert.Equal(t, "alice@x.com", storedRecipients[0].Address)
	assert.Equal(t, "x.com", storedRecipients[0].Domain)
	assert.Equal(t, "x.com", storedRecipients[1].Domain)

	storedAttachments, err := db.GetAttachments(ctx, id)
	require.NoError(t, err)
	require.Len(t, storedAttachments, 1)
	assert.Equal(t, "pdf", storedAttachments[0].FileExtension)
}

func TestInsertEmailComputesAttachmentFlags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Caller-supplied flags are not trusted
	msg := testMessage("<m2@example.com>", time.Now())
	msg.HasAttachments = true
	msg.AttachmentCount = 42

	id, err := db.InsertEmail(ctx, msg, nil, nil)
	require.NoError(t, err)

	stored, err := db.GetEmailByMessageID(ctx, "<m2@example.com>")
	require.NoError(t, err)
	assert.False(t, stored.HasAttachments)
	assert.Equal(t, 0, stored.AttachmentCount)
	assert.Equal(t, id, stored.ID)
}

func TestInsertEmailDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := testMessage("<dup@example.com>", time.Now())
	_, err := db.InsertEmail(ctx, first, nil, nil)
	require.NoError(t, err)

	second := testMessage("<dup@example.com>", time.Now())
	second.Subject = "impostor"
	_, err = db.InsertEmail(ctx, second, nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Prior data untouched
	stored, err := db.GetEmailByMessageID(ctx, "<dup@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", stored.Subject)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM emails`))
	assert.Equal(t, 1, count)
}

func TestInsertEmailAtomicity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := testMessage("<atomic@example.com>", time.Now())
	recipients := []*models.Recipient{
		{Type: models.RecipientTo, Address: "a@x.com"},
		{Type: "carbon", Address: "b@x.com"}, // violates the type CHECK constraint
	}

	_, err := db.InsertEmail(ctx, msg, recipients, nil)
	require.Error(t, err)

	// The failed aggregate left zero rows behind
	var emails, recs, fts int
	require.NoError(t, db.Get(&emails, `SELECT COUNT(*) FROM emails WHERE message_id = ?`, "<atomic@example.com>"))
	require.NoError(t, db.Get(&recs, `SELECT COUNT(*) FROM recipients`))
	require.NoError(t, db.Get(&fts, `SELECT COUNT(*) FROM emails_fts WHERE message_id = ?`, "<atomic@example.com>"))
	assert.Zero(t, emails)
	assert.Zero(t, recs)
	assert.Zero(t, fts)
}

func TestDeleteEmailCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := testMessage("<del@example.com>", time.Now())
	recipients := []*models.Recipient{{Type: models.RecipientTo, Address: "a@x.com"}}
	attachments := []*models.Attachment{{Filename: "notes.txt"}}
	id, err := db.InsertEmail(ctx, msg, recipients, attachments)
	require.NoError(t, err)

	require.NoError(t, db.DeleteEmail(ctx, "<del@example.com>"))

	_, err = db.GetEmailByMessageID(ctx, "<del@example.com>")
	assert.ErrorIs(t, err, ErrNotFound)

	var recs, atts, fts int
	require.NoError(t, db.Get(&recs, `SELECT COUNT(*) FROM recipients WHERE email_id = ?`, id))
	require.NoError(t, db.Get(&atts, `SELECT COUNT(*) FROM attachments WHERE email_id = ?`, id))
	require.NoError(t, db.Get(&fts, `SELECT COUNT(*) FROM emails_fts WHERE message_id = ?`, "<del@example.com>"))
	assert.Zero(t, recs)
	assert.Zero(t, atts)
	assert.Zero(t, fts)

	assert.ErrorIs(t, db.DeleteEmail(ctx, "<del@example.com>"), ErrNotFound)
}

func TestListRecentEmails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"<old@x>", "<mid@x>", "<new@x>"} {
		msg := testMessage(id, base.Add(time.Duration(i)*time.Hour))
		if id == "<mid@x>" {
			msg.Folder = "Archive"
		}
		_, err := db.InsertEmail(ctx, msg, nil, nil)
		require.NoError(t, err)
	}

	emails, err := db.ListRecentEmails(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, emails, 3)
	assert.Equal(t, "<new@x>", emails[0].MessageID)
	assert.Equal(t, "<old@x>", emails[2].MessageID)

	inbox, err := db.ListRecentEmails(ctx, 10, "INBOX")
	require.NoError(t, err)
	assert.Len(t, inbox, 2)

	limited, err := db.ListRecentEmails(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "<new@x>", limited[0].MessageID)
}

func TestSearchEmails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	invoice := testMessage("<inv@x>", time.Now())
	invoice.Subject = "invoice for march"
	invoice.BodyText = "your invoice is attached"
	_, err := db.InsertEmail(ctx, invoice, []*models.Recipient{
		{Type: models.RecipientTo, Address: "billing@corp.example"},
	}, []*models.Attachment{
		{Filename: "statement.pdf", ContentType: "application/pdf"},
	})
	require.NoError(t, err)

	other := testMessage("<other@x>", time.Now())
	other.Subject = "lunch plans"
	other.BodyText = "are you free tomorrow"
	_, err = db.InsertEmail(ctx, other, nil, nil)
	require.NoError(t, err)

	// By subject/body
	results, err := db.SearchEmails(ctx, "invoice", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "<inv@x>", results[0].MessageID)

	// By recipient address token
	results, err = db.SearchEmails(ctx, "billing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "<inv@x>", results[0].MessageID)

	// By attachment filename token
	results, err = db.SearchEmails(ctx, "statement", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "<inv@x>", results[0].MessageID)

	// No match
	results, err = db.SearchEmails(ctx, "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEmailsOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Weakest match gets the newest date: relevance must still win
	weak := testMessage("<weak@x>", base.Add(2*time.Hour))
	weak.Subject = "weekly notes"
	weak.BodyText = "the budget line is buried in a long discussion of staffing plans travel costs and office supplies"
	weak.Snippet = weak.BodyText
	_, err := db.InsertEmail(ctx, weak, nil, nil)
	require.NoError(t, err)

	strongOld := testMessage("<strong-old@x>", base)
	strongOld.Subject = "budget"
	strongOld.BodyText = "budget"
	strongOld.Snippet = "budget"
	_, err = db.InsertEmail(ctx, strongOld, nil, nil)
	require.NoError(t, err)

	strongNew := testMessage("<strong-new@x>", base.Add(time.Hour))
	strongNew.Subject = "budget"
	strongNew.BodyText = "budget"
	strongNew.Snippet = "budget"
	_, err = db.InsertEmail(ctx, strongNew, nil, nil)
	require.NoError(t, err)

	results, err := db.SearchEmails(ctx, "budget", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Identically indexed messages tie on rank, newest date_sent breaks
	// the tie; the weaker match sorts last despite its newer date.
	assert.Equal(t, "<strong-new@x>", results[0].MessageID)
	assert.Equal(t, "<strong-old@x>", results[1].MessageID)
	assert.Equal(t, "<weak@x>", results[2].MessageID)
}

func TestSearchIndexFollowsUpdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := testMessage("<upd@x>", time.Now())
	msg.Subject = "draft proposal"
	_, err := db.InsertEmail(ctx, msg, nil, nil)
	require.NoError(t, err)

	// Exactly one index entry per message
	var fts int
	require.NoError(t, db.Get(&fts, `SELECT COUNT(*) FROM emails_fts WHERE message_id = ?`, "<upd@x>"))
	assert.Equal(t, 1, fts)

	// Direct updates flow through to the index via the trigger
	_, err = db.ExecContext(ctx, `UPDATE emails SET subject = 'final proposal' WHERE message_id = ?`, "<upd@x>")
	require.NoError(t, err)

	results, err := db.SearchEmails(ctx, "final", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = db.SearchEmails(ctx, "draft", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateEmailFlag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.InsertEmail(ctx, testMessage("<flag@x>", time.Now()), nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.UpdateEmailFlag(ctx, "<flag@x>", "is_starred", true))

	stored, err := db.GetEmailByMessageID(ctx, "<flag@x>")
	require.NoError(t, err)
	assert.True(t, stored.IsStarred)
	assert.False(t, stored.IsRead)

	// Unknown flag names are rejected
	assert.Error(t, db.UpdateEmailFlag(ctx, "<flag@x>", "subject", true))

	// Unknown message IDs are a silent no-op
	assert.NoError(t, db.UpdateEmailFlag(ctx, "<missing@x>", "is_read", true))
}

func TestUpdateEmailFolder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.InsertEmail(ctx, testMessage("<move@x>", time.Now()), nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.UpdateEmailFolder(ctx, "<move@x>", "Archive"))

	stored, err := db.GetEmailByMessageID(ctx, "<move@x>")
	require.NoError(t, err)
	assert.Equal(t, "Archive", stored.Folder)

	assert.NoError(t, db.UpdateEmailFolder(ctx, "<missing@x>", "Archive"))
}

func TestGetEmailByMessageIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetEmailByMessageID(context.Background(), "<nope@x>")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatistics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalEmails)
	assert.Zero(t, empty.AvgSizeBytes)

	first := testMessage("<s1@x>", time.Now())
	first.ThreadID = "t1"
	first.SizeBytes = 100
	_, err = db.InsertEmail(ctx, first, nil, []*models.Attachment{{Filename: "a.txt"}})
	require.NoError(t, err)

	second := testMessage("<s2@x>", time.Now())
	second.ThreadID = "t2"
	second.FromAddress = "other@example.com"
	second.IsRead = true
	second.IsStarred = true
	second.SizeBytes = 300
	_, err = db.InsertEmail(ctx, second, nil, nil)
	require.NoError(t, err)

	stats, err := db.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEmails)
	assert.Equal(t, int64(1), stats.UnreadCount)
	assert.Equal(t, int64(1), stats.StarredCount)
	assert.Equal(t, int64(1), stats.WithAttachments)
	assert.Equal(t, int64(2), stats.ThreadCount)
	assert.Equal(t, int64(2), stats.UniqueSenders)
	assert.InDelta(t, 200.0, stats.AvgSizeBytes, 0.001)
	assert.NotEmpty(t, stats.OldestEmail)
	assert.NotEmpty(t, stats.NewestEmail)
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.PDF", "pdf"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{"trailing.", ""},
		{"logo.png", "png"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fileExtension(tt.filename), tt.filename)
	}
}
