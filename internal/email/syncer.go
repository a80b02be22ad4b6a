package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-imap"

	"github.com/mixelka/mailvault/internal/database"
	"github.com/mixelka/mailvault/internal/hooks"
	"github.com/mixelka/mailvault/pkg/models"
)

const defaultSyncWindow = 30 * 24 * time.Hour

// ErrStorage is returned when the store itself becomes unavailable
// mid-batch. Unlike per-message failures it aborts the sync.
var ErrStorage = errors.New("storage unavailable")

// Session is the mailbox session contract the syncer drives. Implemented
// by Client; tests substitute a fake.
type Session interface {
	SelectFolder(ctx context.Context, folder string) (*imap.MailboxStatus, error)
	SearchSince(ctx context.Context, since time.Time) ([]uint32, error)
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)
}

var _ Session = (*Client)(nil)

// Syncer discovers, fetches, parses and stores new messages from a mailbox
// session. One Syncer owns one session; concurrent Sync calls are queued
// on an internal mutex since the session is a single stateful resource.
type Syncer struct {
	session Session
	db      *database.DB
	parser  *Parser
	hooks   *hooks.Registry
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewSyncer creates a syncer over an established session
func NewSyncer(session Session, db *database.DB, registry *hooks.Registry, logger *slog.Logger) *Syncer {
	return &Syncer{
		session: session,
		db:      db,
		parser:  NewParser(logger),
		hooks:   registry,
		logger:  logger.With("component", "syncer"),
	}
}

// Sync runs one batch over the given folder. since zero means the default
// window of the last 30 days; limit <= 0 means no limit.
//
// Per-message failures (fetch, parse, insert) are counted and skipped; one
// bad message never aborts the batch. Duplicates count as skipped — the
// expected steady state on overlapping windows. Only session-level
// failures (selection, search, cancellation) return an error.
func (s *Syncer) Sync(ctx context.Context, folder string, since time.Time, limit int) (models.SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.SyncStats{}

	if _, err := s.session.SelectFolder(ctx, folder); err != nil {
		return stats, err
	}

	if since.IsZero() {
		since = time.Now().Add(-defaultSyncWindow)
	}

	uids, err := s.session.SearchSince(ctx, since)
	if err != nil {
		return stats, err
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	s.logger.Info("starting sync", "folder", folder, "since", since.Format("2006-01-02"), "candidates", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := s.syncOne(ctx, uid, folder, &stats); err != nil {
			if errors.Is(err, ErrStorage) {
				return stats, err
			}
			s.logger.Warn("failed to process message", "uid", uid, "error", err)
			stats.Errors++
		}
	}

	s.logger.Info("sync complete", "synced", stats.Synced, "skipped", stats.Skipped, "errors", stats.Errors)
	return stats, nil
}

// syncOne fetches, parses, dedups and stores a single message
func (s *Syncer) syncOne(ctx context.Context, uid uint32, folder string, stats *models.SyncStats) error {
	raw, err := s.session.FetchRaw(ctx, uid)
	if err != nil {
		return err
	}

	msg, recipients, attachments, err := s.parser.Parse(raw, uid, folder)
	if err != nil {
		return err
	}

	exists, err := s.db.EmailExists(ctx, msg.MessageID)
	if err != nil {
		// A failing read means the store itself is down, not one bad message
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if exists {
		stats.Skipped++
		return nil
	}

	if _, err := s.db.InsertEmail(ctx, msg, recipients, attachments); err != nil {
		// A racing sync may have inserted the same message between the
		// existence check and the insert; that is a skip, not an error.
		if errors.Is(err, database.ErrAlreadyExists) {
			stats.Skipped++
			return nil
		}
		return err
	}

	stats.Synced++

	if s.hooks != nil {
		s.hooks.Dispatch(ctx, hooks.EventEmailReceived, msg)
	}

	return nil
}
