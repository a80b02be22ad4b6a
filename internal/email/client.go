package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ErrNotConnected is returned when a session operation is attempted before Connect
var ErrNotConnected = errors.New("not connected to IMAP server")

// ErrAuth is returned when the server rejects the credentials
var ErrAuth = errors.New("authentication failed")

// ErrConnection is returned on network or session establishment failure
var ErrConnection = errors.New("connection failed")

// ClientConfig configuration for the IMAP session
type ClientConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DialTimeout time.Duration
}

// Client is a stateful IMAP session scoped to one folder at a time.
// All operations are serialized through a mutex: one session, one
// in-flight operation.
type Client struct {
	config    ClientConfig
	client    *client.Client
	logger    *slog.Logger
	mu        sync.Mutex
	connected bool
}

// NewClient creates a new IMAP session client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger.With("username", cfg.Username),
	}
}

// Connect establishes an authenticated session. A failed login returns
// ErrAuth; a network failure returns ErrConnection. There is no retry at
// this layer.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	c.logger.Info("connecting to IMAP server", "server", addr)

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := imapClient.Login(c.config.Username, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")

	return nil
}

// SelectFolder selects a mailbox folder for subsequent operations
func (c *Client) SelectFolder(ctx context.Context, folder string) (*imap.MailboxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, ErrNotConnected
	}

	mbox, err := c.client.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	return mbox, nil
}

// SearchSince returns the UIDs of messages received on or after the given
// date in the selected folder.
func (c *Client) SearchSince(ctx context.Context, since time.Time) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, ErrNotConnected
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	return uids, nil
}

// FetchRaw fetches the full raw RFC822 bytes of one message by UID.
// The fetch is abandoned when ctx is cancelled, since IMAP fetches can hang.
func (c *Client) FetchRaw(ctx context.Context, uid uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, ErrNotConnected
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for messages != nil || done != nil {
		select {
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			body := msg.GetBody(section)
			if body == nil {
				continue
			}
			data, err := io.ReadAll(body)
			if err != nil {
				return nil, fmt.Errorf("failed to read message body: %w", err)
			}
			raw = data
		case err := <-done:
			done = nil
			if err != nil {
				return nil, fmt.Errorf("failed to fetch uid %d: %w", uid, err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if raw == nil {
		return nil, fmt.Errorf("uid %d: empty fetch response", uid)
	}

	return raw, nil
}

// Disconnect performs a best-effort logout and releases the session.
// Logout errors are swallowed; the session is always marked closed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		done := make(chan struct{})
		imapClient := c.client
		go func() {
			imapClient.Logout()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			imapClient.Terminate()
		}
	}

	c.client = nil
	c.connected = false
	c.logger.Info("disconnected from IMAP server")
}

// IsConnected returns whether the session is established
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
