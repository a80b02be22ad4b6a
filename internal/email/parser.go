package email

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/mixelka/mailvault/internal/parser"
	"github.com/mixelka/mailvault/pkg/models"
)

const snippetLength = 200

// matches "Display Name <address>" address fragments
var nameAddrRegex = regexp.MustCompile(`^(.+?)\s*<(.+?)>$`)

// ParsedAddress is one parsed email address with an optional display name
type ParsedAddress struct {
	Name    string
	Address string
}

// Parser decomposes raw RFC822 bytes into a normalized message record
// with its recipients and attachments.
type Parser struct {
	html   *parser.HTMLParser
	logger *slog.Logger
}

// NewParser creates a new message parser
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		html:   parser.NewHTMLParser(),
		logger: logger.With("component", "parser"),
	}
}

// Parse parses one fetched message. uid is the transport identifier, used
// to synthesize a logical identifier when the message carries no
// Message-ID header. folder is recorded on the message as-is.
func (p *Parser) Parse(raw []byte, uid uint32, folder string) (*models.Message, []*models.Recipient, []*models.Attachment, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse message: %w", err)
	}

	header := mr.Header

	messageID := strings.TrimSpace(header.Get("Message-Id"))
	if messageID == "" {
		// Fallback only for messages without a Message-ID header
		messageID = fmt.Sprintf("%d-%d", uid, time.Now().UnixNano())
	}

	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}

	dateSent, err := header.Date()
	if err != nil || dateSent.IsZero() {
		dateSent = time.Now()
	}

	from := ParseAddressList(headerText(header, "From"))
	fromAddress := "unknown@unknown.com"
	fromName := ""
	if len(from) > 0 {
		fromAddress = from[0].Address
		fromName = from[0].Name
	}

	recipients := extractRecipients(header)

	var bodyText, bodyHTML string
	var attachments []*models.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("failed to read message part", "message_id", messageID, "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, ctParams, _ := h.ContentType()
			disp, dispParams, _ := h.ContentDisposition()

			// An inline part with a disposition header and a filename is an
			// attachment (e.g. an embedded image referenced by Content-ID).
			filename := dispParams["filename"]
			if filename == "" {
				filename = ctParams["name"]
			}
			if disp != "" && filename != "" {
				data, err := io.ReadAll(part.Body)
				if err != nil {
					continue
				}
				attachments = append(attachments, &models.Attachment{
					Filename:    filename,
					ContentType: ct,
					SizeBytes:   int64(len(data)),
					ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
					IsInline:    strings.HasPrefix(disp, "inline"),
				})
				continue
			}

			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/plain") && bodyText == "" {
				bodyText = string(data)
			} else if strings.HasPrefix(ct, "text/html") && bodyHTML == "" {
				bodyHTML = string(data)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			ct, _, _ := h.ContentType()
			disp, _, _ := h.ContentDisposition()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			attachments = append(attachments, &models.Attachment{
				Filename:    filename,
				ContentType: ct,
				SizeBytes:   int64(len(data)),
				ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
				IsInline:    strings.HasPrefix(disp, "inline"),
			})
		}
	}

	// No plain text part: derive one from the HTML body so the snippet and
	// the search index still have content.
	if bodyText == "" && bodyHTML != "" {
		if text, err := p.html.Parse(bodyHTML); err == nil {
			bodyText = text
		}
	}

	msg := &models.Message{
		MessageID:   messageID,
		ThreadID:    header.Get("Thread-Topic"),
		InReplyTo:   header.Get("In-Reply-To"),
		References:  header.Get("References"),
		DateSent:    dateSent,
		Subject:     subject,
		FromAddress: fromAddress,
		FromName:    fromName,
		ReplyTo:     header.Get("Reply-To"),
		BodyText:    bodyText,
		BodyHTML:    bodyHTML,
		Snippet:     snippet(bodyText),
		SizeBytes:   int64(len(raw)),
		Folder:      folder,
		RawHeaders:  rawHeaders(raw),
	}

	return msg, recipients, attachments, nil
}

// extractRecipients collects to/cc/bcc recipients from the message headers
func extractRecipients(header mail.Header) []*models.Recipient {
	var recipients []*models.Recipient

	kinds := []struct {
		header string
		kind   string
	}{
		{"To", models.RecipientTo},
		{"Cc", models.RecipientCc},
		{"Bcc", models.RecipientBcc},
	}

	for _, k := range kinds {
		for _, addr := range ParseAddressList(headerText(header, k.header)) {
			recipients = append(recipients, &models.Recipient{
				Type:    k.kind,
				Address: addr.Address,
				Name:    addr.Name,
			})
		}
	}

	return recipients
}

// ParseAddressList parses a comma-separated address list. Each fragment is
// either "Display Name <address>" or a bare address; fragments without an
// '@' are dropped. Addresses are lower-cased, display names kept as-is.
func ParseAddressList(list string) []ParsedAddress {
	if list == "" {
		return nil
	}

	var addresses []ParsedAddress
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if m := nameAddrRegex.FindStringSubmatch(part); m != nil {
			addresses = append(addresses, ParsedAddress{
				Name:    strings.Trim(strings.TrimSpace(m[1]), `"`),
				Address: strings.ToLower(m[2]),
			})
		} else if strings.Contains(part, "@") {
			addresses = append(addresses, ParsedAddress{Address: strings.ToLower(part)})
		}
	}

	return addresses
}

// headerText returns the decoded header value, falling back to the raw one
func headerText(header mail.Header, key string) string {
	if text, err := header.Text(key); err == nil {
		return text
	}
	return header.Get(key)
}

// snippet returns the first 200 characters of the text body
func snippet(bodyText string) string {
	runes := []rune(bodyText)
	if len(runes) <= snippetLength {
		return bodyText
	}
	return string(runes[:snippetLength])
}

// rawHeaders returns the header block of the raw message
func rawHeaders(raw []byte) string {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return string(raw[:idx])
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return string(raw[:idx])
	}
	return string(raw)
}
