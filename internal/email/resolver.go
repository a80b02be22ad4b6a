package email

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// IMAP hosts for common providers, used when IMAP_HOST is not configured
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"yahoo.com":      "imap.mail.yahoo.com",
	"yandex.ru":      "imap.yandex.ru",
	"yandex.com":     "imap.yandex.com",
	"mail.ru":        "imap.mail.ru",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"aol.com":        "imap.aol.com",
	"zoho.com":       "imap.zoho.com",
	"fastmail.com":   "imap.fastmail.com",
	"gmx.com":        "imap.gmx.com",
	"gmx.de":         "imap.gmx.net",
	"web.de":         "imap.web.de",
}

// ResolveIMAPHost determines the IMAP host for an email address: known
// providers first, then common host patterns probed on port 993.
func ResolveIMAPHost(address string) (string, error) {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid email address %q", address)
	}

	domain := strings.ToLower(parts[1])

	if host, ok := knownIMAPServers[domain]; ok {
		return host, nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain, domain} {
		if probeIMAPHost(host) {
			return host, nil
		}
	}

	// Last resort: the conventional host name
	return "imap." + domain, nil
}

// probeIMAPHost checks whether host accepts connections on port 993
func probeIMAPHost(host string) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, "993"), 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
