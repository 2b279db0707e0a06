// Package mail builds outbound campaign messages and defines the provider
// transport boundary. The actual wire client (OAuth2 credentialing, API
// calls) lives outside this repo; the engine only hands over an opaque raw
// message and receives a provider id or an error.
package mail

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"mailblast/internal/accounts"
)

// Message is one outbound campaign email before framing.
type Message struct {
	From        accounts.Account
	To          string
	Subject     string
	Body        string // plain text; newlines become <br> in the HTML part
	Unsubscribe string // List-Unsubscribe target; empty falls back to mailto:<from>
}

// EncodeSubject applies RFC 2047 base64/UTF-8 encoding, but only when the
// subject actually contains non-ASCII bytes. ASCII subjects pass through
// unchanged.
func EncodeSubject(subject string) string {
	return mime.BEncoding.Encode("UTF-8", subject)
}

// HTMLBody converts the plain campaign text to the HTML body that goes on
// the wire: newline characters become <br> line breaks.
func HTMLBody(body string) string {
	return strings.ReplaceAll(body, "\n", "<br>\n")
}

// Raw frames the message as a MIME payload for the provider client.
func (m Message) Raw() []byte {
	from := mail.Address{Name: m.From.Name, Address: m.From.Address}

	unsub := strings.TrimSpace(m.Unsubscribe)
	if unsub == "" {
		unsub = "mailto:" + m.From.Address + "?subject=unsubscribe"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", EncodeSubject(m.Subject))
	fmt.Fprintf(&b, "List-Unsubscribe: <%s>\r\n", unsub)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(HTMLBody(m.Body))
	return []byte(b.String())
}
