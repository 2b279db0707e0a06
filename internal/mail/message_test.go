package mail

import (
	"context"
	"errors"
	"mime"
	"strings"
	"testing"
	"time"

	"mailblast/internal/accounts"
	logx "mailblast/pkg/logx"
)

func TestEncodeSubject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		subject string
		encoded bool
	}{
		{"plain ascii", "Big summer sale", false},
		{"non-ascii", "Распродажа! Скидки до 50%", true},
		{"mixed", "Sale: скидки", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := EncodeSubject(tc.subject)
			if tc.encoded != strings.HasPrefix(got, "=?UTF-8?") {
				t.Fatalf("EncodeSubject(%q) = %q, encoded=%v", tc.subject, got, tc.encoded)
			}
			dec := new(mime.WordDecoder)
			round, err := dec.DecodeHeader(got)
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			if round != tc.subject {
				t.Fatalf("round trip = %q, want %q", round, tc.subject)
			}
		})
	}
}

func TestRawFraming(t *testing.T) {
	t.Parallel()

	msg := Message{
		From:    accounts.Account{ID: "a1", Name: "Promo Desk", Address: "promo@example.com"},
		To:      "user@example.org",
		Subject: "Hello",
		Body:    "line one\nline two",
	}
	raw := string(msg.Raw())

	for _, want := range []string{
		"From: \"Promo Desk\" <promo@example.com>\r\n",
		"To: user@example.org\r\n",
		"Subject: Hello\r\n",
		"List-Unsubscribe: <mailto:promo@example.com?subject=unsubscribe>\r\n",
		"Content-Type: text/html; charset=utf-8\r\n",
		"line one<br>\nline two",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("raw message missing %q:\n%s", want, raw)
		}
	}
}

func TestRawUsesConfiguredUnsubscribeURL(t *testing.T) {
	t.Parallel()

	msg := Message{
		From:        accounts.Account{ID: "a1", Address: "promo@example.com"},
		To:          "user@example.org",
		Unsubscribe: "https://example.com/unsubscribe",
	}
	if !strings.Contains(string(msg.Raw()), "List-Unsubscribe: <https://example.com/unsubscribe>\r\n") {
		t.Fatal("configured unsubscribe URL not used")
	}
}

type flakyTransport struct {
	healthErr error
}

func (f *flakyTransport) Send(context.Context, string, []byte) (string, error) {
	return "", errors.New("not used")
}

func (f *flakyTransport) HealthCheck(ctx context.Context, _ string) error {
	if f.healthErr != nil {
		return f.healthErr
	}
	return ctx.Err()
}

func TestPreflightCheck(t *testing.T) {
	t.Parallel()
	acct := accounts.Account{ID: "a1", Address: "promo@example.com"}

	p := NewPreflight(&flakyTransport{}, time.Second, logx.Nop())
	if err := p.Check(context.Background(), acct); err != nil {
		t.Fatalf("healthy account: %v", err)
	}

	p = NewPreflight(&flakyTransport{healthErr: errors.New("401 unauthorized")}, time.Second, logx.Nop())
	err := p.Check(context.Background(), acct)
	if !errors.Is(err, ErrPreflight) {
		t.Fatalf("err = %v, want ErrPreflight", err)
	}
}
