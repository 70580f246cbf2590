package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/rmed/simpleice/internal/provider"
)

var errNoRecipients = errors.New("no recipients")

// parseRecipients parses the comma-separated recipient field into envelope
// addresses.
func parseRecipients(raw string) ([]*mail.Address, error) {
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", raw, err)
	}
	if len(addrs) == 0 {
		return nil, errNoRecipients
	}
	return addrs, nil
}

// buildMessage renders msg as an RFC 5322 plain text message.
func buildMessage(from string, to []*mail.Address, msg provider.Message, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}
