package mail

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	netmail "net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_MessageHeaders(t *testing.T) {
	tests := []struct {
		name     string
		fromName string
	}{
		{"plain name", "Contacts API"},
		{"comma in name", "Contacts, Inc."},
		{"quote and angle bracket", `Wade "Deadpool" <Wilson>`},
		{"non-ASCII name", "Café Contacts"},
		{"no name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSMTPMailer(SMTPConfig{From: "noreply@example.com", FromName: tt.fromName},
				slog.New(slog.NewTextHandler(io.Discard, nil)))

			raw := m.message("deadpool@example.com", "Réinitialiser", "<p>hi</p>")

			parsed, err := netmail.ReadMessage(bytes.NewReader(raw))
			require.NoError(t, err)

			from, err := parsed.Header.AddressList("From")
			require.NoError(t, err)
			require.Len(t, from, 1, "From must stay a single address")
			assert.Equal(t, tt.fromName, from[0].Name)
			assert.Equal(t, "noreply@example.com", from[0].Address)

			to, err := parsed.Header.AddressList("To")
			require.NoError(t, err)
			require.Len(t, to, 1)
			assert.Equal(t, "deadpool@example.com", to[0].Address)

			subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
			require.NoError(t, err)
			assert.Equal(t, "Réinitialiser", subject)

			body, err := io.ReadAll(parsed.Body)
			require.NoError(t, err)
			assert.Equal(t, "<p>hi</p>", string(body))
		})
	}
}
