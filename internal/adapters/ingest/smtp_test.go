package ingest

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	raw := strings.Join([]string{
		"Message-ID: <abc123@corp.example>",
		"From: Alice Example <alice@corp.example>",
		"To: sales@vendor.example",
		"Subject: Re: Spring offer",
		"Date: Tue, 10 Mar 2026 09:30:00 +0000",
		"In-Reply-To: <orig-1@vendor.example>",
		"References: <orig-0@vendor.example> <orig-1@vendor.example>",
		"",
		"Yes, very interested. Please send the contract.",
	}, "\r\n")

	msg, err := parseMessage([]byte(raw), "bounce@corp.example", []string{"sales@vendor.example"})
	require.NoError(t, err)

	assert.Equal(t, "abc123@corp.example", msg.ID)
	// The From header wins over the envelope sender
	assert.Equal(t, "alice@corp.example", msg.Sender)
	assert.Equal(t, []string{"sales@vendor.example"}, msg.Recipients)
	assert.Equal(t, "Re: Spring offer", msg.Subject)
	assert.Equal(t, "Yes, very interested. Please send the contract.", strings.TrimSpace(msg.Body))
	assert.Equal(t, "orig-1@vendor.example", msg.InReplyTo)
	assert.Equal(t, []string{"orig-0@vendor.example", "orig-1@vendor.example"}, msg.References)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), msg.ReceivedAt.UTC())
}

func TestParseMessageDefaults(t *testing.T) {
	raw := "Subject: hello\r\n\r\nA body without message id or date headers.\r\n"

	msg, err := parseMessage([]byte(raw), "alice@corp.example", nil)
	require.NoError(t, err)

	// A missing Message-ID gets a generated one
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice@corp.example", msg.Sender)
	assert.False(t, msg.ReceivedAt.IsZero())
	assert.Nil(t, msg.References)
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := parseMessage([]byte("not a mail message at all"), "a@b.example", nil)
	assert.Error(t, err)
}

func TestExtractBodiesPlain(t *testing.T) {
	msg, err := mail.ReadMessage(bytes.NewReader([]byte(
		"Subject: x\r\n\r\nplain text body here\r\n")))
	require.NoError(t, err)

	text, html, err := extractBodies(msg)
	require.NoError(t, err)
	assert.Equal(t, "plain text body here", strings.TrimSpace(text))
	assert.Empty(t, html)
}

func TestExtractBodiesHTMLOnly(t *testing.T) {
	msg, err := mail.ReadMessage(bytes.NewReader([]byte(
		"Content-Type: text/html; charset=utf-8\r\nSubject: x\r\n\r\n<p>hello</p>\r\n")))
	require.NoError(t, err)

	text, html, err := extractBodies(msg)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "<p>hello</p>", strings.TrimSpace(html))
}

func TestExtractBodiesMultipartAlternative(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=BOUNDARY",
		"Subject: x",
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"the plain version",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>the html version</p>",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	msg, err := mail.ReadMessage(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)

	text, html, err := extractBodies(msg)
	require.NoError(t, err)
	assert.Equal(t, "the plain version", strings.TrimSpace(text))
	assert.Equal(t, "<p>the html version</p>", strings.TrimSpace(html))
}

func TestExtractBodiesNestedMultipart(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/mixed; boundary=OUTER",
		"Subject: x",
		"",
		"--OUTER",
		"Content-Type: multipart/alternative; boundary=INNER",
		"",
		"--INNER",
		"Content-Type: text/plain",
		"",
		"nested plain text",
		"--INNER--",
		"--OUTER",
		"Content-Type: application/pdf",
		"",
		"binary attachment bytes",
		"--OUTER--",
		"",
	}, "\r\n")

	msg, err := mail.ReadMessage(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)

	text, _, err := extractBodies(msg)
	require.NoError(t, err)
	assert.Equal(t, "nested plain text", strings.TrimSpace(text))
	assert.NotContains(t, text, "attachment")
}

func TestStripAngles(t *testing.T) {
	assert.Equal(t, "abc@x.example", stripAngles("<abc@x.example>"))
	assert.Equal(t, "abc@x.example", stripAngles("  abc@x.example "))
	assert.Empty(t, stripAngles(""))
}

func TestSplitReferences(t *testing.T) {
	assert.Nil(t, splitReferences(""))
	assert.Equal(t, []string{"a@x", "b@y"}, splitReferences("<a@x> <b@y>"))
}
