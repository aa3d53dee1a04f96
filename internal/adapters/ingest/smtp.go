package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// SMTPIngest receives replies over SMTP and feeds them to the triage
// pipeline. It sits behind the campaign mailbox the same way a content
// filter sits behind an MTA: each DATA command becomes one pipeline batch.
type SMTPIngest struct {
	pipeline        *core.Pipeline
	logger          *zap.Logger
	listenAddr      string
	domain          string
	maxMessageBytes int64
	readTimeout     time.Duration
	writeTimeout    time.Duration
	server          *smtp.Server
}

// NewSMTPIngest creates a new SMTP ingest server
func NewSMTPIngest(
	pipeline *core.Pipeline,
	logger *zap.Logger,
	listenAddr string,
	domain string,
	maxMessageBytes int64,
	readTimeout time.Duration,
	writeTimeout time.Duration,
) *SMTPIngest {
	return &SMTPIngest{
		pipeline:        pipeline,
		logger:          logger,
		listenAddr:      listenAddr,
		domain:          domain,
		maxMessageBytes: maxMessageBytes,
		readTimeout:     readTimeout,
		writeTimeout:    writeTimeout,
	}
}

// Start starts the SMTP ingest server
func (i *SMTPIngest) Start() error {
	i.server = smtp.NewServer(&smtpBackend{ingest: i})

	i.server.Addr = i.listenAddr
	i.server.Domain = i.domain
	i.server.ReadTimeout = i.readTimeout
	i.server.WriteTimeout = i.writeTimeout
	i.server.MaxMessageBytes = i.maxMessageBytes
	i.server.MaxRecipients = 50
	i.server.AllowInsecureAuth = true

	i.logger.Info("SMTP ingest starting", zap.String("address", i.listenAddr))

	go func() {
		if err := i.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				i.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP ingest server
func (i *SMTPIngest) Stop() error {
	if i.server != nil {
		return i.server.Close()
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	ingest *SMTPIngest
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		ingest:     b.ingest,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	ingest     *SMTPIngest
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed here)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data parses the inbound reply and runs it through the pipeline. Pipeline
// failures are swallowed after logging: the reply was accepted by the MTA
// and will be replayed from state rather than bounced back at the sender.
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.ingest.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := parseMessage(rawData, s.sender, s.recipients)
	if err != nil {
		s.ingest.logger.Error("Failed to parse inbound reply",
			zap.Error(err),
			zap.String("sender", s.sender))
		return fmt.Errorf("550 Malformed message: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	summary, err := s.ingest.pipeline.ProcessBatch(ctx, []*core.Message{msg})
	if err != nil {
		s.ingest.logger.Error("Failed to process inbound reply",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("sender", s.sender))
		return nil
	}

	s.ingest.logger.Info("Processed inbound reply",
		zap.String("message_id", msg.ID),
		zap.String("sender", s.sender),
		zap.Int("decisions", len(summary.Decisions)),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("spam", summary.Spam),
		zap.Int("failed", summary.Failed))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

// parseMessage converts a raw RFC 5322 message into the pipeline's input form
func parseMessage(rawData []byte, envelopeSender string, envelopeRecipients []string) (*core.Message, error) {
	parsed, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	text, html, err := extractBodies(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to extract body: %w", err)
	}

	msg := &core.Message{
		ID:         stripAngles(parsed.Header.Get("Message-ID")),
		Sender:     envelopeSender,
		Recipients: envelopeRecipients,
		Subject:    parsed.Header.Get("Subject"),
		Body:       text,
		HTMLBody:   html,
		InReplyTo:  stripAngles(parsed.Header.Get("In-Reply-To")),
		References: splitReferences(parsed.Header.Get("References")),
		Headers:    map[string][]string(parsed.Header),
	}

	if from := parsed.Header.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			msg.Sender = addr.Address
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if date, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = date
	} else {
		msg.ReceivedAt = time.Now()
	}

	return msg, nil
}

// stripAngles removes the angle brackets around a message identifier
func stripAngles(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// splitReferences parses a References header into individual message ids
func splitReferences(header string) []string {
	if header == "" {
		return nil
	}
	fields := strings.Fields(header)
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := stripAngles(f); id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}
