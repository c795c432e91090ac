package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/loan-servicing/internal/domain"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds a whole delivery from dial to QUIT
	Timeout time.Duration
}

const defaultSMTPTimeout = 15 * time.Second

// SMTPSender delivers reminder emails through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	s := &SMTPSender{cfg: cfg, now: time.Now}
	s.sendMail = s.deliver
	return s
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, text, html string) (domain.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendReceipt{}, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain())
	msg, err := s.buildMessage(messageID, to, subject, text, html)
	if err != nil {
		return domain.SendReceipt{}, err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(ctx, addr, auth, s.envelopeFrom(), []string{to}, msg); err != nil {
		return domain.SendReceipt{}, fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return domain.SendReceipt{Success: true, MessageID: messageID}, nil
}

// deliver runs one SMTP session under the configured timeout. Cancelling ctx
// closes the connection so a stalled relay cannot hold the reminder cycle.
func (s *SMTPSender) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return s.ctxErr(ctx, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return s.ctxErr(ctx, err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return s.ctxErr(ctx, err)
		}
	}
	if err := c.Mail(from); err != nil {
		return s.ctxErr(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return s.ctxErr(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return s.ctxErr(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return s.ctxErr(ctx, err)
	}
	if err := w.Close(); err != nil {
		return s.ctxErr(ctx, err)
	}
	return s.ctxErr(ctx, c.Quit())
}

// ctxErr reports a cancelled context instead of the closed-connection error it caused.
func (s *SMTPSender) ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// envelopeFrom is the bare address of From ("Collections <a@b>" → "a@b").
func (s *SMTPSender) envelopeFrom() string {
	if addr, err := mail.ParseAddress(s.cfg.From); err == nil {
		return addr.Address
	}
	return s.cfg.From
}

func (s *SMTPSender) domain() string {
	from := s.envelopeFrom()
	if i := strings.LastIndex(from, "@"); i >= 0 {
		return from[i+1:]
	}
	return s.cfg.Host
}

// buildMessage renders a multipart/alternative message, or a plain text one
// when there is no HTML body.
func (s *SMTPSender) buildMessage(messageID, to, subject, text, html string) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", s.cfg.From)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")

	if html == "" {
		header("Content-Type", `text/plain; charset="utf-8"`)
		buf.WriteString("\r\n")
		buf.WriteString(text)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, mw.Boundary()))
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, content string }{
		{`text/plain; charset="utf-8"`, text},
		{`text/html; charset="utf-8"`, html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}
