package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds a whole delivery when the caller's context has no deadline.
	Timeout time.Duration
}

// SMTPSender delivers mail through an SMTP relay, upgrading to TLS when the
// server offers STARTTLS.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTPSender{cfg: cfg, dial: d.DialContext, now: time.Now}
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTPSender) SendEmail(ctx context.Context, msg Message) error {
	conn, err := s.dial(ctx, "tcp", s.addr())
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", s.addr(), err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(s.cfg.Timeout)
	}
	conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	body, err := buildMessage(msg, s.now())
	if err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	return c.Quit()
}

// buildMessage renders headers and a MIME body. Bcc never appears in the headers.
func buildMessage(msg Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		header("Cc", strings.Join(msg.Cc, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	switch {
	case msg.HTML != "" && msg.Text != "":
		mw := multipart.NewWriter(&buf)
		header("Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
		buf.WriteString("\r\n")
		for _, part := range []struct{ ctype, content string }{
			{"text/plain", msg.Text},
			{"text/html", msg.HTML},
		} {
			pw, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {part.ctype + "; charset=utf-8"},
				"Content-Transfer-Encoding": {"quoted-printable"},
			})
			if err != nil {
				return nil, err
			}
			if err := writeQP(pw, part.content); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	default:
		ctype, content := "text/plain", msg.Text
		if msg.HTML != "" {
			ctype, content = "text/html", msg.HTML
		}
		header("Content-Type", ctype+"; charset=utf-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQP(&buf, content); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeQP(w io.Writer, content string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}
