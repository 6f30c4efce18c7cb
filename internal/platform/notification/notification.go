// Package notification delivers outbound email and keeps a log of every
// attempt so failed deliveries can be inspected and retried.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalid      = errors.New("invalid email request")
	ErrNotFound     = errors.New("email log entry not found")
	ErrNotRetryable = errors.New("only failed emails can be retried")
	ErrDelivery     = errors.New("email delivery failed")
)

// Status of a logged email.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// ---------------------------------------------------------------------------
// Messages and senders
// ---------------------------------------------------------------------------

// Message is a single outbound email. At least one of HTML or Text is set.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	HTML    string
	Text    string
}

// Recipients returns every envelope recipient, Bcc included.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. It stands
// in for SMTP when no mail server is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, msg Message) error {
	s.Logger.Info().
		Strs("to", msg.To).
		Int("cc", len(msg.Cc)).
		Int("bcc", len(msg.Bcc)).
		Str("subject", msg.Subject).
		Msg("email not sent: no SMTP server configured")
	return nil
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockEmailSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// SetFailing switches the double between failing and succeeding.
func (m *MockEmailSender) SetFailing(fail bool, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
	m.FailError = msg
}

// ---------------------------------------------------------------------------
// Email log
// ---------------------------------------------------------------------------

// EmailLog maps to the email_log table.
type EmailLog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Recipients []string   `db:"recipients" json:"to"`
	Cc         []string   `db:"cc" json:"cc,omitempty"`
	Bcc        []string   `db:"bcc" json:"bcc,omitempty"`
	Sender     string     `db:"sender" json:"from"`
	Subject    string     `db:"subject" json:"subject"`
	HTMLBody   string     `db:"html_body" json:"-"`
	TextBody   string     `db:"text_body" json:"-"`
	Status     Status     `db:"status" json:"status"`
	Error      *string    `db:"error" json:"error,omitempty"`
	Attempts   int        `db:"attempts" json:"attempts"`
	CreatedBy  *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}

func (e *EmailLog) message() Message {
	return Message{
		From:    e.Sender,
		To:      e.Recipients,
		Cc:      e.Cc,
		Bcc:     e.Bcc,
		Subject: e.Subject,
		HTML:    e.HTMLBody,
		Text:    e.TextBody,
	}
}

// Store persists email log entries.
type Store interface {
	Create(ctx context.Context, e *EmailLog) error
	Update(ctx context.Context, e *EmailLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmailLog, error)
	// List filters by status when status is non-empty, newest first.
	List(ctx context.Context, status Status, limit, offset int) ([]*EmailLog, int, error)
}

// SendRequest is the caller-supplied content of an email.
type SendRequest struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (r SendRequest) validate() error {
	if len(r.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalid)
	}
	for _, list := range [][]string{r.To, r.Cc, r.Bcc} {
		for _, addr := range list {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("%w: bad address %q", ErrInvalid, addr)
			}
		}
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	if strings.ContainsAny(r.Subject, "\r\n") {
		return fmt.Errorf("%w: subject must be a single line", ErrInvalid)
	}
	if strings.TrimSpace(r.HTML) == "" && strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: html or text content is required", ErrInvalid)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager sends email through an EmailSender and records each attempt.
type Manager struct {
	sender   EmailSender
	store    Store
	from     string
	logger   zerolog.Logger
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewManager(sender EmailSender, store Store, from string, logger zerolog.Logger) *Manager {
	return &Manager{
		sender: sender,
		store:  store,
		from:   from,
		logger: logger.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

func (m *Manager) newEntry(req SendRequest, createdBy string) *EmailLog {
	e := &EmailLog{
		Recipients: req.To,
		Cc:         req.Cc,
		Bcc:        req.Bcc,
		Sender:     m.from,
		Subject:    strings.TrimSpace(req.Subject),
		HTMLBody:   req.HTML,
		TextBody:   req.Text,
		Status:     StatusPending,
		CreatedAt:  m.now().UTC(),
	}
	if createdBy != "" {
		e.CreatedBy = &createdBy
	}
	return e
}

// Send delivers the email synchronously. The returned entry reflects the
// outcome; a delivery failure is also reported as an error wrapping
// ErrDelivery.
func (m *Manager) Send(ctx context.Context, req SendRequest, createdBy string) (*EmailLog, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	entry := m.newEntry(req, createdBy)
	if err := m.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("log email: %w", err)
	}
	if err := m.deliver(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// SendAsync logs the email as pending and delivers it in the background.
// The returned entry is a snapshot taken before delivery starts.
func (m *Manager) SendAsync(ctx context.Context, req SendRequest, createdBy string) (*EmailLog, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	entry := m.newEntry(req, createdBy)
	if err := m.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("log email: %w", err)
	}
	snapshot := *entry

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.deliver(context.WithoutCancel(ctx), entry)
	}()
	return &snapshot, nil
}

// Retry resends an entry whose last attempt failed.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) (*EmailLog, error) {
	entry, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusError {
		return entry, fmt.Errorf("%w: status is %s", ErrNotRetryable, entry.Status)
	}
	if err := m.deliver(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*EmailLog, error) {
	return m.store.GetByID(ctx, id)
}

func (m *Manager) List(ctx context.Context, status Status, limit, offset int) ([]*EmailLog, int, error) {
	return m.store.List(ctx, status, limit, offset)
}

// Wait blocks until background deliveries have finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) deliver(ctx context.Context, entry *EmailLog) error {
	entry.Attempts++
	sendErr := m.sender.SendEmail(ctx, entry.message())

	log := m.logger.With().
		Str("email_id", entry.ID.String()).
		Strs("to", entry.Recipients).
		Int("attempt", entry.Attempts).
		Logger()

	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = StatusError
		entry.Error = &msg
		log.Error().Err(sendErr).Msg("email delivery failed")
	} else {
		sentAt := m.now().UTC()
		entry.Status = StatusSuccess
		entry.Error = nil
		entry.SentAt = &sentAt
		log.Info().Msg("email sent")
	}

	if err := m.store.Update(ctx, entry); err != nil {
		log.Error().Err(err).Msg("failed to update email log")
	}
	if sendErr != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, sendErr)
	}
	return nil
}
