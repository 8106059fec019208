package services

import (
	"fmt"

	"github.com/heritago/backend/internal/config"
	"github.com/heritago/backend/pkg/logger"
	"gopkg.in/gomail.v2"
)

type TemplateKind string

const (
	TemplateInviteNewUser       TemplateKind = "invite_new_user"
	TemplateInviteExistingUser  TemplateKind = "invite_existing_user"
	TemplateMemberProvisioned   TemplateKind = "member_provisioned"
	TemplatePublicationResolved TemplateKind = "publication_resolved"
)

type Notification struct {
	RecipientEmail string
	Template       TemplateKind
	Payload        map[string]interface{}
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never let delivery problems reach the caller; membership and publication
// state changes commit regardless of notification outcome.
type Notifier interface {
	Notify(n Notification)
}

type Sender interface {
	Send(n Notification) error
}

// QueuedNotifier decouples delivery from the request transaction: Notify
// enqueues and returns immediately, a worker goroutine drains the queue and
// logs failures.
type QueuedNotifier struct {
	sender Sender
	queue  chan Notification
}

func NewQueuedNotifier(sender Sender) *QueuedNotifier {
	q := &QueuedNotifier{
		sender: sender,
		queue:  make(chan Notification, 1000),
	}
	go q.processQueue()
	return q
}

func (q *QueuedNotifier) Notify(n Notification) {
	select {
	case q.queue <- n:
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"template": string(n.Template),
			"dropped":  true,
		})
	}
}

func (q *QueuedNotifier) processQueue() {
	for n := range q.queue {
		if err := q.sender.Send(n); err != nil {
			logger.Error("notification_delivery_failed", err, map[string]interface{}{
				"template":  string(n.Template),
				"recipient": n.RecipientEmail,
			})
			continue
		}
		logger.Info("notification_delivered", map[string]interface{}{
			"template":  string(n.Template),
			"recipient": n.RecipientEmail,
		})
	}
}

// SMTPSender delivers notifications as HTML email.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(n Notification) error {
	subject, body := renderTemplate(n)

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", n.RecipientEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.From, s.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func renderTemplate(n Notification) (subject, body string) {
	family, _ := n.Payload["familyName"].(string)
	inviter, _ := n.Payload["inviterName"].(string)
	code, _ := n.Payload["code"].(string)

	switch n.Template {
	case TemplateInviteNewUser:
		subject = fmt.Sprintf("You are invited to join the %s family archive", family)
		body = fmt.Sprintf(
			"<p>%s invited you to join the <b>%s</b> family archive.</p><p>Create an account and use invitation code <b>%s</b>. The code expires in 48 hours.</p>",
			inviter, family, code)
	case TemplateInviteExistingUser:
		subject = fmt.Sprintf("You are invited to join the %s family archive", family)
		body = fmt.Sprintf(
			"<p>%s invited you to join the <b>%s</b> family archive.</p><p>Use invitation code <b>%s</b> to accept. The code expires in 48 hours.</p>",
			inviter, family, code)
	case TemplateMemberProvisioned:
		password, _ := n.Payload["temporaryPassword"].(string)
		subject = fmt.Sprintf("An account was created for you in the %s family archive", family)
		body = fmt.Sprintf(
			"<p>You were added to the <b>%s</b> family archive.</p><p>Your temporary password is <b>%s</b>. You will be asked to change it on first login.</p>",
			family, password)
	case TemplatePublicationResolved:
		title, _ := n.Payload["contentTitle"].(string)
		status, _ := n.Payload["status"].(string)
		subject = fmt.Sprintf("Publication request %s", status)
		body = fmt.Sprintf("<p>Your publication request for <b>%s</b> was %s.</p>", title, status)
	default:
		subject = "Heritago notification"
		body = "<p>You have a new notification.</p>"
	}
	return subject, body
}

// LogSender is used when SMTP is not configured; deliveries are recorded in
// the log only.
type LogSender struct{}

func (LogSender) Send(n Notification) error {
	logger.Info("notification_simulated", map[string]interface{}{
		"template":  string(n.Template),
		"recipient": n.RecipientEmail,
		"payload":   n.Payload,
	})
	return nil
}
