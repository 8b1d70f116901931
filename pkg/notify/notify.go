// Package notify mails the inventory report.
package notify

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const (
	Sender  = "wp-updater@localhost"
	Subject = "Plugin Update Status"
	Body    = "See attachment for details"
)

// Mailer sends reports through an SMTP relay.
type Mailer struct {
	host    string
	port    int
	retries uint64

	send    func(*gomail.Message) error
	backoff func() backoff.BackOff
}

func NewMailer(host string, port int, retries uint64) *Mailer {
	m := &Mailer{host: host, port: port, retries: retries}
	m.send = func(msg *gomail.Message) error {
		return gomail.NewDialer(m.host, m.port, "", "").DialAndSend(msg)
	}
	m.backoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxElapsedTime = time.Minute
		return b
	}
	return m
}

// NewMessage builds the report mail for to with reportPath attached.
func NewMessage(to, reportPath string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", Sender)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", Subject)
	msg.SetBody("text/plain", Body)
	msg.Attach(reportPath)
	return msg
}

// SendReport mails reportPath to to. Transport errors are retried with
// exponential backoff; a missing report is not.
func (m *Mailer) SendReport(ctx context.Context, to, reportPath string) error {
	if _, err := os.Stat(reportPath); err != nil {
		return fmt.Errorf("cannot attach report: %w", err)
	}
	msg := NewMessage(to, reportPath)

	attempt := 0
	op := func() error {
		attempt++
		if err := m.send(msg); err != nil {
			log.Warnf("Mail attempt %d to %s via %s:%d failed: %v", attempt, to, m.host, m.port, err)
			return err
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.backoff(), m.retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("failed to mail %s to %s: %w", reportPath, to, err)
	}
	log.Infof("Mailed %s to %s", reportPath, to)
	return nil
}
