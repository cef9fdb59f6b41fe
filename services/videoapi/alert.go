package videoapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	// where alerts land
	Operator string `json:"operator"`
}

// Alerter mails the operator when the dashboard session dies for good.
// a dead session means someone has to re-enter credentials, silent
// failure just piles up stuck work.
type Alerter struct {
	config SmtpConfig

	mu       sync.Mutex
	lastSent time.Time
}

// one mail per hour at most, the api keeps serving 503s in between
const alertCooldown = time.Hour

func NewAlerter(config SmtpConfig) *Alerter {
	return &Alerter{config: config}
}

func (a *Alerter) AuthFailure(ctx context.Context, cause error) {
	a.mu.Lock()
	if time.Since(a.lastSent) < alertCooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent = time.Now()
	a.mu.Unlock()

	err := a.send(ctx, cause)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send auth failure alert", "err", err)
	}
}

func (a *Alerter) send(ctx context.Context, cause error) error {
	_, span := tracer.Start(ctx, "alerter:send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("NPID Bridge <%s>", a.config.EmailAddress)
	mail.To = []string{a.config.Operator}
	mail.Subject = "NPID dashboard session is dead"
	mail.Text = []byte(fmt.Sprintf(`The bridge lost its dashboard session and could not recover it.

%v

Requests will fail with 503 until the service is restarted with working credentials.`, cause))

	addr := fmt.Sprintf("%s:%d", a.config.Server, a.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", a.config.EmailAddress, a.config.Password, a.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
