// Package notify delivers best-effort notifications to house members. Delivery
// is fire-and-forget: failures are logged per recipient and never surface to
// the operation that triggered them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alpenhaus/alpenhaus/internal/lodge"
	"github.com/alpenhaus/alpenhaus/internal/split"
)

// Notifier receives domain events worth telling members about.
type Notifier interface {
	// ExpenseCreated notifies every recipient that they owe a share of a new
	// expense. Recipients never include the payer.
	ExpenseCreated(ctx context.Context, e lodge.Expense, recipients []lodge.User)
}

// SendFunc delivers one message to one recipient (e.g. an email send).
type SendFunc func(ctx context.Context, to lodge.User, subject, body string) error

// Dispatcher fans out one notification per recipient concurrently, isolating
// failures per recipient.
type Dispatcher struct {
	send    SendFunc
	log     *slog.Logger
	timeout time.Duration
}

// New builds a Dispatcher. A nil send logs each notification instead of
// delivering it, which is the default in development.
func New(send SendFunc, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{send: send, log: log, timeout: 10 * time.Second}
	if d.send == nil {
		d.send = d.logSend
	}
	return d
}

// ExpenseCreated implements Notifier.
func (d *Dispatcher) ExpenseCreated(ctx context.Context, e lodge.Expense, recipients []lodge.User) {
	if len(recipients) == 0 {
		return
	}
	units, _ := e.Amount.MinorUnits()
	subject := "New expense: " + e.Title
	body := e.Title + " (" + split.FormatMinor(units) + " " + e.Amount.Curr().Code() + ") was added to your house."

	// Detach from the request context so an early response does not cancel
	// in-flight sends.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	var wg sync.WaitGroup
	for _, to := range recipients {
		wg.Add(1)
		go func(to lodge.User) {
			defer wg.Done()
			if err := d.send(sendCtx, to, subject, body); err != nil {
				d.log.Warn("notification failed", "expense_id", e.ID, "recipient", to.ID, "err", err)
			}
		}(to)
	}
	go func() {
		wg.Wait()
		cancel()
	}()
}

func (d *Dispatcher) logSend(_ context.Context, to lodge.User, subject, _ string) error {
	d.log.Info("notification", "to", to.Email, "subject", subject)
	return nil
}
