// Package sidechannel holds outbound integrations invoked best-effort after
// task transitions. Production deployments swap in real providers; the
// defaults only log, which keeps local runs and tests dependency-free.
package sidechannel

import (
	"context"
	"log"
)

// EmailSender delivers transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, userID string, subject string, body string) error
}

// SMSSender delivers short text notifications.
type SMSSender interface {
	SendSMS(ctx context.Context, userID string, body string) error
}

// LogEmailSender writes would-be emails to the process log.
type LogEmailSender struct{}

// SendEmail implements EmailSender.
func (LogEmailSender) SendEmail(_ context.Context, userID string, subject string, _ string) error {
	log.Printf("sidechannel: email to user=%q subject=%q", userID, subject)
	return nil
}

// LogSMSSender writes would-be texts to the process log.
type LogSMSSender struct{}

// SendSMS implements SMSSender.
func (LogSMSSender) SendSMS(_ context.Context, userID string, body string) error {
	log.Printf("sidechannel: sms to user=%q body=%q", userID, body)
	return nil
}

// NullGeocoder resolves nothing; tasks keep their raw address.
type NullGeocoder struct{}

// Geocode implements the task geocoder contract.
func (NullGeocoder) Geocode(_ context.Context, _ string) (float64, float64, bool, error) {
	return 0, 0, false, nil
}
