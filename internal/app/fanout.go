// Package app connects committed task transitions to their side effects:
// realtime broadcast, durable notifications, and outbound email/SMS. Every
// effect is best-effort; failures are logged and never reach the caller.
package app

import (
	"context"
	"fmt"
	"log"

	notificationdomain "github.com/gigboard/gigboard/internal/notification/domain"
	"github.com/gigboard/gigboard/internal/platform/timeouts"
	"github.com/gigboard/gigboard/internal/sidechannel"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

// Notifier writes durable notification rows.
type Notifier interface {
	Create(ctx context.Context, input notificationdomain.CreateInput) (notificationdomain.Notification, error)
}

// EventBroadcaster pushes transitions to live connections.
type EventBroadcaster interface {
	TaskUpdated(event taskdomain.TransitionEvent)
}

// Fanout implements the task transition sink.
type Fanout struct {
	notifier    Notifier
	broadcaster EventBroadcaster
	email       sidechannel.EmailSender
	sms         sidechannel.SMSSender
}

// NewFanout wires the transition side effects. Any collaborator may be nil;
// its effect is skipped.
func NewFanout(notifier Notifier, broadcaster EventBroadcaster, email sidechannel.EmailSender, sms sidechannel.SMSSender) *Fanout {
	return &Fanout{
		notifier:    notifier,
		broadcaster: broadcaster,
		email:       email,
		sms:         sms,
	}
}

// TaskTransitioned fans one committed transition out. The task row is already
// durable; nothing here can roll it back.
func (f *Fanout) TaskTransitioned(ctx context.Context, event taskdomain.TransitionEvent) {
	if f == nil {
		return
	}
	if f.broadcaster != nil {
		f.broadcaster.TaskUpdated(event)
	}
	f.notify(ctx, event)
	if event.To == taskdomain.StatusAccepted {
		f.sendAcceptedSideChannels(ctx, event)
	}
}

// notify writes one durable row per interested party, skipping the actor who
// triggered the change. The dedupe key makes a retried transition idempotent.
func (f *Fanout) notify(ctx context.Context, event taskdomain.TransitionEvent) {
	if f.notifier == nil {
		return
	}
	message := transitionMessage(event)
	if message == "" {
		return
	}
	for _, recipient := range recipients(event) {
		_, err := f.notifier.Create(ctx, notificationdomain.CreateInput{
			UserID:    recipient,
			Message:   message,
			DedupeKey: fmt.Sprintf("%s:%s", event.Task.ID, event.To),
		})
		if err != nil {
			log.Printf("app: notification for user=%q task=%q failed: %v", recipient, event.Task.ID, err)
		}
	}
}

// recipients lists the task parties minus the acting user, deduplicated.
func recipients(event taskdomain.TransitionEvent) []string {
	var out []string
	seen := map[string]struct{}{event.Actor: {}}
	for _, candidate := range []string{event.Task.CreatedBy, event.Task.AssignedTo} {
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func transitionMessage(event taskdomain.TransitionEvent) string {
	title := event.Task.Title
	switch event.To {
	case taskdomain.StatusAccepted:
		return fmt.Sprintf("Your task %q was accepted", title)
	case taskdomain.StatusInProgress:
		return fmt.Sprintf("Work on %q has started", title)
	case taskdomain.StatusCompleted:
		return fmt.Sprintf("Task %q was completed", title)
	case taskdomain.StatusCancelled:
		return fmt.Sprintf("Task %q was cancelled", title)
	}
	return ""
}

func (f *Fanout) sendAcceptedSideChannels(ctx context.Context, event taskdomain.TransitionEvent) {
	if f.email == nil && f.sms == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.SideChannel)
	defer cancel()

	subject := fmt.Sprintf("Task accepted: %s", event.Task.Title)
	body := fmt.Sprintf("%s accepted your task %q.", event.Actor, event.Task.Title)
	if f.email != nil {
		if err := f.email.SendEmail(sendCtx, event.Task.CreatedBy, subject, body); err != nil {
			log.Printf("app: accept email for task=%q failed: %v", event.Task.ID, err)
		}
	}
	if f.sms != nil {
		if err := f.sms.SendSMS(sendCtx, event.Task.CreatedBy, body); err != nil {
			log.Printf("app: accept sms for task=%q failed: %v", event.Task.ID, err)
		}
	}
}
