// Package notify fans alert events out to chat conversations and push
// channels.
package notify

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/ogulcanaydogan/gluco-guardian/pkg/notify Chat,Pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

var (
	// ErrNotOwner is returned when someone other than the owner resolves an alert.
	ErrNotOwner = errors.New("only the owner can resolve an alert")

	// ErrAlertClosed is returned when acting on a resolved or expired alert.
	ErrAlertClosed = model.ErrAlertClosed
)

// Chat appends messages to owner/recipient conversations.
type Chat interface {
	PostChatMessage(ctx context.Context, msg *model.ChatMessage) error
}

// Pusher sends a push to the recipients that enabled its category.
type Pusher interface {
	SendFilteredPush(ctx context.Context, recipientIDs []string, push alerts.Push) error
}

// Store is the persistence FanOut needs.
type Store interface {
	SaveAlert(ctx context.Context, alert *model.Alert) error
	UpdateAlert(ctx context.Context, id string, fn func(*model.Alert) error) (*model.Alert, error)
	ListCareRelationships(ctx context.Context, ownerID string) ([]model.CareRelationship, error)
}

// FanOut persists alerts and distributes alert events. Pushes are sent in
// the background and their failures are only logged.
type FanOut struct {
	store  Store
	chat   Chat
	pusher Pusher
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// Option configures a FanOut.
type Option func(*FanOut)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *FanOut) { f.now = now }
}

// New creates a FanOut.
func New(store Store, chat Chat, pusher Pusher, logger *slog.Logger, opts ...Option) *FanOut {
	f := &FanOut{
		store:  store,
		chat:   chat,
		pusher: pusher,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FireAlert stores alert with its notified recipients, posts the alert into
// each owner/recipient conversation and pushes it to the owner and the
// recipients.
func (f *FanOut) FireAlert(ctx context.Context, alert *model.Alert, recipientIDs []string) error {
	now := f.now().UTC().Truncate(time.Millisecond)
	alert.NotifiedRecipients = make([]model.NotifiedRecipient, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		alert.NotifiedRecipients = append(alert.NotifiedRecipients, model.NotifiedRecipient{RecipientID: id, NotifiedAt: now})
	}

	if err := f.store.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	text := alert.Title + ": " + alert.Message
	for _, id := range recipientIDs {
		f.post(ctx, alert.OwnerID, id, alert.OwnerID, text, model.ChatMessageKind, alert.ID)
	}

	f.push(union([]string{alert.OwnerID}, recipientIDs, ""), alerts.Push{
		Category:     model.CategoryGlucoseAlerts,
		Title:        alert.Title,
		Body:         alert.Message,
		Severity:     alert.Severity,
		OwnerID:      alert.OwnerID,
		AlertID:      alert.ID,
		GlucoseValue: alert.GlucoseValue,
	})

	f.logger.Info("alert fired",
		"alert_id", alert.ID, "owner", alert.OwnerID, "type", alert.Type,
		"value", alert.GlucoseValue, "recipients", len(recipientIDs))
	return nil
}

// Acknowledge records that actor has seen the alert. Acknowledging twice is
// a no-op. The owner and the whole active care network are told, except the
// acknowledger.
func (f *FanOut) Acknowledge(ctx context.Context, alertID, actor, note string) (*model.Alert, error) {
	now := f.now()
	var changed bool
	alert, err := f.store.UpdateAlert(ctx, alertID, func(a *model.Alert) error {
		a.ExpireIfDue(now)
		var err error
		changed, err = a.Acknowledge(actor, note, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert: %w", err)
	}
	if !changed {
		return alert, nil
	}

	text := "Alert acknowledged"
	if note != "" {
		text += ": " + note
	}
	if actor == alert.OwnerID {
		for _, id := range alert.RecipientIDs() {
			f.post(ctx, alert.OwnerID, id, actor, text, model.ChatSystemKind, alert.ID)
		}
	} else {
		f.post(ctx, alert.OwnerID, actor, actor, text, model.ChatSystemKind, alert.ID)
	}

	network, err := f.activeNetwork(ctx, alert.OwnerID)
	if err != nil {
		f.logger.Error("load care network", "owner", alert.OwnerID, "error", err)
	}
	f.push(union([]string{alert.OwnerID}, network, actor), alerts.Push{
		Category:     model.CategoryAcknowledgments,
		Title:        "Alert acknowledged",
		Body:         text,
		Severity:     alert.Severity,
		OwnerID:      alert.OwnerID,
		AlertID:      alert.ID,
		GlucoseValue: alert.GlucoseValue,
	})

	f.logger.Info("alert acknowledged", "alert_id", alert.ID, "actor", actor, "status", alert.Status)
	return alert, nil
}

// Resolve closes the alert. Only the owner may resolve.
func (f *FanOut) Resolve(ctx context.Context, alertID, actor string) (*model.Alert, error) {
	now := f.now()
	var changed bool
	alert, err := f.store.UpdateAlert(ctx, alertID, func(a *model.Alert) error {
		if a.OwnerID != actor {
			return ErrNotOwner
		}
		a.ExpireIfDue(now)
		var err error
		changed, err = a.Resolve(now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	if !changed {
		return alert, nil
	}

	for _, id := range alert.RecipientIDs() {
		f.post(ctx, alert.OwnerID, id, actor, "Alert resolved", model.ChatSystemKind, alert.ID)
	}

	network, err := f.activeNetwork(ctx, alert.OwnerID)
	if err != nil {
		f.logger.Error("load care network", "owner", alert.OwnerID, "error", err)
	}
	f.push(union(nil, network, actor), alerts.Push{
		Category:     model.CategoryAlertResolved,
		Title:        "Alert resolved",
		Body:         alert.Title + " has been resolved.",
		Severity:     alert.Severity,
		OwnerID:      alert.OwnerID,
		AlertID:      alert.ID,
		GlucoseValue: alert.GlucoseValue,
	})

	f.logger.Info("alert resolved", "alert_id", alert.ID, "owner", alert.OwnerID)
	return alert, nil
}

// Wait blocks until every in-flight push has finished.
func (f *FanOut) Wait() {
	f.wg.Wait()
}

func (f *FanOut) post(ctx context.Context, ownerID, recipientID, senderID, text string, kind model.ChatKind, alertID string) {
	msg := &model.ChatMessage{
		ID:              uuid.New().String(),
		ConversationRef: model.ConversationRef(ownerID, recipientID),
		SenderID:        senderID,
		Text:            text,
		Kind:            kind,
		AlertID:         alertID,
		CreatedAt:       f.now().UTC().Truncate(time.Millisecond),
	}
	if err := f.chat.PostChatMessage(ctx, msg); err != nil {
		f.logger.Error("post chat message failed",
			"conversation", msg.ConversationRef, "alert_id", alertID, "error", err)
	}
}

func (f *FanOut) push(recipientIDs []string, push alerts.Push) {
	if len(recipientIDs) == 0 {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := f.pusher.SendFilteredPush(ctx, recipientIDs, push); err != nil {
			f.logger.Error("push delivery failed",
				"alert_id", push.AlertID, "category", push.Category, "error", err)
		}
	}()
}

func (f *FanOut) activeNetwork(ctx context.Context, ownerID string) ([]string, error) {
	rels, err := f.store.ListCareRelationships(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		if rel.IsActive() {
			ids = append(ids, rel.RecipientID)
		}
	}
	return ids, nil
}

// union merges id lists in order, dropping duplicates and exclude.
func union(a, b []string, exclude string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" || id == exclude || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
