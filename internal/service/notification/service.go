package notification

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/messaging"
)

// Enqueuer accepts notifications for out-of-process delivery.
type Enqueuer interface {
	Enqueue(msg messaging.Message) bool
}

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	// Limit caps List when the caller asks for zero or fewer.
	Limit int
}

type entry struct {
	seq          uint64
	notification model.Notification
}

// Service turns store events into short-lived notifications.
type Service struct {
	items  *cache.Cache
	limit  int
	relay  Enqueuer
	logger *logger.Logger

	seq         atomic.Uint64
	now         func() time.Time
	newID       func() string
	unsubscribe func()
	closeOnce   sync.Once
}

// NewService subscribes to bus. relay may be nil.
func NewService(bus *event.Bus, cfg Config, relay Enqueuer, logger *logger.Logger) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	s := &Service{
		items:  cache.New(cfg.TTL, cfg.CleanupInterval),
		limit:  cfg.Limit,
		relay:  relay,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	s.unsubscribe = bus.Subscribe(s.handle)
	return s
}

// List returns up to limit notifications, newest first.
func (s *Service) List(limit int) []model.Notification {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	items := s.items.Items()
	entries := make([]entry, 0, len(items))
	for _, item := range items {
		if e, ok := item.Object.(entry); ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })

	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.Notification, len(entries))
	for i, e := range entries {
		out[i] = e.notification
	}
	return out
}

// Dismiss removes one notification.
func (s *Service) Dismiss(id string) {
	s.items.Delete(id)
}

// Close stops listening to the bus.
func (s *Service) Close() {
	s.closeOnce.Do(s.unsubscribe)
}

func (s *Service) handle(e event.Event) {
	title, description, variant, ok := Describe(e)
	if !ok {
		return
	}

	n := model.Notification{
		ID:          s.newID(),
		EventType:   string(e.Type),
		Title:       title,
		Description: description,
		Variant:     variant,
		CreatedAt:   s.now().UTC(),
	}
	s.items.Set(n.ID, entry{seq: s.seq.Add(1), notification: n}, cache.DefaultExpiration)

	if s.relay != nil && !s.relay.Enqueue(messaging.Message{Type: n.EventType, Payload: n}) {
		s.logger.Warn("Notification relay queue full", "notification_id", n.ID)
	}
}

// Describe renders the toast text for e. Events without a user-facing
// message report false.
func Describe(e event.Event) (string, string, model.NotificationVariant, bool) {
	switch e.Type {
	case event.SessionLoggedIn:
		id, _ := e.Payload.(model.Identity)
		return "Login successful", fmt.Sprintf("Welcome back, %s!", id.Name), model.NotificationDefault, true
	case event.SessionLoginFailed:
		return "Login failed", failureText(e.Err), model.NotificationDestructive, true
	case event.SessionRegistered:
		id, _ := e.Payload.(model.Identity)
		return "Registration successful", fmt.Sprintf("Welcome, Dr. %s!", id.Name), model.NotificationDefault, true
	case event.SessionRegisterFailed:
		return "Registration failed", failureText(e.Err), model.NotificationDestructive, true
	case event.SessionLoggedOut:
		return "Logged out", "You have been successfully logged out.", model.NotificationDefault, true
	case event.PatientAdded:
		p, _ := e.Payload.(model.Patient)
		return "Patient Added", fmt.Sprintf("Patient %s has been added with ID: %s", p.Name, p.ID), model.NotificationDefault, true
	case event.PatientRemoved:
		p, _ := e.Payload.(model.Patient)
		return "Patient Removed", fmt.Sprintf("Patient %s has been removed from your records", p.Name), model.NotificationDefault, true
	case event.ScanAdded:
		r, _ := e.Payload.(model.ScanResult)
		return "Scan Result Added", fmt.Sprintf("New scan result has been added for patient %s", r.PatientID), model.NotificationDefault, true
	case event.OperationFailed:
		return "Error", failureText(e.Err), model.NotificationDestructive, true
	default:
		return "", "", "", false
	}
}

func failureText(err error) string {
	appErr, ok := errors.As(err)
	if !ok || appErr.Code == errors.ErrInternal && appErr.Message == errors.InternalError.Message {
		return "Something went wrong"
	}
	return appErr.Message
}
